package progress

import "fmt"

// Catalog - упорядоченный набор описаний достижений, уникальных по имени.
// После создания не меняется и безопасен для конкурентного чтения.
type Catalog struct {
	defs   []Definition
	byName map[string]int
}

// NewCatalog проверяет описания и строит каталог, сохраняя их порядок.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs:   make([]Definition, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		d = d.Normalized()
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate achievement %q", d.Name)
		}
		c.byName[d.Name] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// MustCatalog is NewCatalog for static definitions known to be valid.
func MustCatalog(defs []Definition) *Catalog {
	c, err := NewCatalog(defs)
	if err != nil {
		panic(err)
	}
	return c
}

// Definitions returns a copy of the definitions in catalog order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Lookup returns the definition with the given name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}
