// Package seed loads the achievement catalog from YAML.
package seed

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
)

// TelegramProAchievement is granted on the first Telegram login.
const TelegramProAchievement = "Telegram Pro"

//go:embed achievements.yaml
var defaultAchievements []byte

type catalogFile struct {
	Achievements []progress.Definition `yaml:"achievements"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*progress.Catalog, error) {
	return Parse(defaultAchievements)
}

// Parse decodes a catalog document and validates every definition.
func Parse(data []byte) (*progress.Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode achievements: %w", err)
	}
	catalog, err := progress.NewCatalog(file.Achievements)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return catalog, nil
}

// Load reads a catalog from path. An empty path yields the embedded catalog.
func Load(path string) (*progress.Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}
