package postgres

import (
	"context"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CATALOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements progress.CatalogRepository for PostgreSQL.
type CatalogRepository struct {
	conn *Connection
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

// List returns definitions in insertion order.
func (r *CatalogRepository) List(ctx context.Context) ([]progress.Definition, error) {
	q, err := r.conn.querier()
	if err != nil {
		return nil, shared.Unavailable("catalog", "List", err)
	}

	rows, err := q.Query(ctx, `
		SELECT name, description, kind, requirement, reward, icon, rarity
		FROM achievement_definitions
		ORDER BY seq
	`)
	if err != nil {
		return nil, shared.Unavailable("catalog", "List", err)
	}
	defer rows.Close()

	var defs []progress.Definition
	for rows.Next() {
		var d progress.Definition
		var kind, rarity string
		if err := rows.Scan(&d.Name, &d.Description, &kind, &d.Requirement, &d.Reward, &d.Icon, &rarity); err != nil {
			return nil, shared.Unavailable("catalog", "List", err)
		}
		d.Kind = progress.Kind(kind)
		d.Rarity = progress.Rarity(rarity)
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Unavailable("catalog", "List", err)
	}
	return defs, nil
}

// InsertIfAbsent adds the definition unless its name already exists.
func (r *CatalogRepository) InsertIfAbsent(ctx context.Context, def progress.Definition) (bool, error) {
	def = def.Normalized()
	if err := def.Validate(); err != nil {
		return false, err
	}
	q, err := r.conn.querier()
	if err != nil {
		return false, shared.Unavailable("catalog", "InsertIfAbsent", err)
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO achievement_definitions (name, description, kind, requirement, reward, icon, rarity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO NOTHING
	`, def.Name, def.Description, string(def.Kind), def.Requirement, def.Reward, def.Icon, string(def.Rarity))
	if err != nil {
		return false, shared.Unavailable("catalog", "InsertIfAbsent", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Upsert overwrites the definition with the same name, keeping its position.
func (r *CatalogRepository) Upsert(ctx context.Context, def progress.Definition) error {
	def = def.Normalized()
	if err := def.Validate(); err != nil {
		return err
	}
	q, err := r.conn.querier()
	if err != nil {
		return shared.Unavailable("catalog", "Upsert", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO achievement_definitions (name, description, kind, requirement, reward, icon, rarity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			kind = EXCLUDED.kind,
			requirement = EXCLUDED.requirement,
			reward = EXCLUDED.reward,
			icon = EXCLUDED.icon,
			rarity = EXCLUDED.rarity
	`, def.Name, def.Description, string(def.Kind), def.Requirement, def.Reward, def.Icon, string(def.Rarity))
	if err != nil {
		return shared.Unavailable("catalog", "Upsert", err)
	}
	return nil
}
