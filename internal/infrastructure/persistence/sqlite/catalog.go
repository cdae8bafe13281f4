package sqlite

import (
	"context"
	"database/sql"

	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// CatalogStore implements progress.CatalogRepository.
type CatalogStore struct {
	db *sql.DB
}

var _ progress.CatalogRepository = (*CatalogStore)(nil)

// List returns definitions in insertion order.
func (s *CatalogStore) List(ctx context.Context) ([]progress.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, kind, requirement, reward, icon, rarity
		FROM achievement_definitions
		ORDER BY seq`)
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
func (s *CatalogStore) InsertIfAbsent(ctx context.Context, def progress.Definition) (bool, error) {
	def = def.Normalized()
	if err := def.Validate(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO achievement_definitions (name, description, kind, requirement, reward, icon, rarity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`,
		def.Name, def.Description, string(def.Kind), def.Requirement, def.Reward, def.Icon, string(def.Rarity),
	)
	if err != nil {
		return false, shared.Unavailable("catalog", "InsertIfAbsent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, shared.Unavailable("catalog", "InsertIfAbsent", err)
	}
	return n == 1, nil
}

// Upsert overwrites the definition with the same name, keeping its position.
func (s *CatalogStore) Upsert(ctx context.Context, def progress.Definition) error {
	def = def.Normalized()
	if err := def.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO achievement_definitions (name, description, kind, requirement, reward, icon, rarity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			description = excluded.description,
			kind = excluded.kind,
			requirement = excluded.requirement,
			reward = excluded.reward,
			icon = excluded.icon,
			rarity = excluded.rarity`,
		def.Name, def.Description, string(def.Kind), def.Requirement, def.Reward, def.Icon, string(def.Rarity),
	)
	if err != nil {
		return shared.Unavailable("catalog", "Upsert", err)
	}
	return nil
}
