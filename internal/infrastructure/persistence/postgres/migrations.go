package postgres

// Migrations returns all embedded migrations in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_accounts", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_progress_records", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_achievement_definitions", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS accounts (
    id UUID PRIMARY KEY,
    telegram_id BIGINT NOT NULL,
    username VARCHAR(64) NOT NULL DEFAULT '',
    first_name VARCHAR(128) NOT NULL DEFAULT '',
    last_name VARCHAR(128) NOT NULL DEFAULT '',
    balance BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT accounts_telegram_id_key UNIQUE (telegram_id),
    CONSTRAINT valid_telegram_id CHECK (telegram_id > 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS accounts;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PROGRESS RECORDS
// Достижения хранятся рядом с записью, чтобы сохранение было одним UPDATE.
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS progress_records (
    account_id UUID PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
    level INTEGER NOT NULL DEFAULT 1,
    experience BIGINT NOT NULL DEFAULT 0,
    threshold BIGINT NOT NULL DEFAULT 100,
    streak INTEGER NOT NULL DEFAULT 0,
    last_streak_update TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    last_active_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    achievements JSONB NOT NULL DEFAULT '[]'::jsonb,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT settled_experience CHECK (experience >= 0 AND experience < threshold),
    CONSTRAINT valid_streak CHECK (streak >= 0)
);

CREATE INDEX IF NOT EXISTS idx_progress_level ON progress_records(level DESC, experience DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS progress_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ACHIEVEMENT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS achievement_definitions (
    seq BIGSERIAL,
    name VARCHAR(100) PRIMARY KEY,
    description TEXT NOT NULL DEFAULT '',
    kind VARCHAR(20) NOT NULL,
    requirement BIGINT NOT NULL DEFAULT 0,
    reward BIGINT NOT NULL DEFAULT 0,
    icon VARCHAR(16) NOT NULL DEFAULT '',
    rarity VARCHAR(20) NOT NULL DEFAULT 'common',

    CONSTRAINT valid_kind CHECK (kind IN ('level', 'streak', 'experience', 'manual')),
    CONSTRAINT valid_rarity CHECK (rarity IN ('common', 'uncommon', 'rare', 'epic', 'legendary')),
    CONSTRAINT valid_requirement CHECK (requirement >= 0 AND reward >= 0)
);
`

const migration003Down = `
DROP TABLE IF EXISTS achievement_definitions;
`
