package sqlite

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
// Timestamps are RFC 3339 strings in UTC.
func Migrations() []string {
	return []string{
		// Cached balance per user; version guards every balance write
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id    TEXT PRIMARY KEY,
			balance    INTEGER NOT NULL DEFAULT 0 CHECK(balance >= 0),
			version    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		// Append-only ledger. No UPDATE or DELETE is ever issued against it.
		`CREATE TABLE IF NOT EXISTS transactions (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE,
			user_id     TEXT NOT NULL,
			type        TEXT NOT NULL CHECK(type IN ('EARNED', 'SPENT', 'ADMIN_GIVEN', 'REFUND')),
			amount      INTEGER NOT NULL CHECK(amount > 0),
			description TEXT NOT NULL DEFAULT '',
			metadata    TEXT NOT NULL DEFAULT '{}',
			reference   TEXT,
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_user ON transactions(user_id, seq)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_reference ON transactions(user_id, reference) WHERE reference IS NOT NULL`,

		// One progress row per (user, achievement type)
		`CREATE TABLE IF NOT EXISTS achievement_progress (
			user_id       TEXT NOT NULL,
			type          TEXT NOT NULL,
			current_value INTEGER NOT NULL DEFAULT 0 CHECK(current_value >= 0),
			target_value  INTEGER NOT NULL,
			is_completed  INTEGER NOT NULL DEFAULT 0,
			completed_at  TEXT,
			reward_state  TEXT NOT NULL DEFAULT '',
			version       INTEGER NOT NULL DEFAULT 0,
			updated_at    TEXT NOT NULL,
			PRIMARY KEY (user_id, type)
		)`,

		// Static reference data, seeded once
		`CREATE TABLE IF NOT EXISTS catalog_items (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price       INTEGER,
			rarity      TEXT NOT NULL,
			is_active   INTEGER NOT NULL DEFAULT 1,
			is_default  INTEGER NOT NULL DEFAULT 0
		)`,

		// Ownership proofs, unique per (user, item)
		`CREATE TABLE IF NOT EXISTS unlock_records (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			item_id     TEXT NOT NULL,
			unlock_type TEXT NOT NULL CHECK(unlock_type IN ('PURCHASE', 'ACHIEVEMENT', 'ADMIN')),
			source      TEXT NOT NULL DEFAULT '',
			price_paid  INTEGER,
			unlocked_at TEXT NOT NULL,
			UNIQUE(user_id, item_id)
		)`,

		// Currently equipped item per user
		`CREATE TABLE IF NOT EXISTS active_items (
			user_id     TEXT PRIMARY KEY,
			item_id     TEXT NOT NULL,
			selected_at TEXT NOT NULL
		)`,

		// Display-only history feed
		`CREATE TABLE IF NOT EXISTS activity_log (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     TEXT NOT NULL,
			kind        TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			metadata    TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_user ON activity_log(user_id, id)`,
	}
}
