package store

import (
	"database/sql"
	"fmt"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistence layer: recipes, per-user inventory,
// meal plans, preferences, and conversation history share one database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dbPath and runs the schema
// migration.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS recipes (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			cuisine      TEXT NOT NULL DEFAULT '',
			ingredients  TEXT NOT NULL DEFAULT '[]',
			steps        TEXT NOT NULL DEFAULT '',
			prep_minutes INTEGER NOT NULL DEFAULT 0,
			calories     INTEGER NOT NULL DEFAULT 0,
			protein_g    REAL NOT NULL DEFAULT 0,
			carbs_g      REAL NOT NULL DEFAULT 0,
			fat_g        REAL NOT NULL DEFAULT 0,
			tags         TEXT NOT NULL DEFAULT '[]',
			created_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recipes_name ON recipes(name)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			name       TEXT NOT NULL,
			quantity   REAL NOT NULL DEFAULT 0,
			unit       TEXT NOT NULL DEFAULT '',
			expires_at TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_user ON inventory(user_id)`,
		`CREATE TABLE IF NOT EXISTS meal_plans (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			week_start TEXT NOT NULL,
			entries    TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_meal_plans_user ON meal_plans(user_id, week_start)`,
		`CREATE TABLE IF NOT EXISTS preferences (
			user_id        TEXT PRIMARY KEY,
			dietary        TEXT NOT NULL DEFAULT '',
			dislikes       TEXT NOT NULL DEFAULT '',
			household_size INTEGER NOT NULL DEFAULT 0,
			updated_at     TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id           TEXT PRIMARY KEY,
			thread_id    TEXT NOT NULL,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL DEFAULT '',
			name         TEXT NOT NULL DEFAULT '',
			tool_call_id TEXT NOT NULL DEFAULT '',
			tool_calls   TEXT NOT NULL DEFAULT '[]',
			created_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// newID generates a lexicographically sortable unique ID. ULIDs sort by
// creation time, which keeps ORDER BY id queries chronological.
func newID() string {
	return ulid.Make().String()
}
