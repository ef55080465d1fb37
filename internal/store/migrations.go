package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations is the ordered list of all schema migrations.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: files, duplicate and alternate groups, false positives, potential queue",
		SQL: `
CREATE TABLE IF NOT EXISTS files (
  hash_id INTEGER PRIMARY KEY AUTOINCREMENT,
  hash TEXT NOT NULL UNIQUE,
  needs_search INTEGER NOT NULL DEFAULT 1,
  added_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alternate_groups (
  alternate_group_id INTEGER PRIMARY KEY AUTOINCREMENT,
  version INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS duplicate_groups (
  group_id INTEGER PRIMARY KEY AUTOINCREMENT,
  king_hash_id INTEGER NOT NULL,
  alternate_group_id INTEGER,
  version INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  FOREIGN KEY (king_hash_id) REFERENCES files(hash_id),
  FOREIGN KEY (alternate_group_id) REFERENCES alternate_groups(alternate_group_id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS duplicate_group_members (
  hash_id INTEGER PRIMARY KEY,
  group_id INTEGER NOT NULL,
  joined_seq INTEGER NOT NULL,
  FOREIGN KEY (hash_id) REFERENCES files(hash_id),
  FOREIGN KEY (group_id) REFERENCES duplicate_groups(group_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS false_positive_links (
  smaller_alternate_group_id INTEGER NOT NULL,
  larger_alternate_group_id INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  PRIMARY KEY (smaller_alternate_group_id, larger_alternate_group_id),
  CHECK (smaller_alternate_group_id < larger_alternate_group_id),
  FOREIGN KEY (smaller_alternate_group_id) REFERENCES alternate_groups(alternate_group_id) ON DELETE CASCADE,
  FOREIGN KEY (larger_alternate_group_id) REFERENCES alternate_groups(alternate_group_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS potential_pairs (
  smaller_hash_id INTEGER NOT NULL,
  larger_hash_id INTEGER NOT NULL,
  distance INTEGER NOT NULL,
  queued_at TEXT NOT NULL,
  PRIMARY KEY (smaller_hash_id, larger_hash_id),
  CHECK (smaller_hash_id < larger_hash_id),
  FOREIGN KEY (smaller_hash_id) REFERENCES files(hash_id),
  FOREIGN KEY (larger_hash_id) REFERENCES files(hash_id)
);

CREATE TABLE IF NOT EXISTS rejected_pairs (
  smaller_hash_id INTEGER NOT NULL,
  larger_hash_id INTEGER NOT NULL,
  rejected_at TEXT NOT NULL,
  PRIMARY KEY (smaller_hash_id, larger_hash_id),
  CHECK (smaller_hash_id < larger_hash_id),
  FOREIGN KEY (smaller_hash_id) REFERENCES files(hash_id),
  FOREIGN KEY (larger_hash_id) REFERENCES files(hash_id)
);

CREATE INDEX IF NOT EXISTS idx_files_needs_search ON files(needs_search, hash_id);
CREATE INDEX IF NOT EXISTS idx_members_group ON duplicate_group_members(group_id, joined_seq);
CREATE INDEX IF NOT EXISTS idx_groups_alternate ON duplicate_groups(alternate_group_id);
CREATE INDEX IF NOT EXISTS idx_false_positive_larger ON false_positive_links(larger_alternate_group_id);
CREATE INDEX IF NOT EXISTS idx_potential_larger ON potential_pairs(larger_hash_id);
CREATE INDEX IF NOT EXISTS idx_potential_distance ON potential_pairs(distance, queued_at);
CREATE INDEX IF NOT EXISTS idx_rejected_larger ON rejected_pairs(larger_hash_id);
`,
	},
	{
		Version:     2,
		Description: "decision log for committed duplicate actions",
		SQL: `
CREATE TABLE IF NOT EXISTS decision_log (
  id TEXT PRIMARY KEY,
  action TEXT NOT NULL,
  hashes TEXT NOT NULL,
  changes INTEGER NOT NULL,
  needs_search INTEGER NOT NULL,
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_log_created ON decision_log(created_at DESC);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist.
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(migrationsTableSQL)
	return err
}

// currentVersion returns the highest applied migration version, or 0 if none.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigrations applies all pending migrations in order.
func runMigrations(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, m := range sorted {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// MigrationPlan returns the current migration status without applying anything.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return nil, err
	}

	current, err := currentVersion(db)
	if err != nil {
		return nil, err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	available := 0
	if len(sorted) > 0 {
		available = sorted[len(sorted)-1].Version
	}

	var pending []MigrationInfo
	for _, m := range sorted {
		if m.Version > current {
			pending = append(pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}

	return &MigrationStatus{
		CurrentVersion:   current,
		AvailableVersion: available,
		Pending:          pending,
	}, nil
}
