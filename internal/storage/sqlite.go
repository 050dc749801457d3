// Package storage implements the persistence layer: two SQLite databases
// (conversations.db and memory.db) opened with WAL journaling and a
// single-writer connection funnel, each carrying its own linear migration
// history tracked in a schema_migrations table.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver.
)

// migration represents a single schema migration step.
type migration struct {
	version int
	sql     string
}

// conversationsMigrations holds the linear migration sequence for
// conversations.db: the core entity schema, MCP call history, an FTS5
// index over blocks that was later dropped, and a CHECK-constraint widening.
var conversationsMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE conversations (
    id           TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    active       INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);
CREATE INDEX idx_conversations_workspace ON conversations(workspace_id, updated_at DESC);

CREATE TABLE messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role            TEXT NOT NULL CHECK (role IN ('user','assistant')),
    content         TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    timestamp       INTEGER NOT NULL
);
CREATE INDEX idx_messages_conversation ON messages(conversation_id, timestamp);

CREATE TABLE blocks (
    id          TEXT PRIMARY KEY,
    message_id  TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    type        TEXT NOT NULL CHECK (type IN (
        'text','code','command','file','diff','error','result',
        'diagram','link','quote','list','table','tool'
    )),
    content     TEXT NOT NULL DEFAULT '',
    metadata    TEXT NOT NULL DEFAULT '{}',
    block_order INTEGER NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX idx_blocks_message ON blocks(message_id, block_order);

CREATE TABLE block_bookmarks (
    id         TEXT PRIMARY KEY,
    block_id   TEXT NOT NULL REFERENCES blocks(id) ON DELETE CASCADE,
    title      TEXT NOT NULL DEFAULT '',
    note       TEXT NOT NULL DEFAULT '',
    tags       TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL
);
CREATE INDEX idx_block_bookmarks_block ON block_bookmarks(block_id);

CREATE TABLE block_executions (
    id          TEXT PRIMARY KEY,
    block_id    TEXT NOT NULL REFERENCES blocks(id) ON DELETE CASCADE,
    executed_at TEXT NOT NULL,
    exit_code   INTEGER NOT NULL DEFAULT 0,
    output      TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_block_executions_block ON block_executions(block_id, executed_at DESC);

CREATE TABLE todos (
    id                         TEXT PRIMARY KEY,
    conversation_id            TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    message_id                 TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    parent_id                  TEXT REFERENCES todos(id) ON DELETE CASCADE,
    todo_order                 INTEGER NOT NULL DEFAULT 0,
    depth                      INTEGER NOT NULL DEFAULT 0,
    content                    TEXT NOT NULL DEFAULT '',
    active_form                TEXT NOT NULL DEFAULT '',
    status                     TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','in_progress','completed','failed','skipped')),
    progress                   INTEGER,
    priority                   TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('low','medium','high','critical')),
    complexity                 TEXT NOT NULL DEFAULT 'medium' CHECK (complexity IN ('trivial','simple','medium','complex','very_complex')),
    thinking_step_ids          TEXT NOT NULL DEFAULT '[]',
    block_ids                  TEXT NOT NULL DEFAULT '[]',
    estimated_duration_seconds INTEGER,
    actual_duration_seconds    INTEGER,
    started_at                 INTEGER,
    completed_at                INTEGER,
    created_at                 INTEGER NOT NULL,
    updated_at                 INTEGER NOT NULL
);
CREATE INDEX idx_todos_conversation ON todos(conversation_id, todo_order);
CREATE INDEX idx_todos_parent ON todos(parent_id);

CREATE TABLE plans (
    id                         TEXT PRIMARY KEY,
    workspace_id               TEXT NOT NULL,
    goal                       TEXT NOT NULL DEFAULT '',
    plan_document              TEXT NOT NULL DEFAULT '',
    todos                      TEXT NOT NULL DEFAULT '[]',
    todo_count                 INTEGER NOT NULL DEFAULT 0,
    estimated_duration_seconds INTEGER NOT NULL DEFAULT 0,
    status                     TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','active','completed','cancelled')),
    ai_analysis                TEXT NOT NULL DEFAULT '{}',
    created_at                 INTEGER NOT NULL,
    updated_at                 INTEGER NOT NULL
);
CREATE INDEX idx_plans_workspace ON plans(workspace_id, updated_at DESC);

CREATE TABLE workspace_metadata (
    workspace_id                TEXT PRIMARY KEY,
    last_active_conversation_id TEXT,
    settings                    TEXT NOT NULL DEFAULT '{}'
);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE mcp_calls (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    call_id           TEXT NOT NULL UNIQUE,
    timestamp         INTEGER NOT NULL,
    duration_ms       INTEGER,
    server_id         TEXT NOT NULL,
    server_name       TEXT NOT NULL DEFAULT '',
    method            TEXT NOT NULL,
    tool_name         TEXT NOT NULL DEFAULT '',
    request_params    TEXT NOT NULL DEFAULT '{}',
    response_result   TEXT,
    response_error    TEXT,
    status            TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','success','error','timeout'))
);
CREATE INDEX idx_mcp_calls_timestamp ON mcp_calls(timestamp DESC);
CREATE INDEX idx_mcp_calls_server ON mcp_calls(server_id, timestamp DESC);
`,
	},
	{
		// Full-text search over block content. Superseded by v4: the
		// trigger-maintained index developed update bugs and was dropped.
		version: 3,
		sql: `
CREATE VIRTUAL TABLE blocks_fts USING fts5(content, content='blocks', content_rowid='rowid');

CREATE TRIGGER blocks_fts_ai AFTER INSERT ON blocks BEGIN
    INSERT INTO blocks_fts(rowid, content) VALUES (new.rowid, new.content);
END;
CREATE TRIGGER blocks_fts_ad AFTER DELETE ON blocks BEGIN
    INSERT INTO blocks_fts(blocks_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;
CREATE TRIGGER blocks_fts_au AFTER UPDATE ON blocks BEGIN
    INSERT INTO blocks_fts(blocks_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
    INSERT INTO blocks_fts(rowid, content) VALUES (new.rowid, new.content);
END;
`,
	},
	{
		// Drops the v3 FTS index and its triggers: the triggers missed the
		// id-preserving delete-then-insert pattern save_message_with_blocks
		// relies on, leaving stale rows behind. search_blocks falls back to
		// substring matching (see search.go) until a trigger-free index is
		// designed.
		version: 4,
		sql: `
DROP TRIGGER IF EXISTS blocks_fts_ai;
DROP TRIGGER IF EXISTS blocks_fts_ad;
DROP TRIGGER IF EXISTS blocks_fts_au;
DROP TABLE IF EXISTS blocks_fts;
`,
	},
	{
		// Widens the block.type CHECK constraint to admit the 'checklist'
		// and 'file-summary' variants added after the initial schema.
		// SQLite has no ALTER TABLE ... ALTER COLUMN for CHECK constraints,
		// so this rebuilds the table: rename, create-new, copy, drop-old,
		// recreate indexes.
		version: 5,
		sql: `
ALTER TABLE blocks RENAME TO blocks_v1;

CREATE TABLE blocks (
    id          TEXT PRIMARY KEY,
    message_id  TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    type        TEXT NOT NULL CHECK (type IN (
        'text','code','command','file','diff','error','result',
        'diagram','link','quote','list','table','tool',
        'checklist','file-summary'
    )),
    content     TEXT NOT NULL DEFAULT '',
    metadata    TEXT NOT NULL DEFAULT '{}',
    block_order INTEGER NOT NULL,
    created_at  TEXT NOT NULL
);

INSERT INTO blocks (id, message_id, type, content, metadata, block_order, created_at)
    SELECT id, message_id, type, content, metadata, block_order, created_at FROM blocks_v1;

DROP TABLE blocks_v1;

CREATE INDEX idx_blocks_message ON blocks(message_id, block_order);
`,
	},
}

// memoryMigrations holds the linear migration sequence for memory.db: just
// the project_memory table, a separate database per spec but reusing the
// same migration runner.
var memoryMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE project_memory (
    id           TEXT PRIMARY KEY,
    project_path TEXT NOT NULL,
    type         TEXT NOT NULL CHECK (type IN ('convention','decision','snippet','rule','note')),
    key          TEXT NOT NULL,
    value        TEXT NOT NULL DEFAULT '',
    priority     TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('high','medium','low')),
    usage_count  INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL,
    UNIQUE (project_path, key)
);
CREATE INDEX idx_project_memory_project ON project_memory(project_path);
`,
	},
}

// OpenDB opens (or creates) a SQLite database at dbPath, configures pragmas
// for WAL mode and foreign keys, and runs any pending schema migrations from
// migrations. Returns true as the second value if the database was newly
// created (i.e. migration version 1 was applied during this call).
func OpenDB(dbPath string, migrations []migration) (*sql.DB, bool, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, false, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, false, fmt.Errorf("opening database: %w", err)
	}

	// SQLite is single-writer; serialize all access through one connection
	// to avoid SQLITE_BUSY errors from concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, pragmaErr := db.ExecContext(ctx, p); pragmaErr != nil {
			if cerr := db.Close(); cerr != nil {
				log.Printf("failed to close database after pragma error: %v", cerr)
			}
			return nil, false, fmt.Errorf("setting pragma %q: %w", p, pragmaErr)
		}
	}

	freshDB, err := runMigrations(ctx, db, migrations)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			log.Printf("failed to close database after migration error: %v", cerr)
		}
		return nil, false, fmt.Errorf("running migrations: %w", err)
	}

	return db, freshDB, nil
}

// NewConversationsDB opens the conversations database at dbPath.
func NewConversationsDB(dbPath string) (*sql.DB, bool, error) {
	return OpenDB(dbPath, conversationsMigrations)
}

// NewMemoryDB opens the project-memory database at dbPath.
func NewMemoryDB(dbPath string) (*sql.DB, bool, error) {
	return OpenDB(dbPath, memoryMigrations)
}

// runMigrations ensures the schema_migrations table exists and applies any
// pending migrations. Returns true if migration version 1 was applied during
// this call (indicating a fresh database).
func runMigrations(ctx context.Context, db *sql.DB, migrations []migration) (bool, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return false, fmt.Errorf("creating schema_migrations table: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return false, err
	}

	freshDB := false
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if m.version == 1 {
			freshDB = true
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return false, err
		}
	}

	return freshDB, nil
}

// applyMigration runs a single schema migration inside a transaction.
func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("failed to rollback migration %d: %v", m.version, rbErr)
		}
		return fmt.Errorf("migration %d: %w", m.version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.version, time.Now().UTC(),
	); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("failed to rollback migration %d: %v", m.version, rbErr)
		}
		return fmt.Errorf("recording migration %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}

// SchemaVersion reports the highest applied migration version recorded in
// db's schema_migrations table. Used by the migrate/doctor CLI subcommands
// to report on-disk schema state without re-running OpenDB.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	return currentVersion(ctx, db)
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("querying current schema version: %w", err)
	}
	return v, nil
}

// DBSize returns the on-disk byte size of the database file at path, used by
// get_stats().
func DBSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat database file %q: %w", path, err)
	}
	return info.Size(), nil
}
