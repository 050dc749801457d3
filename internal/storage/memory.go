package storage

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// MemoryStore wraps the memory.db handle, persisting ProjectMemory rows
// keyed uniquely by (project_path, key).
type MemoryStore struct {
	db *sql.DB
}

// NewMemoryStore wraps an already-opened memory database handle.
func NewMemoryStore(db *sql.DB) *MemoryStore {
	return &MemoryStore{db: db}
}

// Upsert inserts or updates a ProjectMemory entry, bumping its usage count
// and updated_at. The (project_path, key) unique index decides whether this
// is an insert or an overwrite.
func (s *MemoryStore) Upsert(ctx context.Context, m ProjectMemory) (*ProjectMemory, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
		m.CreatedAt = epochMillisNow()
	}
	m.UpdatedAt = epochMillisNow()
	if m.Priority == "" {
		m.Priority = MemoryPriorityMedium
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_memory (id, project_path, type, key, value, priority, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_path, key) DO UPDATE SET
			type = excluded.type,
			value = excluded.value,
			priority = excluded.priority,
			usage_count = project_memory.usage_count + 1,
			updated_at = excluded.updated_at`,
		m.ID, m.ProjectPath, string(m.Type), m.Key, m.Value, string(m.Priority), m.UsageCount, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, octaveerr.Wrap("memory_upsert", octaveerr.KindDbConstraint, err)
	}
	return &m, nil
}

// Get returns a single memory entry by project path and key.
func (s *MemoryStore) Get(ctx context.Context, projectPath, key string) (*ProjectMemory, error) {
	var m ProjectMemory
	var typ, priority string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_path, type, key, value, priority, usage_count, created_at, updated_at
		FROM project_memory WHERE project_path = ? AND key = ?`, projectPath, key,
	).Scan(&m.ID, &m.ProjectPath, &typ, &m.Key, &m.Value, &priority, &m.UsageCount, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, octaveerr.New("memory_get", octaveerr.KindNotFound, nil)
	}
	if err != nil {
		return nil, octaveerr.Wrap("memory_get", octaveerr.KindDbError, err)
	}
	m.Type = MemoryType(typ)
	m.Priority = MemoryPriority(priority)
	return &m, nil
}

// List returns every memory entry for projectPath, highest priority first.
func (s *MemoryStore) List(ctx context.Context, projectPath string) ([]ProjectMemory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_path, type, key, value, priority, usage_count, created_at, updated_at
		FROM project_memory WHERE project_path = ?
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, updated_at DESC`,
		projectPath)
	if err != nil {
		return nil, octaveerr.Wrap("memory_list", octaveerr.KindDbError, err)
	}
	defer rows.Close()

	var out []ProjectMemory
	for rows.Next() {
		var m ProjectMemory
		var typ, priority string
		if err := rows.Scan(&m.ID, &m.ProjectPath, &typ, &m.Key, &m.Value, &priority, &m.UsageCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, octaveerr.Wrap("memory_list", octaveerr.KindDbError, err)
		}
		m.Type = MemoryType(typ)
		m.Priority = MemoryPriority(priority)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, octaveerr.Wrap("memory_list", octaveerr.KindDbError, err)
	}
	return out, nil
}

// Delete removes a memory entry by project path and key.
func (s *MemoryStore) Delete(ctx context.Context, projectPath, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM project_memory WHERE project_path = ? AND key = ?`, projectPath, key)
	if err != nil {
		return octaveerr.Wrap("memory_delete", octaveerr.KindDbError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return octaveerr.New("memory_delete", octaveerr.KindNotFound, nil)
	}
	return nil
}
