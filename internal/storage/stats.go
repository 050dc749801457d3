package storage

import (
	"context"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// Stats is the structured response get_stats returns: per-table row counts
// plus the on-disk size of the conversations database.
type Stats struct {
	Conversations   int64 `json:"conversations"`
	Messages        int64 `json:"messages"`
	Blocks          int64 `json:"blocks"`
	BlockBookmarks  int64 `json:"block_bookmarks"`
	BlockExecutions int64 `json:"block_executions"`
	Todos           int64 `json:"todos"`
	Plans           int64 `json:"plans"`
	MCPCalls        int64 `json:"mcp_calls"`
	DatabaseBytes   int64 `json:"database_bytes"`
}

// GetStats reports row counts across every conversations-database table
// plus the database's on-disk size at dbPath.
func (s *ConversationStore) GetStats(ctx context.Context, dbPath string) (*Stats, error) {
	var st Stats
	counts := []struct {
		table string
		dest  *int64
	}{
		{"conversations", &st.Conversations},
		{"messages", &st.Messages},
		{"blocks", &st.Blocks},
		{"block_bookmarks", &st.BlockBookmarks},
		{"block_executions", &st.BlockExecutions},
		{"todos", &st.Todos},
		{"plans", &st.Plans},
		{"mcp_calls", &st.MCPCalls},
	}

	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dest); err != nil {
			return nil, octaveerr.Wrap("get_stats", octaveerr.KindDbError, err)
		}
	}

	size, err := DBSize(dbPath)
	if err != nil {
		return nil, octaveerr.Wrap("get_stats", octaveerr.KindStorageInit, err)
	}
	st.DatabaseBytes = size

	return &st, nil
}
