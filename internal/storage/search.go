package storage

import (
	"context"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// SearchBlocks implements search_blocks as a plain substring match over
// block content, scoped to conversationID. FTS5 was tried and dropped (see
// the v3/v4 migrations): this fallback trades recall for the certainty that
// no trigger can silently desync an index from its table again.
func (s *ConversationStore) SearchBlocks(ctx context.Context, conversationID, query string, limit int) ([]Block, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.message_id, b.type, b.content, b.metadata, b.block_order, b.created_at
		FROM blocks b
		JOIN messages m ON m.id = b.message_id
		WHERE m.conversation_id = ? AND b.content LIKE '%' || ? || '%' ESCAPE '\'
		ORDER BY b.created_at DESC, b.id ASC
		LIMIT ?`, conversationID, escapeLike(query), limit)
	if err != nil {
		return nil, octaveerr.Wrap("search_blocks", octaveerr.KindDbError, err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var b Block
		var typ string
		if err := rows.Scan(&b.ID, &b.MessageID, &typ, &b.Content, &b.Metadata, &b.Order, &b.CreatedAt); err != nil {
			return nil, octaveerr.Wrap("search_blocks", octaveerr.KindDbError, err)
		}
		b.Type = BlockType(typ)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, octaveerr.Wrap("search_blocks", octaveerr.KindDbError, err)
	}
	return out, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
