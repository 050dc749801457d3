package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
	"github.com/shaharia-lab/octave-core/internal/storage"
)

func newTestStore(t *testing.T) *storage.ConversationStore {
	t.Helper()
	db, fresh, err := storage.NewConversationsDB(filepath.Join(t.TempDir(), "conversations.db"))
	require.NoError(t, err)
	require.True(t, fresh)
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewConversationStore(db)
}

func newMessage(conversationID string, content string, ts int64) storage.Message {
	return storage.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           storage.RoleAssistant,
		Content:        content,
		Timestamp:      ts,
	}
}

// TestSaveMessageWithBlocks_Scenario1 is spec.md §8's literal block
// replacement scenario.
func TestSaveMessageWithBlocks_Scenario1(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conv, err := store.CreateConversation(ctx, "w", "t")
	require.NoError(t, err)

	m1 := newMessage(conv.ID, "hi", 1)
	require.NoError(t, store.SaveMessageWithBlocks(ctx, m1, []storage.Block{
		{ID: uuid.NewString(), Type: storage.BlockText, Content: "hi", Order: 0},
		{ID: uuid.NewString(), Type: storage.BlockCode, Content: "print(1)", Order: 1},
	}))

	m1Updated := m1
	m1Updated.Content = "hello"
	require.NoError(t, store.SaveMessageWithBlocks(ctx, m1Updated, []storage.Block{
		{ID: uuid.NewString(), Type: storage.BlockText, Content: "hello", Order: 0},
	}))

	blocks, err := store.GetBlocks(ctx, m1.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, storage.BlockText, blocks[0].Type)
	assert.Equal(t, "hello", blocks[0].Content)
	assert.Equal(t, 0, blocks[0].Order)
}

// TestConversations_Scenario3 is spec.md §8's literal active-conversation
// switch scenario.
func TestConversations_Scenario3(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	c1, err := store.CreateConversation(ctx, "w", "c1")
	require.NoError(t, err)
	c2, err := store.CreateConversation(ctx, "w", "c2")
	require.NoError(t, err)

	require.NoError(t, store.SetActive(ctx, "w", c1.ID))

	active, err := store.GetActiveConversation(ctx, "w")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, c1.ID, active.ID)

	list, err := store.ListConversations(ctx, "w")
	require.NoError(t, err)
	byID := map[string]storage.Conversation{}
	for _, c := range list {
		byID[c.ID] = c
	}
	assert.True(t, byID[c1.ID].Active)
	assert.False(t, byID[c2.ID].Active)
}

// TestDeleteMessagesAfter_Scenario6 is spec.md §8's literal retry-flow
// scenario.
func TestDeleteMessagesAfter_Scenario6(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conv, err := store.CreateConversation(ctx, "w", "t")
	require.NoError(t, err)

	m1 := newMessage(conv.ID, "m1", 1)
	m2 := newMessage(conv.ID, "m2", 2)
	m3 := newMessage(conv.ID, "m3", 3)
	require.NoError(t, store.SaveMessageWithBlocks(ctx, m1, nil))
	require.NoError(t, store.SaveMessageWithBlocks(ctx, m2, nil))
	require.NoError(t, store.SaveMessageWithBlocks(ctx, m3, nil))

	require.NoError(t, store.DeleteMessagesAfter(ctx, conv.ID, m2.ID))

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m1.ID, msgs[0].ID)
	assert.Equal(t, m2.ID, msgs[1].ID)

	_, err = store.GetMessage(ctx, m3.ID)
	require.Error(t, err)
	assert.True(t, octaveerr.Is(err, octaveerr.KindNotFound))
}

// TestMCPCall_Scenario5 is spec.md §8's literal tool-call-history scenario.
func TestMCPCall_Scenario5(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	callID := uuid.NewString()
	_, err := store.RecordMCPCallPending(ctx, callID, "server-echo", "server-echo", "tools/call", "echo", `{"x":1}`)
	require.NoError(t, err)

	result := `{"ok":true}`
	require.NoError(t, store.CompleteMCPCall(ctx, callID, storage.MCPCallSuccess, 5, &result, nil))

	calls, err := store.ListMCPCalls(ctx, "server-echo", 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, storage.MCPCallSuccess, calls[0].Status)
	assert.Equal(t, `{"x":1}`, calls[0].RequestParams)
	require.NotNil(t, calls[0].ResponseResult)
	assert.Equal(t, result, *calls[0].ResponseResult)
	assert.Nil(t, calls[0].ResponseError)
	assert.GreaterOrEqual(t, *calls[0].DurationMs, int64(0))
}

func TestMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.db")

	db1, fresh1, err := storage.NewConversationsDB(path)
	require.NoError(t, err)
	require.True(t, fresh1)
	require.NoError(t, db1.Close())

	db2, fresh2, err := storage.NewConversationsDB(path)
	require.NoError(t, err)
	require.False(t, fresh2)
	require.NoError(t, db2.Close())
}

func TestSetActive_NonexistentConversation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	err := store.SetActive(ctx, "w", "does-not-exist")
	require.Error(t, err)
	assert.True(t, octaveerr.Is(err, octaveerr.KindNotFound))
}

func TestDeleteMessage_CascadesBlocksAndReportsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conv, err := store.CreateConversation(ctx, "w", "t")
	require.NoError(t, err)

	m1 := newMessage(conv.ID, "m1", 1)
	require.NoError(t, store.SaveMessageWithBlocks(ctx, m1, []storage.Block{
		{ID: uuid.NewString(), Type: storage.BlockText, Content: "hi", Order: 0},
	}))

	require.NoError(t, store.DeleteMessage(ctx, m1.ID))

	_, err = store.GetMessage(ctx, m1.ID)
	require.Error(t, err)
	assert.True(t, octaveerr.Is(err, octaveerr.KindNotFound))

	blocks, err := store.GetBlocks(ctx, m1.ID)
	require.NoError(t, err)
	assert.Empty(t, blocks)

	err = store.DeleteMessage(ctx, m1.ID)
	require.Error(t, err)
	assert.True(t, octaveerr.Is(err, octaveerr.KindNotFound))
}

func TestListActiveConversations_AcrossWorkspaces(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	c1, err := store.CreateConversation(ctx, "w1", "a")
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "w2", "b")
	require.NoError(t, err)
	c3, err := store.CreateConversation(ctx, "w2", "c")
	require.NoError(t, err)
	require.NoError(t, store.SetActive(ctx, "w2", c3.ID))

	active, err := store.ListActiveConversations(ctx)
	require.NoError(t, err)
	ids := make(map[string]bool, len(active))
	for _, c := range active {
		ids[c.ID] = true
	}
	assert.True(t, ids[c1.ID])
	assert.True(t, ids[c3.ID])
	assert.Len(t, active, 2)
}
