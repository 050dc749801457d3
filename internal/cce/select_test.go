package cce_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/octave-core/internal/cce"
	"github.com/shaharia-lab/octave-core/internal/octaveerr"
	"github.com/shaharia-lab/octave-core/internal/storage"
)

func TestSmartSelect_TooFewMessages(t *testing.T) {
	messages := make([]cce.CandidateMessage, 5)
	_, err := cce.SmartSelect(messages, cce.DefaultSelectionParams())
	require.Error(t, err)
	assert.True(t, octaveerr.Is(err, octaveerr.KindTooFewMessages))
}

// TestSmartSelect_Scenario4 is spec.md §8's literal scenario 4.
func TestSmartSelect_Scenario4(t *testing.T) {
	messages := make([]cce.CandidateMessage, 50)
	for i := range messages {
		messages[i] = cce.CandidateMessage{
			ID:        "m",
			Role:      storage.RoleUser,
			Content:   "small talk",
			Timestamp: int64(i),
		}
	}
	messages[19].Content = "Error: X in src/foo.ts"
	messages[19].Role = storage.RoleAssistant

	sel, err := cce.SmartSelect(messages, cce.DefaultSelectionParams())
	require.NoError(t, err)

	keptIDs := map[int]bool{}
	for _, m := range sel.Kept {
		keptIDs[int(m.Timestamp)] = true
	}

	for i := 0; i < 3; i++ {
		assert.True(t, keptIDs[i], "message %d should be kept (initial)", i)
	}
	for i := 40; i < 50; i++ {
		assert.True(t, keptIDs[i], "message %d should be kept (recent)", i)
	}
	assert.True(t, keptIDs[19], "message 19 should be kept (critical)")

	for i := 3; i < 40; i++ {
		if i == 19 {
			continue
		}
		assert.False(t, keptIDs[i], "message %d should be summarized", i)
	}
	assert.Len(t, sel.Summarize, 40-3-1)
}

func TestSmartSelect_EmptySummarizeSetFails(t *testing.T) {
	messages := make([]cce.CandidateMessage, 20)
	for i := range messages {
		messages[i] = cce.CandidateMessage{Timestamp: int64(i)}
	}
	// keepInitial=3, keepRecent=10 over 20 messages leaves a 7-message
	// middle (indices 3..9); make all of them critical so summarize is empty.
	for i := 3; i < 10; i++ {
		messages[i].Role = storage.RoleAssistant
		messages[i].Content = "Error: in `x.go`"
	}

	_, err := cce.SmartSelect(messages, cce.DefaultSelectionParams())
	require.Error(t, err)
	assert.True(t, octaveerr.Is(err, octaveerr.KindTooFewMessages))
}
