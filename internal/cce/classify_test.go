package cce_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shaharia-lab/octave-core/internal/cce"
	"github.com/shaharia-lab/octave-core/internal/storage"
)

func TestClassifyImportance_Critical(t *testing.T) {
	msg := cce.CandidateMessage{
		Role:    storage.RoleAssistant,
		Content: "Error: could not compile `src/foo.ts`",
	}
	assert.Equal(t, cce.ImportanceCritical, cce.ClassifyImportance(msg))
}

func TestClassifyImportance_HighByDecisionKeyword(t *testing.T) {
	msg := cce.CandidateMessage{
		Role:    storage.RoleAssistant,
		Content: "Let's decide on the architecture for this module.",
	}
	assert.Equal(t, cce.ImportanceHigh, cce.ClassifyImportance(msg))
}

func TestClassifyImportance_HighByAssistantFileTouch(t *testing.T) {
	msg := cce.CandidateMessage{
		Role:    storage.RoleAssistant,
		Content: "I updated `src/bar.go` to fix the signature.",
	}
	assert.Equal(t, cce.ImportanceHigh, cce.ClassifyImportance(msg))
}

func TestClassifyImportance_MediumByUserMessage(t *testing.T) {
	msg := cce.CandidateMessage{
		Role:    storage.RoleUser,
		Content: "can you help with something unrelated",
	}
	assert.Equal(t, cce.ImportanceMedium, cce.ClassifyImportance(msg))
}

func TestClassifyImportance_Low(t *testing.T) {
	msg := cce.CandidateMessage{
		Role:    storage.RoleAssistant,
		Content: "Sounds good, thanks!",
	}
	assert.Equal(t, cce.ImportanceLow, cce.ClassifyImportance(msg))
}

func TestHarvestContext(t *testing.T) {
	refs := cce.HarvestContext("See `helper.go` and also src/main.py for details.")
	assert.Contains(t, refs, "helper.go")
	assert.Contains(t, refs, "src/main.py")
}
