package cce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCompactPrompt_Truncation(t *testing.T) {
	long := strings.Repeat("a", maxMessageChars+500)
	messages := []CandidateMessage{{Role: "user", Content: long, Timestamp: 0}}

	prompt := buildCompactPrompt(messages, nil)

	assert.Contains(t, prompt, truncatedMarker)
	assert.NotContains(t, prompt, strings.Repeat("a", maxMessageChars+1))
}

func TestBuildCompactPrompt_IncludesHarvestedContext(t *testing.T) {
	prompt := buildCompactPrompt(nil, []string{"src/a.go", "src/b.go"})
	assert.Contains(t, prompt, "src/a.go")
	assert.Contains(t, prompt, "src/b.go")
}

func TestHarvestAll_Dedupes(t *testing.T) {
	messages := []CandidateMessage{
		{Content: "see `x.go`"},
		{Content: "again `x.go` and `y.go`"},
	}
	refs := harvestAll(messages)
	assert.ElementsMatch(t, []string{"x.go", "y.go"}, refs)
}
