package cce_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shaharia-lab/octave-core/internal/cce"
)

type fixedTokenizer struct {
	perCall int
}

func (f fixedTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return f.perCall
}

func TestCalculateTokens_Empty(t *testing.T) {
	usage := cce.CalculateTokens(fixedTokenizer{perCall: 10}, nil)
	assert.Equal(t, 0, usage.Current)
	assert.Equal(t, cce.TokenLimit, usage.Limit)
	assert.Equal(t, float64(0), usage.Percentage)
	assert.False(t, usage.ShouldCompact)
}

func TestCalculateTokens_BelowThreshold(t *testing.T) {
	tok := fixedTokenizer{perCall: 1000}
	usage := cce.CalculateTokens(tok, []string{"a", "b"})
	assert.Equal(t, 2000, usage.Current)
	assert.False(t, usage.ShouldCompact)
}

func TestCalculateTokens_AtThreshold(t *testing.T) {
	tok := fixedTokenizer{perCall: cce.TokenLimit * 8 / 10}
	usage := cce.CalculateTokens(tok, []string{"x"})
	assert.True(t, usage.ShouldCompact)
	assert.GreaterOrEqual(t, usage.Percentage, float64(80))
}

func TestCalculateTokens_CapsPercentageAt100(t *testing.T) {
	tok := fixedTokenizer{perCall: cce.TokenLimit * 2}
	usage := cce.CalculateTokens(tok, []string{"x"})
	assert.Equal(t, float64(100), usage.Percentage)
	assert.True(t, usage.ShouldCompact)
}
