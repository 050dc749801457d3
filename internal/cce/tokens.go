package cce

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenLimit is the fixed effective context window CCE budgets against.
const TokenLimit = 200000

// CompactThresholdPercent is the percentage of TokenLimit at or above
// which shouldCompact becomes true.
const CompactThresholdPercent = 80

// Tokenizer counts tokens in a string using a Claude-compatible encoding.
type Tokenizer interface {
	Count(text string) int
}

// tiktokenCounter wraps pkoukk/tiktoken-go's cl100k_base encoding, the
// nearest practical approximation of the Claude tokenizer available as a
// pure-Go library. If the encoding table fails to load (e.g. no network
// access to fetch the BPE ranks on first use), Count falls back to a
// len(text)/4 estimate, mirroring the SimpleTokenCounter shape used
// elsewhere in the ecosystem for the same reason.
type tiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewTokenizer returns the default CCE tokenizer.
func NewTokenizer() Tokenizer {
	return &tiktokenCounter{}
}

func (c *tiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
	})
	if c.err != nil || c.enc == nil {
		return fallbackCount(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func fallbackCount(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// TokenUsage is calculate_tokens's return value.
type TokenUsage struct {
	Current       int
	Limit         int
	Percentage    float64
	ShouldCompact bool
}

// CalculateTokens sums tokenize(msg) across messages and reports whether
// the result is at or above CompactThresholdPercent of TokenLimit.
// calculate_tokens([]) returns {current:0, limit:200000, percentage:0,
// shouldCompact:false}.
func CalculateTokens(tok Tokenizer, contents []string) TokenUsage {
	current := 0
	for _, c := range contents {
		current += tok.Count(c)
	}
	percentage := 0.0
	if TokenLimit > 0 {
		percentage = 100 * float64(current) / float64(TokenLimit)
		if percentage > 100 {
			percentage = 100
		}
	}
	return TokenUsage{
		Current:       current,
		Limit:         TokenLimit,
		Percentage:    percentage,
		ShouldCompact: percentage >= CompactThresholdPercent,
	}
}
