package cce

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	claude "github.com/shaharia-lab/claude-agent-sdk-go/claude"
	"golang.org/x/time/rate"

	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// truncatedMarker is appended when a message's content is cut for the
// compact prompt.
const truncatedMarker = "[truncated]"

// maxMessageChars is the per-message truncation length used when building
// the compact prompt.
const maxMessageChars = 2000

// DefaultMaxCompactAttempts bounds the retry/backoff loop around the
// one-shot AI CLI invocation.
const DefaultMaxCompactAttempts = 3

// CompactResult is compact's success return value.
type CompactResult struct {
	Summary         string
	Kept            []CandidateMessage
	SummarizedCount int
	TokensBefore    int
	TokensAfter     int
}

// compactResponse is the JSON shape the one-shot AI CLI invocation is
// instructed to respond with: a single text block carrying the summary.
type compactResponse struct {
	Summary string `json:"summary"`
}

// Compactor drives the compact protocol: smart selection, prompt
// construction, a one-shot AI CLI invocation with retry/backoff, and
// final token accounting.
type Compactor struct {
	tok         Tokenizer
	params      SelectionParams
	maxAttempts int
	limiter     *rate.Limiter
}

// NewCompactor builds a Compactor with spec.md defaults.
func NewCompactor(tok Tokenizer) *Compactor {
	return &Compactor{
		tok:         tok,
		params:      DefaultSelectionParams(),
		maxAttempts: DefaultMaxCompactAttempts,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// WithSelectionParams overrides the keepInitial/keepRecent parameters.
func (c *Compactor) WithSelectionParams(p SelectionParams) *Compactor {
	c.params = p
	return c
}

// WithMaxAttempts overrides the retry budget.
func (c *Compactor) WithMaxAttempts(n int) *Compactor {
	c.maxAttempts = n
	return c
}

// Compact runs the full compact protocol over messages. It fails fast
// with TooFewMessages (without spawning the AI CLI) if there are fewer
// than MinMessagesForCompact messages, or if the smart-selection
// to-summarize set ends up empty. On success it returns
// {summary, kept, summarized_count, tokens_before, tokens_after}. No
// partial summary is ever persisted by this function; the caller owns
// committing the result.
func (c *Compactor) Compact(ctx context.Context, messages []CandidateMessage) (*CompactResult, error) {
	sel, err := SmartSelect(messages, c.params)
	if err != nil {
		return nil, err
	}

	tokensBefore := 0
	for _, m := range messages {
		tokensBefore += c.tok.Count(m.Content)
	}

	harvested := harvestAll(sel.Summarize)
	prompt := buildCompactPrompt(sel.Summarize, harvested)

	summary, err := c.runCompactWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	tokensAfter := c.tok.Count(summary)
	for _, m := range sel.Kept {
		tokensAfter += c.tok.Count(m.Content)
	}

	return &CompactResult{
		Summary:         summary,
		Kept:            sel.Kept,
		SummarizedCount: len(sel.Summarize),
		TokensBefore:    tokensBefore,
		TokensAfter:     tokensAfter,
	}, nil
}

func harvestAll(messages []CandidateMessage) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range messages {
		for _, ref := range HarvestContext(m.Content) {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}

// buildCompactPrompt renders a structured prompt: the numbered,
// timestamped conversation to summarize (each message truncated to
// ~2000 chars with a "[truncated]" marker) plus the harvested context
// list, with an instruction to respond as JSON with a single "summary"
// field.
func buildCompactPrompt(messages []CandidateMessage, harvested []string) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation segment. ")
	b.WriteString("Preserve the goal, decisions made, and any blockers. ")
	b.WriteString("Preserve references to these files and identifiers verbatim: ")
	b.WriteString(strings.Join(harvested, ", "))
	b.WriteString(".\n\n")
	b.WriteString("Respond with a single JSON object of the shape {\"summary\": \"...\"} and nothing else.\n\n")

	for i, m := range messages {
		ts := time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339)
		content := m.Content
		if len(content) > maxMessageChars {
			content = content[:maxMessageChars] + " " + truncatedMarker
		}
		fmt.Fprintf(&b, "%d. [%s] (%s)\n%s\n\n", i+1, m.Role, ts, content)
	}

	return b.String()
}

// runCompactWithRetry spawns the AI CLI in one-shot mode and retries on
// non-zero exit, stderr failure, or JSON parse failure, with exponential
// backoff up to maxAttempts. Cancellation aborts the child process and
// surfaces Cancelled.
func (c *Compactor) runCompactWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", octaveerr.New("cce.Compact", octaveerr.KindCancelled, err)
		}

		summary, err := c.runCompactOnce(ctx, prompt)
		if err == nil {
			return summary, nil
		}
		lastErr = err

		if octaveerr.Is(err, octaveerr.KindCancelled) {
			return "", err
		}

		if attempt < c.maxAttempts {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", octaveerr.New("cce.Compact", octaveerr.KindCancelled, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return "", octaveerr.New("cce.Compact", octaveerr.KindModelError, lastErr)
}

// runCompactOnce performs one AI CLI invocation attempt.
func (c *Compactor) runCompactOnce(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", octaveerr.New("cce.Compact", octaveerr.KindCancelled, err)
	}

	stream, err := claude.Query(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", octaveerr.New("cce.Compact", octaveerr.KindCancelled, err)
		}
		return "", octaveerr.New("cce.Compact", octaveerr.KindModelError, err)
	}

	var resultText string
	var resultErr error
	for event := range stream.Events() {
		switch event.Type {
		case claude.TypeResult:
			if event.Result == nil {
				continue
			}
			if event.Result.IsError {
				msg := event.Result.Result
				if msg == "" && len(event.Result.Errors) > 0 {
					msg = strings.Join(event.Result.Errors, "; ")
				}
				resultErr = fmt.Errorf("agent error: %s", msg)
			} else {
				resultText = event.Result.Result
			}
		}
	}

	if ctx.Err() != nil {
		return "", octaveerr.New("cce.Compact", octaveerr.KindCancelled, ctx.Err())
	}
	if resultErr != nil {
		return "", octaveerr.New("cce.Compact", octaveerr.KindModelError, resultErr)
	}

	var resp compactResponse
	if err := json.Unmarshal([]byte(resultText), &resp); err != nil {
		return "", octaveerr.New("cce.Compact", octaveerr.KindParseError, err)
	}
	if resp.Summary == "" {
		return "", octaveerr.New("cce.Compact", octaveerr.KindParseError, fmt.Errorf("empty summary in response"))
	}

	return resp.Summary, nil
}
