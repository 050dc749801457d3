package cce

import (
	"regexp"
	"strings"

	"github.com/shaharia-lab/octave-core/internal/storage"
)

// Importance enumerates a candidate message's classification tier.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

var (
	errorKeywordRe    = regexp.MustCompile(`(?i)\berror\b|\bexception\b|\bfailed\b|\bfailure\b|\btraceback\b`)
	decisionKeywordRe = regexp.MustCompile(`(?i)\b(decide|decided|choose|chose|architecture|design|implement|approach)\b`)
	filePathRe        = regexp.MustCompile("`[^`]+`|\\b[\\w./-]+\\.(go|ts|tsx|js|jsx|py|rb|java|rs|c|cc|cpp|h|hpp|md|json|yaml|yml|toml|sql)\\b")
)

// mentionsError reports whether text contains an error/exception keyword.
func mentionsError(text string) bool {
	return errorKeywordRe.MatchString(text)
}

// touchesFiles reports whether text references a file path, either as a
// back-tick quoted identifier or a bare path with a common source
// extension.
func touchesFiles(text string) bool {
	return filePathRe.MatchString(text)
}

// looksLikeDecision reports whether text contains a decision-signaling
// keyword.
func looksLikeDecision(text string) bool {
	return decisionKeywordRe.MatchString(text)
}

// CandidateMessage is the minimal shape classification and selection need
// from a storage.Message.
type CandidateMessage struct {
	ID        string
	Role      storage.Role
	Content   string
	Timestamp int64
}

// ClassifyImportance scores a message into {critical, high, medium, low}
// per spec.md §4.4's literal rule set.
func ClassifyImportance(msg CandidateMessage) Importance {
	hasError := mentionsError(msg.Content)
	hasFile := touchesFiles(msg.Content)
	isAssistant := msg.Role == storage.RoleAssistant
	isUser := msg.Role == storage.RoleUser

	switch {
	case hasError && hasFile:
		return ImportanceCritical
	case looksLikeDecision(msg.Content) || (isAssistant && hasFile):
		return ImportanceHigh
	case hasFile || hasError || isUser:
		return ImportanceMedium
	default:
		return ImportanceLow
	}
}

// HarvestContext extracts file-path references and back-tick quoted
// identifiers from text, for preservation through the summarizer.
func HarvestContext(text string) []string {
	matches := filePathRe.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.Trim(m, "`")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
