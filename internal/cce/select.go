package cce

import (
	"github.com/shaharia-lab/octave-core/internal/octaveerr"
)

// MinMessagesForCompact is the minimum candidate set size compact() will
// operate on; below it, compact fails fast with TooFewMessages and never
// spawns the AI CLI.
const MinMessagesForCompact = 20

// SelectionParams tunes smart selection's keep windows.
type SelectionParams struct {
	KeepInitial int
	KeepRecent  int
}

// DefaultSelectionParams returns spec.md §4.4's defaults.
func DefaultSelectionParams() SelectionParams {
	return SelectionParams{KeepInitial: 3, KeepRecent: 10}
}

// Selection is smart_selection's result: messages kept verbatim (in
// original chronological order) and messages destined for the summarizer.
type Selection struct {
	Kept      []CandidateMessage
	Summarize []CandidateMessage
}

// SmartSelect partitions messages per spec.md §4.4: keep the first
// KeepInitial and last KeepRecent messages; from the middle, keep every
// message classified critical or high, and send the rest to the
// summarizer. Fails with TooFewMessages if input has fewer than
// MinMessagesForCompact messages or if the to-summarize set ends up
// empty.
func SmartSelect(messages []CandidateMessage, params SelectionParams) (Selection, error) {
	if len(messages) < MinMessagesForCompact {
		return Selection{}, octaveerr.New("cce.SmartSelect", octaveerr.KindTooFewMessages, nil)
	}

	initialEnd := params.KeepInitial
	if initialEnd > len(messages) {
		initialEnd = len(messages)
	}
	recentStart := len(messages) - params.KeepRecent
	if recentStart < initialEnd {
		recentStart = initialEnd
	}

	sel := Selection{}
	sel.Kept = append(sel.Kept, messages[:initialEnd]...)

	for _, m := range messages[initialEnd:recentStart] {
		switch ClassifyImportance(m) {
		case ImportanceCritical, ImportanceHigh:
			sel.Kept = append(sel.Kept, m)
		default:
			sel.Summarize = append(sel.Summarize, m)
		}
	}

	sel.Kept = append(sel.Kept, messages[recentStart:]...)

	if len(sel.Summarize) == 0 {
		return Selection{}, octaveerr.New("cce.SmartSelect", octaveerr.KindTooFewMessages, nil)
	}

	return sel, nil
}
