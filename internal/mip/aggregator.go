package mip

import (
	"fmt"
	"path"
	"strings"

	"github.com/shaharia-lab/octave-core/internal/storage"
)

// ChangeType enumerates a tracked file's change kind.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// FileChange is one entry in the aggregator, keyed by normalized path.
type FileChange struct {
	FilePath   string
	ChangeType ChangeType
	Additions  int
	Deletions  int
}

// EditCall is an Edit tool call's relevant fields.
type EditCall struct {
	FilePath  string
	OldString string
	NewString string
}

// WriteCall is a Write tool call's relevant fields.
type WriteCall struct {
	FilePath string
	Content  string
}

// FileChangeAggregator accumulates file-level changes across the tool
// calls and diff blocks seen while processing one assistant message, and
// emits a single file-summary block at turn end. It is keyed by the
// workspace-relative normalized path, so duplicate entries for the same
// file collapse deterministically.
type FileChangeAggregator struct {
	workspaceRoot string
	order         []string
	entries       map[string]*FileChange
	warnings      []string
}

// NewFileChangeAggregator seeds an aggregator with the workspace root used
// for path normalization.
func NewFileChangeAggregator(workspaceRoot string) *FileChangeAggregator {
	return &FileChangeAggregator{
		workspaceRoot: filepathToSlash(workspaceRoot),
		entries:       make(map[string]*FileChange),
	}
}

// Warnings returns the normalization warnings accumulated so far (e.g.
// paths dropped for falling outside the workspace root).
func (a *FileChangeAggregator) Warnings() []string {
	return append([]string(nil), a.warnings...)
}

// AddEdit records an Edit tool call: additions/deletions are computed from
// a set-difference diff of old_string/new_string's lines.
func (a *FileChangeAggregator) AddEdit(call EditCall) {
	rel, ok := a.normalize(call.FilePath)
	if !ok {
		return
	}
	additions, deletions := lineSetDiff(call.OldString, call.NewString)
	a.upsert(rel, ChangeModified, additions, deletions)
}

// AddWrite records a Write tool call: a create if no prior entry exists for
// the path, otherwise a modification. Additions are the new content's line
// count; deletions are always 0.
func (a *FileChangeAggregator) AddWrite(call WriteCall) {
	rel, ok := a.normalize(call.FilePath)
	if !ok {
		return
	}
	additions := countLines(call.Content)
	changeType := ChangeModified
	if _, exists := a.entries[rel]; !exists {
		changeType = ChangeCreated
	}
	a.upsert(rel, changeType, additions, 0)
}

// AddDiffBlock records a diff block's file path, additions, and deletions.
// parser.go's classifyFence puts only the additions and deletions in a diff
// block's metadata; the file path comes from the caller.
func (a *FileChangeAggregator) AddDiffBlock(filePath string, additions, deletions int) {
	rel, ok := a.normalize(filePath)
	if !ok {
		return
	}
	a.upsert(rel, ChangeModified, additions, deletions)
}

// AddGitDiff parses unified `git diff` text output and records one entry
// per file section (`diff --git a/... b/...`, `new file mode`,
// `deleted file mode`, and `+`/`-` line counts).
func (a *FileChangeAggregator) AddGitDiff(gitDiffText string) {
	var currentPath string
	var changeType ChangeType
	additions, deletions := 0, 0
	flush := func() {
		if currentPath == "" {
			return
		}
		rel, ok := a.normalize(currentPath)
		if ok {
			a.upsert(rel, changeType, additions, deletions)
		}
	}

	for _, line := range strings.Split(gitDiffText, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			currentPath = parseGitDiffHeaderPath(line)
			changeType = ChangeModified
			additions, deletions = 0, 0
		case strings.HasPrefix(line, "new file mode"):
			changeType = ChangeCreated
		case strings.HasPrefix(line, "deleted file mode"):
			changeType = ChangeDeleted
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			// header lines, not content
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	flush()
}

// HasEntries reports whether any file has been tracked.
func (a *FileChangeAggregator) HasEntries() bool {
	return len(a.entries) > 0
}

// Emit builds the file-summary ParsedBlock per spec: metadata
// {files[], totalFiles, totalAdditions, totalDeletions}, order=9999.
// Call only when HasEntries reports true.
func (a *FileChangeAggregator) Emit() ParsedBlock {
	files := make([]map[string]any, 0, len(a.order))
	totalAdditions, totalDeletions := 0, 0
	for _, key := range a.order {
		e := a.entries[key]
		files = append(files, map[string]any{
			"filePath":   e.FilePath,
			"changeType": string(e.ChangeType),
			"additions":  e.Additions,
			"deletions":  e.Deletions,
		})
		totalAdditions += e.Additions
		totalDeletions += e.Deletions
	}
	return ParsedBlock{
		Type:    storage.BlockFileSummary,
		Content: "",
		Metadata: map[string]any{
			"files":           files,
			"totalFiles":      len(files),
			"totalAdditions":  totalAdditions,
			"totalDeletions":  totalDeletions,
		},
		Order: storage.FileSummaryOrder,
	}
}

func (a *FileChangeAggregator) upsert(relPath string, changeType ChangeType, additions, deletions int) {
	if existing, ok := a.entries[relPath]; ok {
		existing.ChangeType = changeType
		existing.Additions += additions
		existing.Deletions += deletions
		return
	}
	a.entries[relPath] = &FileChange{
		FilePath:   relPath,
		ChangeType: changeType,
		Additions:  additions,
		Deletions:  deletions,
	}
	a.order = append(a.order, relPath)
}

// normalize rewrites a tracked path to be workspace-relative. Absolute
// paths outside the workspace root are dropped with a warning. `./`
// prefixes and back-slashes are normalized to forward-slash relative
// paths.
func (a *FileChangeAggregator) normalize(rawPath string) (string, bool) {
	p := filepathToSlash(rawPath)
	p = strings.TrimPrefix(p, "./")

	if path.IsAbs(p) {
		root := strings.TrimSuffix(a.workspaceRoot, "/")
		if root == "" || (p != root && !strings.HasPrefix(p, root+"/")) {
			a.warnings = append(a.warnings, fmt.Sprintf("path %q is outside the workspace root, dropped", rawPath))
			return "", false
		}
		rel := strings.TrimPrefix(p, root)
		rel = strings.TrimPrefix(rel, "/")
		return path.Clean(rel), true
	}

	return path.Clean(p), true
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return len(strings.Split(s, "\n"))
}

// lineSetDiff computes additions/deletions as a set-difference of lines:
// lines unique to the new side count as additions, lines unique to the
// old side count as deletions.
func lineSetDiff(oldString, newString string) (additions, deletions int) {
	oldLines := strings.Split(oldString, "\n")
	newLines := strings.Split(newString, "\n")

	oldCount := make(map[string]int, len(oldLines))
	for _, l := range oldLines {
		oldCount[l]++
	}
	newCount := make(map[string]int, len(newLines))
	for _, l := range newLines {
		newCount[l]++
	}

	for line, n := range newCount {
		if over := n - oldCount[line]; over > 0 {
			additions += over
		}
	}
	for line, n := range oldCount {
		if over := n - newCount[line]; over > 0 {
			deletions += over
		}
	}
	return additions, deletions
}

// LineDiff is one line of a line-by-line diff view, used for detailed
// rendering of an Edit call beyond the aggregate add/delete counts.
type LineDiff struct {
	Op   string // "add", "remove", "unchanged"
	Text string
}

// DiffLines produces a line-by-line diff (add/remove/unchanged) between
// old and new content for detailed views, using a simple LCS-less
// longest-common-prefix/suffix reduction around the changed middle.
func DiffLines(oldString, newString string) []LineDiff {
	oldLines := strings.Split(oldString, "\n")
	newLines := strings.Split(newString, "\n")

	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	oldSuffix, newSuffix := len(oldLines), len(newLines)
	for oldSuffix > prefix && newSuffix > prefix && oldLines[oldSuffix-1] == newLines[newSuffix-1] {
		oldSuffix--
		newSuffix--
	}

	var out []LineDiff
	for _, l := range oldLines[:prefix] {
		out = append(out, LineDiff{Op: "unchanged", Text: l})
	}
	for _, l := range oldLines[prefix:oldSuffix] {
		out = append(out, LineDiff{Op: "remove", Text: l})
	}
	for _, l := range newLines[prefix:newSuffix] {
		out = append(out, LineDiff{Op: "add", Text: l})
	}
	for _, l := range oldLines[oldSuffix:] {
		out = append(out, LineDiff{Op: "unchanged", Text: l})
	}
	return out
}

func parseGitDiffHeaderPath(line string) string {
	// "diff --git a/src/foo.ts b/src/foo.ts"
	fields := strings.Fields(line)
	for _, f := range fields {
		if strings.HasPrefix(f, "b/") {
			return strings.TrimPrefix(f, "b/")
		}
	}
	if len(fields) > 0 {
		return strings.TrimPrefix(fields[len(fields)-1], "b/")
	}
	return ""
}
