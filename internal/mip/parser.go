package mip

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/shaharia-lab/octave-core/internal/storage"
)

// ParsedBlock is one block segmented from assistant message content, not
// yet assigned an id or persisted. Order is the position in occurrence
// order, not a gap-free index.
type ParsedBlock struct {
	Type     storage.BlockType
	Content  string
	Metadata map[string]any
	Order    int
}

// ParseResult is parse_message_to_blocks's return value: the best-effort
// block set plus any non-fatal warnings encountered while segmenting.
type ParseResult struct {
	Blocks   []ParsedBlock
	Warnings []string
}

var md = goldmarkParser()

// goldmarkParser builds the shared goldmark instance. Only the GFM table
// extension is registered: strikethrough/autolink/tasklist rewrite inline
// text in ways that would fight the raw-source segmentation this parser
// relies on (segmentsText renders the original bytes, not goldmark's own
// HTML rendering), so the narrower extension.Table is used instead of the
// full extension.GFM bundle.
func goldmarkParser() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.Table))
}

// commandPromptRe matches a single shell-prompt-prefixed line, e.g.
// "$ npm install" or "> git status".
var commandPromptRe = regexp.MustCompile(`^\s*[$>]\s+\S`)

// ParseMessageToBlocks scans content and emits blocks in occurrence order.
// Fenced code becomes code/diff blocks (diff detected by language hint or a
// unified-diff body shape); goldmark's block AST drives list/table/quote
// segmentation; shell-prompt-prefixed paragraphs become command blocks;
// everything else between recognized segments is aggregated into text
// blocks. Parse errors never abort segmentation: on any panic-worthy AST
// shape the whole content falls back to one text block plus a warning.
func ParseMessageToBlocks(content string) (result ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ParseResult{
				Blocks:   []ParsedBlock{{Type: storage.BlockText, Content: content, Order: 0}},
				Warnings: []string{"block segmentation failed; content kept as one text block"},
			}
		}
	}()

	source := []byte(content)
	result = ParseResult{}

	doc := md.Parser().Parse(text.NewReader(source))
	if doc == nil || doc.ChildCount() == 0 {
		if strings.TrimSpace(content) != "" {
			result.Blocks = append(result.Blocks, ParsedBlock{Type: storage.BlockText, Content: content, Order: 0})
		}
		return result
	}

	order := 0
	var textBuf strings.Builder

	flushText := func() {
		if textBuf.Len() == 0 {
			return
		}
		trimmed := strings.TrimSpace(textBuf.String())
		if trimmed != "" {
			result.Blocks = append(result.Blocks, ParsedBlock{Type: storage.BlockText, Content: trimmed, Order: order})
			order++
		}
		textBuf.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			flushText()
			lang := string(node.Language(source))
			body := segmentsText(node.Lines(), source)
			block, warn := classifyFence(lang, body, order)
			result.Blocks = append(result.Blocks, block)
			if warn != "" {
				result.Warnings = append(result.Warnings, warn)
			}
			order++

		case *ast.List:
			flushText()
			result.Blocks = append(result.Blocks, buildListBlock(node, source, order))
			order++

		case *ast.Blockquote:
			flushText()
			result.Blocks = append(result.Blocks, buildQuoteBlock(node, source, order))
			order++

		case *east.Table:
			flushText()
			block, warn := buildTableBlock(node, source, order)
			result.Blocks = append(result.Blocks, block)
			if warn != "" {
				result.Warnings = append(result.Warnings, warn)
			}
			order++

		default:
			raw := nodeSource(n, source)
			if cmd, ok := commandBlock(raw, order); ok {
				flushText()
				result.Blocks = append(result.Blocks, cmd)
				order++
				continue
			}
			textBuf.WriteString(raw)
			textBuf.WriteString("\n\n")
		}
	}
	flushText()

	return result
}

// commandBlock recognizes a paragraph every one of whose non-blank lines
// is shell-prompt-prefixed ("$ ..." or "> ...") and turns it into a single
// command block. Mixed prose/command paragraphs fall through to the
// generic text aggregation.
func commandBlock(raw string, order int) (ParsedBlock, bool) {
	trimmed := strings.TrimRight(raw, "\n")
	if trimmed == "" {
		return ParsedBlock{}, false
	}

	lines := strings.Split(trimmed, "\n")
	commands := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if !commandPromptRe.MatchString(l) {
			return ParsedBlock{}, false
		}
		stripped := strings.TrimSpace(l)
		stripped = strings.TrimSpace(stripped[1:])
		commands = append(commands, stripped)
	}
	if len(commands) == 0 {
		return ParsedBlock{}, false
	}

	return ParsedBlock{
		Type:     storage.BlockCommand,
		Content:  trimmed,
		Metadata: map[string]any{"commands": commands},
		Order:    order,
	}, true
}

// buildListBlock renders a list node's items to a flat string slice,
// preserving ordering/unordered metadata for rendering and downstream use.
func buildListBlock(node *ast.List, source []byte, order int) ParsedBlock {
	var items []string
	for item := node.FirstChild(); item != nil; item = item.NextSibling() {
		itemText := strings.TrimSpace(collectText(item, source))
		if itemText != "" {
			items = append(items, itemText)
		}
	}

	return ParsedBlock{
		Type:    storage.BlockList,
		Content: strings.Join(items, "\n"),
		Metadata: map[string]any{
			"ordered": node.IsOrdered(),
			"items":   items,
		},
		Order: order,
	}
}

// buildQuoteBlock flattens a blockquote's descendant text into a single
// quote block.
func buildQuoteBlock(node *ast.Blockquote, source []byte, order int) ParsedBlock {
	quoted := strings.TrimSpace(collectText(node, source))
	return ParsedBlock{
		Type:    storage.BlockQuote,
		Content: quoted,
		Order:   order,
	}
}

// buildTableBlock extracts a GFM table's header row and body rows as
// plain string grids.
func buildTableBlock(node *east.Table, source []byte, order int) (ParsedBlock, string) {
	var headers []string
	var rows [][]string

	for row := node.FirstChild(); row != nil; row = row.NextSibling() {
		cells := rowCells(row, source)
		switch row.(type) {
		case *east.TableHeader:
			headers = cells
		case *east.TableRow:
			rows = append(rows, cells)
		}
	}

	content := renderTablePlain(headers, rows)
	return ParsedBlock{
		Type:    storage.BlockTable,
		Content: content,
		Metadata: map[string]any{
			"headers": headers,
			"rows":    rows,
		},
		Order: order,
	}, ""
}

// rowCells extracts each table cell's raw text. TableCell is itself a leaf
// block carrying its own Lines() segment (unlike ListItem/Blockquote,
// which wrap child paragraphs), so nodeSource reads it directly.
func rowCells(row ast.Node, source []byte) []string {
	var cells []string
	for c := row.FirstChild(); c != nil; c = c.NextSibling() {
		cells = append(cells, strings.TrimSpace(nodeSource(c, source)))
	}
	return cells
}

func renderTablePlain(headers []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(headers, " | "))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(strings.Join(r, " | "))
	}
	return b.String()
}

// collectText recursively renders a container node's descendant leaf-block
// source text (Paragraph, TextBlock, ...), skipping structural markup like
// list bullets and blockquote markers which goldmark strips from Lines().
func collectText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if lines := c.Lines(); lines != nil && lines.Len() > 0 {
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(strings.TrimSpace(segmentsText(lines, source)))
			continue
		}
		if c.ChildCount() > 0 {
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString(collectText(c, source))
		}
	}
	return b.String()
}

// segmentsText renders a goldmark text.Segments range back to a string.
func segmentsText(lines *text.Segments, source []byte) string {
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}

// nodeSource renders a block node's full source range, used for the
// catch-all "everything else" text aggregation.
func nodeSource(n ast.Node, source []byte) string {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return ""
	}
	return segmentsText(lines, source)
}

// classifyFence decides whether a fenced code block is a code or diff
// block based on its language hint or unified-diff shape.
func classifyFence(lang, body string, order int) (ParsedBlock, string) {
	normalizedLang := strings.ToLower(strings.TrimSpace(lang))
	if normalizedLang == "diff" || looksLikeDiff(body) {
		additions, deletions := countDiffLines(body)
		return ParsedBlock{
			Type:    storage.BlockDiff,
			Content: body,
			Metadata: map[string]any{
				"additions": additions,
				"deletions": deletions,
			},
			Order: order,
		}, ""
	}

	meta := map[string]any{}
	file := ""
	language := normalizedLang
	if idx := strings.Index(normalizedLang, ":"); idx >= 0 {
		language = normalizedLang[:idx]
		file = normalizedLang[idx+1:]
	}
	if language != "" {
		meta["language"] = language
	}
	if file != "" {
		meta["file"] = file
	}
	return ParsedBlock{Type: storage.BlockCode, Content: body, Metadata: meta, Order: order}, ""
}

func looksLikeDiff(body string) bool {
	lines := strings.Split(body, "\n")
	diffish := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "+++") || strings.HasPrefix(l, "---") || strings.HasPrefix(l, "@@") {
			diffish++
		}
	}
	return diffish >= 2
}

func countDiffLines(body string) (additions, deletions int) {
	for _, l := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(l, "+++") || strings.HasPrefix(l, "---"):
			continue
		case strings.HasPrefix(l, "+"):
			additions++
		case strings.HasPrefix(l, "-"):
			deletions++
		}
	}
	return additions, deletions
}
