package mip

import (
	"fmt"
	"strings"

	"github.com/shaharia-lab/octave-core/internal/storage"
)

// RenderBlocks renders a parsed block set back into markdown-ish source
// text. It exists only so the round-trip law in spec.md §8 can be tested
// (re-parsing the rendered output must be structurally equal, over block
// type and order, to parsing the original); it is not used by the
// ingestion pipeline itself.
func RenderBlocks(blocks []ParsedBlock) string {
	var b strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch blk.Type {
		case storage.BlockCode, storage.BlockDiff:
			lang := ""
			if blk.Type == storage.BlockDiff {
				lang = "diff"
			} else if l, ok := blk.Metadata["language"].(string); ok {
				lang = l
			}
			if file, ok := blk.Metadata["file"].(string); ok && file != "" {
				lang = fmt.Sprintf("%s:%s", lang, file)
			}
			b.WriteString("```")
			b.WriteString(lang)
			b.WriteString("\n")
			b.WriteString(blk.Content)
			if !strings.HasSuffix(blk.Content, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("```")
		case storage.BlockList:
			renderList(&b, blk)
		case storage.BlockQuote:
			renderQuote(&b, blk)
		case storage.BlockTable:
			renderTable(&b, blk)
		default:
			b.WriteString(blk.Content)
		}
	}
	return b.String()
}

// renderList renders a list block back into markdown bullet/numbered list
// syntax so it re-parses as an *ast.List.
func renderList(b *strings.Builder, blk ParsedBlock) {
	items, _ := blk.Metadata["items"].([]string)
	ordered, _ := blk.Metadata["ordered"].(bool)
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		if ordered {
			fmt.Fprintf(b, "%d. %s", i+1, item)
		} else {
			fmt.Fprintf(b, "- %s", item)
		}
	}
}

// renderQuote renders a quote block back into "> "-prefixed markdown so it
// re-parses as an *ast.Blockquote.
func renderQuote(b *strings.Builder, blk ParsedBlock) {
	for i, line := range strings.Split(blk.Content, "\n") {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("> ")
		b.WriteString(line)
	}
}

// renderTable renders a table block back into GFM table syntax (header row,
// dash separator, body rows) so it re-parses as an *east.Table.
func renderTable(b *strings.Builder, blk ParsedBlock) {
	headers, _ := blk.Metadata["headers"].([]string)
	rows, _ := blk.Metadata["rows"].([][]string)

	if len(headers) == 0 {
		return
	}

	b.WriteString("| ")
	b.WriteString(strings.Join(headers, " | "))
	b.WriteString(" |\n|")
	for range headers {
		b.WriteString(" --- |")
	}
	for _, row := range rows {
		b.WriteString("\n| ")
		b.WriteString(strings.Join(row, " | "))
		b.WriteString(" |")
	}
}
