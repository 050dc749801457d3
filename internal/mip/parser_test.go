package mip_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/octave-core/internal/mip"
	"github.com/shaharia-lab/octave-core/internal/storage"
)

func TestParseMessageToBlocks_TextOnly(t *testing.T) {
	result := mip.ParseMessageToBlocks("just a plain sentence.")
	require.Len(t, result.Blocks, 1)
	assert.Equal(t, storage.BlockText, result.Blocks[0].Type)
	assert.Equal(t, "just a plain sentence.", result.Blocks[0].Content)
}

func TestParseMessageToBlocks_CodeFence(t *testing.T) {
	content := "Here is a fix:\n\n```go:main.go\nfunc main() {}\n```\n\nDone."
	result := mip.ParseMessageToBlocks(content)

	require.Len(t, result.Blocks, 3)
	assert.Equal(t, storage.BlockText, result.Blocks[0].Type)
	assert.Equal(t, storage.BlockCode, result.Blocks[1].Type)
	assert.Equal(t, "go", result.Blocks[1].Metadata["language"])
	assert.Equal(t, "main.go", result.Blocks[1].Metadata["file"])
	assert.Equal(t, storage.BlockText, result.Blocks[2].Type)

	for i, blk := range result.Blocks {
		assert.Equal(t, i, blk.Order)
	}
}

func TestParseMessageToBlocks_DiffByLanguageHint(t *testing.T) {
	content := "```diff\n+++ b/a.go\n--- a/a.go\n+line one\n-line two\n```"
	result := mip.ParseMessageToBlocks(content)

	require.Len(t, result.Blocks, 1)
	assert.Equal(t, storage.BlockDiff, result.Blocks[0].Type)
	assert.Equal(t, 1, result.Blocks[0].Metadata["additions"])
	assert.Equal(t, 1, result.Blocks[0].Metadata["deletions"])
}

func TestParseMessageToBlocks_DiffByShapeHeuristic(t *testing.T) {
	content := "```\n--- a/a.go\n+++ b/a.go\n@@ -1,1 +1,1 @@\n-old\n+new\n```"
	result := mip.ParseMessageToBlocks(content)

	require.Len(t, result.Blocks, 1)
	assert.Equal(t, storage.BlockDiff, result.Blocks[0].Type)
}

func TestParseMessageToBlocks_Empty(t *testing.T) {
	result := mip.ParseMessageToBlocks("")
	assert.Empty(t, result.Blocks)
	assert.Empty(t, result.Warnings)
}

func TestParseMessageToBlocks_OrderStableAcrossReparse(t *testing.T) {
	content := "intro\n\n```go\nfmt.Println(1)\n```\n\n```go\nfmt.Println(2)\n```\n\noutro"
	first := mip.ParseMessageToBlocks(content)
	second := mip.ParseMessageToBlocks(content)

	require.Equal(t, len(first.Blocks), len(second.Blocks))
	for i := range first.Blocks {
		assert.Equal(t, first.Blocks[i].Type, second.Blocks[i].Type)
		assert.Equal(t, first.Blocks[i].Order, second.Blocks[i].Order)
	}
}

func TestParseMessageToBlocks_UnorderedList(t *testing.T) {
	content := "- first item\n- second item\n- third item"
	result := mip.ParseMessageToBlocks(content)

	require.Len(t, result.Blocks, 1)
	assert.Equal(t, storage.BlockList, result.Blocks[0].Type)
	assert.Equal(t, false, result.Blocks[0].Metadata["ordered"])
	assert.Equal(t, []string{"first item", "second item", "third item"}, result.Blocks[0].Metadata["items"])
}

func TestParseMessageToBlocks_OrderedList(t *testing.T) {
	content := "1. step one\n2. step two"
	result := mip.ParseMessageToBlocks(content)

	require.Len(t, result.Blocks, 1)
	assert.Equal(t, storage.BlockList, result.Blocks[0].Type)
	assert.Equal(t, true, result.Blocks[0].Metadata["ordered"])
	assert.Equal(t, []string{"step one", "step two"}, result.Blocks[0].Metadata["items"])
}

func TestParseMessageToBlocks_Blockquote(t *testing.T) {
	content := "> this is important\n> keep it verbatim"
	result := mip.ParseMessageToBlocks(content)

	require.Len(t, result.Blocks, 1)
	assert.Equal(t, storage.BlockQuote, result.Blocks[0].Type)
	assert.Contains(t, result.Blocks[0].Content, "this is important")
	assert.Contains(t, result.Blocks[0].Content, "keep it verbatim")
}

func TestParseMessageToBlocks_Table(t *testing.T) {
	content := "| name | status |\n| --- | --- |\n| a.go | modified |\n| b.go | created |"
	result := mip.ParseMessageToBlocks(content)

	require.Len(t, result.Blocks, 1)
	assert.Equal(t, storage.BlockTable, result.Blocks[0].Type)
	assert.Equal(t, []string{"name", "status"}, result.Blocks[0].Metadata["headers"])
	assert.Equal(t, [][]string{{"a.go", "modified"}, {"b.go", "created"}}, result.Blocks[0].Metadata["rows"])
}

func TestParseMessageToBlocks_CommandPrompt(t *testing.T) {
	content := "$ npm install\n$ npm test"
	result := mip.ParseMessageToBlocks(content)

	require.Len(t, result.Blocks, 1)
	assert.Equal(t, storage.BlockCommand, result.Blocks[0].Type)
	assert.Equal(t, []string{"npm install", "npm test"}, result.Blocks[0].Metadata["commands"])
}

func TestParseMessageToBlocks_ProseLineNotTreatedAsCommand(t *testing.T) {
	content := "Run it like this:\n$ npm test\nand check the output."
	result := mip.ParseMessageToBlocks(content)
	require.Len(t, result.Blocks, 1)
	assert.Equal(t, storage.BlockText, result.Blocks[0].Type)
}

func TestParseMessageToBlocks_RoundTripLaw(t *testing.T) {
	content := "Summary text.\n\n```go:pkg/a.go\nfunc A() {}\n```\n\nMore text."
	original := mip.ParseMessageToBlocks(content)
	rendered := mip.RenderBlocks(original.Blocks)
	reparsed := mip.ParseMessageToBlocks(rendered)

	require.Equal(t, len(original.Blocks), len(reparsed.Blocks))
	for i := range original.Blocks {
		assert.Equal(t, original.Blocks[i].Type, reparsed.Blocks[i].Type)
		assert.Equal(t, original.Blocks[i].Order, reparsed.Blocks[i].Order)
	}
}
