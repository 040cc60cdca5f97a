package processor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/tablescan-worker/internal/table"
)

func TestAnnotationFromBoxesGroupsHierarchy(t *testing.T) {
	boxes := []symbolBox{
		{Text: "a", Block: 1, Paragraph: 1, Word: 1},
		{Text: "b", Block: 1, Paragraph: 1, Word: 1},
		{Text: "c", Block: 1, Paragraph: 1, Word: 2},
		{Text: "d", Block: 1, Paragraph: 2, Word: 1},
		{Text: "e", Block: 2, Paragraph: 1, Word: 1},
	}

	a := annotationFromBoxes(boxes)
	require.Len(t, a.Pages, 1)
	blocks := a.Pages[0].Blocks
	require.Len(t, blocks, 2)
	require.Len(t, blocks[0].Paragraphs, 2)
	require.Len(t, blocks[0].Paragraphs[0].Words, 2)
	require.Len(t, blocks[0].Paragraphs[0].Words[0].Symbols, 2)
	require.Equal(t, "e", blocks[1].Paragraphs[0].Words[0].Symbols[0].Text)
	require.Equal(t, 5, a.SymbolCount())
}

func TestAnnotationFromBoxesEmpty(t *testing.T) {
	a := annotationFromBoxes(nil)
	require.NotNil(t, a)
	require.Zero(t, a.SymbolCount())
}

func TestBoundingBoxPolygon(t *testing.T) {
	b := BoundingBox{X: 2, Y: 3, Width: 4, Height: 5}
	require.Equal(t, table.Polygon{{X: 2, Y: 3}, {X: 6, Y: 3}, {X: 6, Y: 8}, {X: 2, Y: 8}}, b.Polygon())
}
