/**
 * OCR Types - Shared data structures for text recognition
 *
 * Common types used by the Cloud Vision engine and the Tesseract engine.
 */

package processor

import (
	"context"
	"time"

	"github.com/adverant/nexus/tablescan-worker/internal/table"
)

// Recognizer turns raw image bytes into a symbol-level annotation.
// An image without text yields an empty annotation, not an error.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (*OCRResult, error)
	Name() string
}

// OCRResult represents the result of text recognition for one image
type OCRResult struct {
	Annotation *table.Annotation
	Engine     string // "vision" or "tesseract"
	Symbols    int
	Duration   time.Duration
}

// BoundingBox represents an axis-aligned region in image pixels
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Polygon returns the four corners, clockwise from the top left.
func (b BoundingBox) Polygon() table.Polygon {
	x0, y0 := float64(b.X), float64(b.Y)
	x1, y1 := float64(b.X+b.Width), float64(b.Y+b.Height)
	return table.Polygon{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

// symbolBox is one symbol reported by a flat-list engine, with the indices
// of the block, paragraph and word it belongs to.
type symbolBox struct {
	Text       string
	Confidence float64
	Box        BoundingBox
	Block      int
	Paragraph  int
	Word       int
}

// annotationFromBoxes rebuilds the page hierarchy from a flat symbol list.
// A change of block, paragraph or word index starts a new node.
func annotationFromBoxes(boxes []symbolBox) *table.Annotation {
	if len(boxes) == 0 {
		return &table.Annotation{}
	}

	page := table.Page{}
	var block *table.Block
	var para *table.Paragraph
	var word *table.Word
	var prev symbolBox

	for i, b := range boxes {
		newBlock := i == 0 || b.Block != prev.Block
		newPara := newBlock || b.Paragraph != prev.Paragraph
		newWord := newPara || b.Word != prev.Word

		if newBlock {
			page.Blocks = append(page.Blocks, table.Block{})
			block = &page.Blocks[len(page.Blocks)-1]
		}
		if newPara {
			block.Paragraphs = append(block.Paragraphs, table.Paragraph{})
			para = &block.Paragraphs[len(block.Paragraphs)-1]
		}
		if newWord {
			para.Words = append(para.Words, table.Word{})
			word = &para.Words[len(para.Words)-1]
		}

		word.Symbols = append(word.Symbols, table.Symbol{
			Text:       b.Text,
			Confidence: b.Confidence,
			Bounds:     b.Box.Polygon(),
		})
		prev = b
	}

	return &table.Annotation{Pages: []table.Page{page}}
}
