package table

import (
	"math"

	"golang.org/x/text/unicode/norm"
)

// ExtractGlyphs flattens a recognition response into positioned glyphs.
// Symbols without a bounding polygon or text are skipped. Order follows the
// hierarchy; later stages re-sort.
func ExtractGlyphs(a *Annotation) []Glyph {
	if a == nil {
		return nil
	}

	glyphs := make([]Glyph, 0, a.SymbolCount())
	for _, page := range a.Pages {
		for _, block := range page.Blocks {
			for _, para := range block.Paragraphs {
				for _, word := range para.Words {
					for _, sym := range word.Symbols {
						if g, ok := glyphFromSymbol(sym); ok {
							glyphs = append(glyphs, g)
						}
					}
				}
			}
		}
	}
	return glyphs
}

func glyphFromSymbol(sym Symbol) (Glyph, bool) {
	if sym.Text == "" || len(sym.Bounds) == 0 {
		return Glyph{}, false
	}

	var sumX, sumY float64
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, v := range sym.Bounds {
		// engines omit or underflow coordinates at the image edge
		x, y := math.Max(v.X, 0), math.Max(v.Y, 0)
		sumX += x
		sumY += y
		minY = math.Min(minY, y)
		maxY = math.Max(maxY, y)
	}

	n := float64(len(sym.Bounds))
	return Glyph{
		Text:   norm.NFC.String(sym.Text),
		X:      sumX / n,
		Y:      sumY / n,
		Height: maxY - minY,
	}, true
}

// AverageHeight returns the mean glyph height, or 0 for no glyphs.
func AverageHeight(glyphs []Glyph) float64 {
	if len(glyphs) == 0 {
		return 0
	}
	var sum float64
	for _, g := range glyphs {
		sum += g.Height
	}
	return sum / float64(len(glyphs))
}
