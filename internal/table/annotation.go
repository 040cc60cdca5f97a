/**
 * Recognition annotation hierarchy
 *
 * Engine-neutral form of a text-recognition response:
 * page → block → paragraph → word → symbol, each symbol carrying the
 * bounding polygon of one recognised character.
 */

package table

// Vertex is one corner of a bounding polygon, in image pixels.
type Vertex struct {
	X float64
	Y float64
}

// Polygon is a bounding polygon, normally four vertices.
type Polygon []Vertex

// Annotation is the full response of a recognition engine for one image.
// An Annotation with no pages means no text was detected.
type Annotation struct {
	Pages []Page
}

// Page of recognised text
type Page struct {
	Blocks []Block
}

// Block of recognised text
type Block struct {
	Paragraphs []Paragraph
}

// Paragraph of recognised text
type Paragraph struct {
	Words []Word
}

// Word is a sequence of symbols
type Word struct {
	Symbols []Symbol
}

// Symbol is a single recognised character with its bounding polygon
type Symbol struct {
	Text       string
	Confidence float64
	Bounds     Polygon
}

// SymbolCount returns the number of symbols in the annotation.
func (a *Annotation) SymbolCount() int {
	if a == nil {
		return 0
	}
	n := 0
	for _, p := range a.Pages {
		for _, b := range p.Blocks {
			for _, para := range b.Paragraphs {
				for _, w := range para.Words {
					n += len(w.Symbols)
				}
			}
		}
	}
	return n
}
