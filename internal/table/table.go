/**
 * Table reconstruction
 *
 * Rebuilds tabular rows from positioned glyphs without any grid information:
 * - glyphs are grouped into lines by vertical proximity
 * - lines are split into cells by horizontal gaps
 * - rows far shorter than the dominant column count are discarded
 * - rows from several images are merged and exact duplicates dropped
 *
 * All thresholds are relative to the mean glyph height of the image, so the
 * result does not depend on image resolution.
 */

package table

// Glyph is a single recognised character positioned by the center of its
// bounding polygon.
type Glyph struct {
	Text   string
	X      float64
	Y      float64
	Height float64
}

// Line is a run of glyphs sharing one visual row, ordered left to right.
type Line []Glyph

// Row is the cell strings of one line.
type Row []string

// Table is the rows surviving the body filter for one image.
type Table []Row

// Options holds the tunable clustering thresholds.
type Options struct {
	// LineThresholdFactor scales the mean glyph height to give the maximum
	// vertical distance between a glyph and the running line centroid.
	LineThresholdFactor float64

	// CellGapFactor scales the mean glyph height to give the minimum
	// horizontal glyph-to-glyph distance that starts a new cell.
	CellGapFactor float64

	// ColumnTolerance is how many cells a row may fall short of the modal
	// column count and still be kept.
	ColumnTolerance int
}

// DefaultOptions returns the thresholds the heuristics were tuned against.
func DefaultOptions() Options {
	return Options{
		LineThresholdFactor: 1.0,
		CellGapFactor:       2.0,
		ColumnTolerance:     1,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.LineThresholdFactor <= 0 {
		o.LineThresholdFactor = d.LineThresholdFactor
	}
	if o.CellGapFactor <= 0 {
		o.CellGapFactor = d.CellGapFactor
	}
	if o.ColumnTolerance < 0 {
		o.ColumnTolerance = d.ColumnTolerance
	}
	return o
}

// Reconstruct runs the full single-image pipeline on a recognition response:
// glyph extraction, line clustering, cell clustering and the body filter.
// A response without glyphs yields an empty table.
func Reconstruct(a *Annotation, opts Options) Table {
	opts = opts.normalized()

	glyphs := ExtractGlyphs(a)
	if len(glyphs) == 0 {
		return Table{}
	}

	avg := AverageHeight(glyphs)
	lines := ClusterLines(glyphs, avg*opts.LineThresholdFactor)

	rows := make([]Row, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, ClusterCells(line, avg*opts.CellGapFactor))
	}

	return FilterBody(rows, opts.ColumnTolerance)
}
