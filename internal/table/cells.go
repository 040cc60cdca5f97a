package table

import "strings"

// ClusterCells merges the glyphs of one left-to-right line into cell
// strings. A new cell starts whenever the distance from the previous glyph
// reaches gap; the comparison is glyph to glyph, not against the start of
// the cell.
func ClusterCells(line Line, gap float64) Row {
	if len(line) == 0 {
		return Row{}
	}

	var (
		row   Row
		cell  strings.Builder
		prevX float64
	)

	for i, g := range line {
		if i > 0 && g.X-prevX >= gap {
			row = append(row, cell.String())
			cell.Reset()
		}
		cell.WriteString(g.Text)
		prevX = g.X
	}
	row = append(row, cell.String())

	return row
}
