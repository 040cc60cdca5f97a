package table

import (
	"math"
	"sort"
)

// ClusterLines partitions glyphs into visual lines in one pass over the
// glyphs sorted top to bottom. A glyph joins the current line while its
// distance to the line centroid is below threshold; the centroid then moves
// halfway towards the glyph, so recent glyphs weigh more than early ones and
// slightly skewed lines still hold together. The drift is not bounded.
//
// Lines are returned top to bottom, each sorted left to right.
func ClusterLines(glyphs []Glyph, threshold float64) []Line {
	if len(glyphs) == 0 {
		return nil
	}

	sorted := make([]Glyph, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })

	var (
		lines   []Line
		current Line
		lineY   float64
	)

	closeLine := func() {
		sort.SliceStable(current, func(i, j int) bool { return current[i].X < current[j].X })
		lines = append(lines, current)
	}

	for _, g := range sorted {
		if current == nil {
			current = Line{g}
			lineY = g.Y
			continue
		}

		if math.Abs(g.Y-lineY) < threshold {
			current = append(current, g)
			lineY = (lineY + g.Y) / 2
			continue
		}

		closeLine()
		current = Line{g}
		lineY = g.Y
	}
	closeLine()

	return lines
}
