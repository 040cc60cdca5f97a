package table

import (
	"strconv"
	"strings"
)

// Aggregate concatenates tables in order and drops rows whose cell sequence
// equals an earlier row. Matching is exact.
func Aggregate(tables ...Table) Table {
	seen := make(map[string]struct{})
	out := make(Table, 0)

	for _, t := range tables {
		for _, r := range t {
			k := rowKey(r)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// rowKey encodes a row so that distinct cell sequences never collide.
func rowKey(r Row) string {
	var b strings.Builder
	for _, c := range r {
		b.WriteString(strconv.Itoa(len(c)))
		b.WriteByte(':')
		b.WriteString(c)
	}
	return b.String()
}

// Strings converts the table to plain string slices for sinks.
func (t Table) Strings() [][]string {
	out := make([][]string, len(t))
	for i, r := range t {
		out[i] = []string(r)
	}
	return out
}
