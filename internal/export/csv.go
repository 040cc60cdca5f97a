/**
 * Tabular export
 *
 * Writes reconstructed rows as CSV for spreadsheet tools: UTF-8 with a byte
 * order mark, optional "#key: value" metadata lines, then an optional header
 * row and the body rows.
 */

package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Meta is one metadata line. Order is preserved.
type Meta struct {
	Key   string
	Value string
}

// Sink consumes an aggregate table.
type Sink interface {
	Write(w io.Writer, rows [][]string, meta []Meta, header []string) error
}

// CSVSink writes BOM-prefixed CSV.
type CSVSink struct {
	// Comma overrides the field delimiter; zero means ','.
	Comma rune
}

// NewCSVSink returns a comma separated sink
func NewCSVSink() *CSVSink {
	return &CSVSink{}
}

// Write encodes rows to w.
func (s *CSVSink) Write(w io.Writer, rows [][]string, meta []Meta, header []string) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())

	for _, m := range meta {
		if _, err := fmt.Fprintf(tw, "#%s: %s\n", oneLine(m.Key), oneLine(m.Value)); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
	}

	cw := csv.NewWriter(tw)
	if s.Comma != 0 {
		cw.Comma = s.Comma
	}

	if len(header) > 0 {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}

	// the BOM is emitted lazily, so an empty table still needs the flush
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

// Bytes is a convenience wrapper returning the encoded export.
func Bytes(s Sink, rows [][]string, meta []Meta, header []string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Write(&buf, rows, meta, header); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// metadata lines must not break the comment block
func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
