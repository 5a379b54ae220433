// SPDX-License-Identifier: MIT
//
// Package report formats a feature matrix for people and programs. The
// matrix holds one row per selected feature and one column per block; every
// format transposes it so that blocks run down the page.
package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"featex/internal/analysis"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrUnknownFormat = errors.New("report: unknown format")

// Format selects the report encoding.
type Format int

const (
	TSV Format = iota
	CSV
	JSON
	Table
)

var formatNames = [...]string{"tsv", "csv", "json", "table"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// Extension returns the usual file extension, with dot.
func (f Format) Extension() string {
	if f == Table {
		return ".txt"
	}
	return "." + f.String()
}

// ParseFormat converts a case-insensitive name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tsv", "txt", "tab":
		return TSV, nil
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	case "table", "pretty":
		return Table, nil
	default:
		return TSV, fmt.Errorf("%q: %w", name, ErrUnknownFormat)
	}
}

// Summary holds per-feature statistics over all blocks.
type Summary struct {
	Feature string  `json:"feature"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Document is the JSON form of a report.
type Document struct {
	Features []string    `json:"features"`
	Blocks   [][]float32 `json:"blocks"`
	Summary  []Summary   `json:"summary,omitempty"`
}

// NewDocument transposes m into blocks x features. names must hold one
// entry per matrix row.
func NewDocument(m *analysis.Matrix, names []string) (Document, error) {
	if err := checkNames(m, names); err != nil {
		return Document{}, err
	}
	doc := Document{
		Features: append([]string(nil), names...),
		Blocks:   make([][]float32, m.Cols()),
	}
	for c := range m.Cols() {
		doc.Blocks[c] = m.Column(c, nil)
	}
	return doc, nil
}

// Summarize computes mean, standard deviation and range per matrix row.
// Rows without blocks summarise to zeros.
func Summarize(m *analysis.Matrix, names []string) ([]Summary, error) {
	if err := checkNames(m, names); err != nil {
		return nil, err
	}
	out := make([]Summary, m.Rows())
	row := make([]float64, m.Cols())
	for r := range m.Rows() {
		out[r].Feature = names[r]
		if len(row) == 0 {
			continue
		}
		for c, v := range m.Row(r) {
			row[c] = float64(v)
		}
		out[r].Mean, out[r].StdDev = stat.MeanStdDev(row, nil)
		if len(row) == 1 {
			out[r].StdDev = 0
		}
		out[r].Min = floats.Min(row)
		out[r].Max = floats.Max(row)
	}
	return out, nil
}

// Write encodes m to w in the given format.
func Write(w io.Writer, m *analysis.Matrix, names []string, format Format) error {
	if err := checkNames(m, names); err != nil {
		return err
	}
	switch format {
	case TSV:
		return writeTSV(w, m)
	case CSV:
		return writeCSV(w, m, names)
	case JSON:
		doc, err := NewDocument(m, names)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case Table:
		return writeTable(w, m, names)
	default:
		return fmt.Errorf("%v: %w", format, ErrUnknownFormat)
	}
}

func checkNames(m *analysis.Matrix, names []string) error {
	if m == nil {
		return errors.New("report: nil matrix")
	}
	if len(names) != m.Rows() {
		return fmt.Errorf("report: %d names for %d feature rows", len(names), m.Rows())
	}
	return nil
}

func formatValue(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// writeTSV writes one line per block, features separated by tabs.
func writeTSV(w io.Writer, m *analysis.Matrix) error {
	bw := bufio.NewWriter(w)
	for c := range m.Cols() {
		for r := range m.Rows() {
			if r > 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(formatValue(m.At(r, c)))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func writeCSV(w io.Writer, m *analysis.Matrix, names []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"block"}, names...)); err != nil {
		return err
	}
	record := make([]string, m.Rows()+1)
	for c := range m.Cols() {
		record[0] = strconv.Itoa(c)
		for r := range m.Rows() {
			record[r+1] = formatValue(m.At(r, c))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Bold(true)

	cellStyle = lipgloss.NewStyle().
			Align(lipgloss.Right)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Align(lipgloss.Right)
)

// writeTable renders a right aligned table with a styled header and a
// mean/std footer.
func writeTable(w io.Writer, m *analysis.Matrix, names []string) error {
	cols := append([]string{"block"}, names...)
	cells := make([][]string, m.Cols())
	for c := range m.Cols() {
		line := make([]string, len(cols))
		line[0] = strconv.Itoa(c)
		for r := range m.Rows() {
			line[r+1] = strconv.FormatFloat(float64(m.At(r, c)), 'f', 6, 32)
		}
		cells[c] = line
	}

	summary, err := Summarize(m, names)
	if err != nil {
		return err
	}
	mean := make([]string, len(cols))
	std := make([]string, len(cols))
	mean[0], std[0] = "mean", "std"
	for r, s := range summary {
		mean[r+1] = strconv.FormatFloat(s.Mean, 'f', 6, 64)
		std[r+1] = strconv.FormatFloat(s.StdDev, 'f', 6, 64)
	}

	widths := make([]int, len(cols))
	for i, name := range cols {
		widths[i] = max(len(name), len(mean[i]), len(std[i]))
	}
	for _, line := range cells {
		for i, s := range line {
			widths[i] = max(widths[i], len(s))
		}
	}

	render := func(style lipgloss.Style, line []string) string {
		parts := make([]string, len(line))
		for i, s := range line {
			parts[i] = style.Width(widths[i] + 1).Render(s)
		}
		return strings.Join(parts, " ")
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(render(headerStyle.Align(lipgloss.Right), cols))
	bw.WriteByte('\n')
	for _, line := range cells {
		bw.WriteString(render(cellStyle, line))
		bw.WriteByte('\n')
	}
	if m.Cols() > 0 {
		bw.WriteString(render(footerStyle, mean))
		bw.WriteByte('\n')
		bw.WriteString(render(footerStyle, std))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// IsFinite reports whether every cell is a finite number.
func IsFinite(m *analysis.Matrix) bool {
	for r := range m.Rows() {
		for _, v := range m.Row(r) {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return false
			}
		}
	}
	return true
}
