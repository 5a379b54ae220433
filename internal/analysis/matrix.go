// SPDX-License-Identifier: MIT
package analysis

import "fmt"

// Matrix is a dense row-major float32 matrix backed by one slice. The
// pipeline uses it for per-channel block buffers (rows = channels) and for
// the result (rows = selected features, columns = blocks).
type Matrix struct {
	rows, cols int
	data       []float32
	views      [][]float32 // row views into data, built once
}

// NewMatrix allocates a zeroed rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("analysis: negative matrix extent %dx%d", rows, cols))
	}
	m := &Matrix{rows: rows, cols: cols, data: make([]float32, rows*cols)}
	m.views = make([][]float32, rows)
	for r := range rows {
		m.views[r] = m.data[r*cols : (r+1)*cols : (r+1)*cols]
	}
	return m
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

// Row returns a view of row r. Writes go through to the matrix.
func (m *Matrix) Row(r int) []float32 {
	if r < 0 || r >= m.rows {
		panic(fmt.Sprintf("analysis: row %d outside %dx%d matrix", r, m.rows, m.cols))
	}
	return m.views[r]
}

// Rows2D returns all row views, suitable as per-channel buffers.
func (m *Matrix) Rows2D() [][]float32 { return m.views }

func (m *Matrix) At(r, c int) float32 {
	m.check(r, c)
	return m.data[r*m.cols+c]
}

func (m *Matrix) Set(r, c int, v float32) {
	m.check(r, c)
	m.data[r*m.cols+c] = v
}

// Column copies column c into dst, allocating when dst is too short.
func (m *Matrix) Column(c int, dst []float32) []float32 {
	if c < 0 || c >= m.cols {
		panic(fmt.Sprintf("analysis: column %d outside %dx%d matrix", c, m.rows, m.cols))
	}
	if len(dst) < m.rows {
		dst = make([]float32, m.rows)
	}
	for r := range m.rows {
		dst[r] = m.data[r*m.cols+c]
	}
	return dst[:m.rows]
}

// Head returns a copy holding the first n columns.
func (m *Matrix) Head(n int) *Matrix {
	n = max(0, min(n, m.cols))
	out := NewMatrix(m.rows, n)
	for r := range m.rows {
		copy(out.views[r], m.views[r][:n])
	}
	return out
}

// Zero clears every cell.
func (m *Matrix) Zero() { clear(m.data) }

func (m *Matrix) check(r, c int) {
	if r < 0 || r >= m.rows || c < 0 || c >= m.cols {
		panic(fmt.Sprintf("analysis: index (%d, %d) outside %dx%d matrix", r, c, m.rows, m.cols))
	}
}
