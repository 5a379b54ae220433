// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix(t *testing.T) {
	m := NewMatrix(2, 3)
	require.Equal(t, 2, m.Rows())
	require.Equal(t, 3, m.Cols())

	m.Set(0, 2, 1.5)
	m.Set(1, 0, -2)
	assert.Equal(t, float32(1.5), m.At(0, 2))
	assert.Equal(t, []float32{0, 0, 1.5}, m.Row(0))
	assert.Equal(t, []float32{1.5, 0}, m.Column(2, nil))

	m.Row(1)[1] = 7
	assert.Equal(t, float32(7), m.At(1, 1), "row views write through")

	head := m.Head(2)
	assert.Equal(t, 2, head.Cols())
	assert.Equal(t, []float32{-2, 7}, head.Row(1))
	head.Set(1, 0, 100)
	assert.Equal(t, float32(-2), m.At(1, 0), "head is a copy")

	assert.Equal(t, 3, m.Head(10).Cols())
	assert.Equal(t, 0, m.Head(-1).Cols())

	m.Zero()
	assert.Equal(t, []float32{0, 0, 0}, m.Row(1))
}

func TestMatrixRowsAppendDoesNotOverlap(t *testing.T) {
	m := NewMatrix(2, 2)
	rows := m.Rows2D()
	_ = append(rows[0], 9)
	assert.Equal(t, float32(0), m.At(1, 0))
}

func TestMatrixBounds(t *testing.T) {
	m := NewMatrix(2, 2)
	assert.Panics(t, func() { m.At(2, 0) })
	assert.Panics(t, func() { m.At(0, -1) })
	assert.Panics(t, func() { m.Set(0, 2, 1) })
	assert.Panics(t, func() { m.Row(5) })
	assert.Panics(t, func() { m.Column(2, nil) })
	assert.Panics(t, func() { NewMatrix(-1, 2) })

	empty := NewMatrix(3, 0)
	assert.Len(t, empty.Row(2), 0)
}
