package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArray(t *testing.T) {
	{
		a := NewFloat32Array("v", 3, []float32{1, 2, 3, 4, 5, 6})
		assert.Equal(t, 2, a.Tuples())
		assert.Equal(t, 12, a.TupleSize())
		assert.Equal(t, float32(5), a.Float32At(1, 1))
		assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, a.Float32s())
		b := a.Clone()
		b.Data[0] = 0xff
		assert.NotEqual(t, a.Data[0], b.Data[0])
		assert.True(t, a.SameShape(b))
	}
	{
		a := NewInt32Array("i", 1, []int32{-3, 7})
		assert.Equal(t, []int32{-3, 7}, a.Int32s())
		assert.Equal(t, int32(-3), a.Int32At(0, 0))
		assert.Panics(t, func() { a.Float32s() })
	}
	{
		a := NewByteArray("g", 1, []uint8{1, 0, 2})
		assert.Equal(t, 3, a.Tuples())
		assert.Equal(t, []uint8{1, 0, 2}, a.Bytes())
		assert.Equal(t, 1, Byte.Size())
	}
	{
		k, err := NewFieldKind("float32")
		require.NoError(t, err)
		assert.Equal(t, Float32, k)
		_, err = NewFieldKind("complex")
		assert.Error(t, err)
	}
}

func TestDataset(t *testing.T) {
	ds := NewRectilinear([]float32{0, 1, 2}, []float32{0, 1}, []float32{0})
	assert.Equal(t, 6, ds.NumPoints())
	assert.Equal(t, 2, ds.NumCells())
	ds.AddCellArray(NewFloat32Array("p", 1, []float32{1, 2}))
	ds.AddCellArray(NewFloat32Array("p", 1, []float32{3, 4}))
	require.Len(t, ds.CellData, 1)
	assert.Equal(t, []float32{3, 4}, ds.GetCellArray("p").Float32s())
	assert.Nil(t, ds.GetPointArray("p"))
	assert.NoError(t, ds.Validate())
	ds.AddCellArray(NewFloat32Array("q", 1, []float32{3}))
	assert.Error(t, ds.Validate())
	assert.Equal(t, [3]float32{2, 1, 0}, ds.Coordinate(2, 1, 0))

	cv, err := NewCurvilinear([3]int{2, 1, 1}, []float32{0, 0, 0, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, [3]float32{1, 2, 3}, cv.Coordinate(1, 0, 0))
	_, err = NewCurvilinear([3]int{2, 2, 1}, []float32{0, 0, 0})
	assert.Error(t, err)
}

func TestMaterial(t *testing.T) {
	m := NewMaterial([]string{"steel", "air"}, 3)
	m.Matlist[0] = 1
	m.AppendRun(1, []int32{0, 1}, []float32{0.25, 0.75})
	m.AppendRun(2, []int32{1, 0, 1}, []float32{0.5, 0.25, 0.25})
	require.NoError(t, m.Validate())
	assert.Equal(t, 5, m.Mixlen())
	assert.Equal(t, 0, m.RunLength(0))
	assert.Equal(t, 2, m.RunLength(1))
	assert.Equal(t, 3, m.RunLength(2))
	var (
		recs []int
	)
	for r := range m.Chain(2) {
		recs = append(recs, r)
	}
	assert.Equal(t, []int{2, 3, 4}, recs)
	assert.Equal(t, []int32{2, 2, 2}, m.MixZone[2:])

	// A cycle is caught by Validate and does not hang Chain
	m.MixNext[4] = 3
	assert.Error(t, m.Validate())
	assert.LessOrEqual(t, m.RunLength(2), m.Mixlen())
}
