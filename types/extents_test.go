package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtents(t *testing.T) {
	{ // Sizes and flat axes
		e := NewExtents(0, 4, 2, 5, 0, 0)
		assert.Equal(t, [3]int{5, 4, 1}, e.Dims())
		assert.Equal(t, 20, e.Count())
		assert.True(t, e.Flat(2))
		assert.False(t, e.Flat(0))
		assert.False(t, e.Empty())
		assert.True(t, NewExtents(1, 0, 0, 0, 0, 0).Empty())
		assert.Equal(t, 0, NewExtents(1, 0, 0, 0, 0, 0).Count())
	}
	{ // Index order is i fastest, k slowest, and IJK is its inverse
		e := NewExtents(-1, 2, 3, 4, 5, 7)
		var (
			visited []int
		)
		e.Each(func(i, j, k int) {
			idx := e.Index(i, j, k)
			visited = append(visited, idx)
			ii, jj, kk := e.IJK(idx)
			assert.Equal(t, [3]int{i, j, k}, [3]int{ii, jj, kk})
		})
		assert.Equal(t, e.Count(), len(visited))
		for n, idx := range visited {
			assert.Equal(t, n, idx)
		}
		assert.Equal(t, 1, e.Index(0, 3, 5))
		assert.Equal(t, 4, e.Index(-1, 4, 5))
		assert.Equal(t, 8, e.Index(-1, 3, 6))
	}
	{ // Intersection
		a := NewExtents(0, 4, 0, 4, 0, 0)
		b := NewExtents(4, 8, 0, 4, 0, 0)
		r, ok := a.Intersect(b)
		assert.True(t, ok)
		assert.Equal(t, NewExtents(4, 4, 0, 4, 0, 0), r)
		_, ok = a.Intersect(NewExtents(5, 8, 0, 4, 0, 0))
		assert.False(t, ok)
	}
	{ // Cells of a 2D node box keep one layer along the flat axis
		c := NewExtents(0, 4, 0, 4, 0, 0).CellExtents()
		assert.Equal(t, NewExtents(0, 3, 0, 3, 0, 0), c)
		assert.Equal(t, 16, c.Count())
	}
	{
		e := NewExtents(4, 8, 2, 6, 1, 3)
		assert.Equal(t, NewExtents(0, 4, 0, 4, 0, 2), e.Local())
		assert.Equal(t, [3]int{4, 2, 1}, e.Origin())
		assert.True(t, e.ContainsExtents(NewExtents(4, 4, 2, 6, 1, 1)))
		assert.False(t, e.ContainsExtents(NewExtents(3, 4, 2, 6, 1, 1)))
		assert.Equal(t, "[4:8,2:6,1:3]", e.String())
	}
}
