package types

import "fmt"

/*
Extents is an inclusive index box [imin,imax,jmin,jmax,kmin,kmax] in the index
space of one structured domain. The same type is used for node and cell
extents; an axis with lo == hi is flat.
*/
type Extents [6]int

func NewExtents(imin, imax, jmin, jmax, kmin, kmax int) Extents {
	return Extents{imin, imax, jmin, jmax, kmin, kmax}
}

func (e Extents) Lo(axis int) int { return e[2*axis] }
func (e Extents) Hi(axis int) int { return e[2*axis+1] }

// Flat is true when the extent is a single index wide along axis
func (e Extents) Flat(axis int) bool { return e[2*axis] == e[2*axis+1] }

func (e Extents) Empty() bool {
	for a := 0; a < 3; a++ {
		if e[2*a] > e[2*a+1] {
			return true
		}
	}
	return false
}

func (e Extents) Dims() (dims [3]int) {
	if e.Empty() {
		return
	}
	for a := 0; a < 3; a++ {
		dims[a] = e[2*a+1] - e[2*a] + 1
	}
	return
}

func (e Extents) Count() int {
	var (
		d = e.Dims()
	)
	return d[0] * d[1] * d[2]
}

func (e Extents) Contains(i, j, k int) bool {
	return i >= e[0] && i <= e[1] &&
		j >= e[2] && j <= e[3] &&
		k >= e[4] && k <= e[5]
}

func (e Extents) ContainsExtents(o Extents) bool {
	if o.Empty() {
		return true
	}
	return e.Contains(o[0], o[2], o[4]) && e.Contains(o[1], o[3], o[5])
}

// Index is the row-major offset of (i,j,k), i varies fastest and k slowest
func (e Extents) Index(i, j, k int) int {
	var (
		ni = e[1] - e[0] + 1
		nj = e[3] - e[2] + 1
	)
	return (k-e[4])*ni*nj + (j-e[2])*ni + (i - e[0])
}

// IJK inverts Index
func (e Extents) IJK(index int) (i, j, k int) {
	var (
		ni = e[1] - e[0] + 1
		nj = e[3] - e[2] + 1
	)
	k = index/(ni*nj) + e[4]
	index %= ni * nj
	j = index/ni + e[2]
	i = index%ni + e[0]
	return
}

// Each visits every index of the box, k slowest, then j, then i
func (e Extents) Each(fn func(i, j, k int)) {
	for k := e[4]; k <= e[5]; k++ {
		for j := e[2]; j <= e[3]; j++ {
			for i := e[0]; i <= e[1]; i++ {
				fn(i, j, k)
			}
		}
	}
}

func (e Extents) Intersect(o Extents) (r Extents, ok bool) {
	for a := 0; a < 3; a++ {
		r[2*a] = max(e[2*a], o[2*a])
		r[2*a+1] = min(e[2*a+1], o[2*a+1])
	}
	ok = !r.Empty()
	return
}

func (e Extents) Shift(off [3]int) (r Extents) {
	for a := 0; a < 3; a++ {
		r[2*a] = e[2*a] + off[a]
		r[2*a+1] = e[2*a+1] + off[a]
	}
	return
}

// Origin is the low corner of the box
func (e Extents) Origin() [3]int {
	return [3]int{e[0], e[2], e[4]}
}

// Local re-bases the box so that its low corner is the origin
func (e Extents) Local() Extents {
	return e.Shift([3]int{-e[0], -e[2], -e[4]})
}

/*
CellExtents converts node extents to the extents of the cells they bound. A
flat node axis still carries one layer of cells, so 2D domains have cells.
*/
func (e Extents) CellExtents() (c Extents) {
	for a := 0; a < 3; a++ {
		c[2*a] = e[2*a]
		if e.Flat(a) {
			c[2*a+1] = e[2*a]
		} else {
			c[2*a+1] = e[2*a+1] - 1
		}
	}
	return
}

func (e Extents) String() string {
	return fmt.Sprintf("[%d:%d,%d:%d,%d:%d]", e[0], e[1], e[2], e[3], e[4], e[5])
}
