package exchange

import (
	"github.com/notargets/ghostzones/boundary"
)

/*
Arena holds every boundary payload of one exchange call in a single backing
store. Buffers are addressed by the sender's (domain, neighbor index); an
edge that this rank neither sends nor receives has no buffer.
*/
type Arena struct {
	data   []byte
	offset [][]int // -1 when absent
	size   [][]int
}

// NewArena sizes one buffer for every edge sizeOf accepts
func NewArena(topo *boundary.Topology, sizeOf func(d, n int) (nbytes int, ok bool)) (a *Arena) {
	var (
		nd    = topo.NumDomains()
		total int
	)
	a = &Arena{
		offset: make([][]int, nd),
		size:   make([][]int, nd),
	}
	for d := 0; d < nd; d++ {
		nn := len(topo.Domain(d).Neighbors)
		a.offset[d] = make([]int, nn)
		a.size[d] = make([]int, nn)
		for n := 0; n < nn; n++ {
			a.offset[d][n] = -1
			if nbytes, ok := sizeOf(d, n); ok {
				a.offset[d][n], a.size[d][n] = total, nbytes
				total += nbytes
			}
		}
	}
	a.data = make([]byte, total)
	return
}

func (a *Arena) Has(d, n int) bool {
	return d >= 0 && d < len(a.offset) && n >= 0 && n < len(a.offset[d]) && a.offset[d][n] >= 0
}

// Buffer returns nil for an absent edge
func (a *Arena) Buffer(d, n int) []byte {
	if !a.Has(d, n) {
		return nil
	}
	off := a.offset[d][n]
	return a.data[off : off+a.size[d][n] : off+a.size[d][n]]
}

func (a *Arena) Size(d, n int) int {
	if !a.Has(d, n) {
		return 0
	}
	return a.size[d][n]
}

// Len is the total size of the backing store in bytes
func (a *Arena) Len() int { return len(a.data) }
