package boundary

import (
	"github.com/notargets/ghostzones/types"
)

// blockExtents cuts a global node box of nc cells per axis into nb blocks
// per axis, domain id = bi + nb[0]*(bj + nb[1]*bk)
func blockExtents(nc, nb [3]int) (extents []types.Extents) {
	for bk := 0; bk < nb[2]; bk++ {
		for bj := 0; bj < nb[1]; bj++ {
			for bi := 0; bi < nb[0]; bi++ {
				var e types.Extents
				for a, b := range [3]int{bi, bj, bk} {
					w := nc[a] / nb[a]
					e[2*a], e[2*a+1] = b*w, (b+1)*w
				}
				extents = append(extents, e)
			}
		}
	}
	return
}

// grid2x2 is four 4x4 cell 2D domains: 0 top left, 1 east of 0, 2 south of 0
func grid2x2() []types.Extents {
	return blockExtents([3]int{8, 8, 0}, [3]int{2, 2, 1})
}
