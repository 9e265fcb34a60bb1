package exchange

import (
	"slices"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/types"
)

/*
existence classifies the new entries of one domain. An entry exists when it
lies in the old extents or in the ghost region of a neighbor that survived
pruning. source[i] is the existing entry a missing entry i copies, or -1.
*/
type existence struct {
	extents types.Extents
	exists  []bool
	source  []int
	missing int
}

func (x *Exchanger) classify(topo *boundary.Topology, d int, center dataset.Centering) *existence {
	key := existKey{domain: d, center: center}
	if e, ok := x.existence[key]; ok {
		return e
	}
	var (
		dom  = topo.Domain(d)
		ne   = newExtents(dom, center)
		ex   = &existence{extents: ne, exists: make([]bool, ne.Count())}
		mark = func(i, j, k int) {
			if ne.Contains(i, j, k) {
				ex.exists[ne.Index(i, j, k)] = true
			}
		}
	)
	oldExtents(dom, center).Each(mark)
	for n := range dom.Neighbors {
		ghostRegion(&dom.Neighbors[n], center).Each(mark)
	}
	ex.source = nearestExisting(ne, ex.exists)
	for _, s := range ex.source {
		if s >= 0 {
			ex.missing++
		}
	}
	x.existence[key] = ex
	return ex
}

// offset is a step in index space, with the tie order used between steps of
// the same length
type offset struct {
	d  [3]int
	r2 int
}

func (o offset) less(p offset) bool {
	if o.r2 != p.r2 {
		return o.r2 < p.r2
	}
	// Smaller k steps win first, then smaller j, then smaller i
	for a := 2; a >= 0; a-- {
		if ao, ap := abs(o.d[a]), abs(p.d[a]); ao != ap {
			return ao < ap
		}
	}
	// Negative before positive
	for a := 0; a < 3; a++ {
		if o.d[a] != p.d[a] {
			return o.d[a] < p.d[a]
		}
	}
	return false
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// sortedOffsets lists every non-zero step inside the cube of half width r,
// restricted to the axes that are not flat
func sortedOffsets(r int, flat [3]bool) (offs []offset) {
	var (
		lim [3]int
	)
	for a := 0; a < 3; a++ {
		if !flat[a] {
			lim[a] = r
		}
	}
	for dk := -lim[2]; dk <= lim[2]; dk++ {
		for dj := -lim[1]; dj <= lim[1]; dj++ {
			for di := -lim[0]; di <= lim[0]; di++ {
				if di == 0 && dj == 0 && dk == 0 {
					continue
				}
				offs = append(offs, offset{d: [3]int{di, dj, dk}, r2: di*di + dj*dj + dk*dk})
			}
		}
	}
	slices.SortFunc(offs, func(a, b offset) int {
		switch {
		case a.less(b):
			return -1
		case b.less(a):
			return 1
		}
		return 0
	})
	return
}

/*
nearestExisting finds, for every missing entry, the existing entry with the
smallest squared index distance. The search cube doubles until the best hit
lies within its inscribed sphere, so no closer entry can sit outside it.
*/
func nearestExisting(e types.Extents, exists []bool) (source []int) {
	var (
		dims  = e.Dims()
		flat  = [3]bool{e.Flat(0), e.Flat(1), e.Flat(2)}
		reach = max(dims[0], dims[1], dims[2])
		cache = make(map[int][]offset)
		some  bool
	)
	source = make([]int, len(exists))
	for i, ok := range exists {
		source[i] = -1
		some = some || ok
	}
	if !some {
		return
	}
	offsetsFor := func(r int) []offset {
		if offs, ok := cache[r]; ok {
			return offs
		}
		cache[r] = sortedOffsets(r, flat)
		return cache[r]
	}
	for idx, ok := range exists {
		if ok {
			continue
		}
		i, j, k := e.IJK(idx)
		for r := 2; ; r *= 2 {
			found := -1
			for _, o := range offsetsFor(r) {
				if o.r2 > r*r && r < reach {
					break
				}
				ii, jj, kk := i+o.d[0], j+o.d[1], k+o.d[2]
				if !e.Contains(ii, jj, kk) {
					continue
				}
				if s := e.Index(ii, jj, kk); exists[s] {
					found = s
					break
				}
			}
			if found >= 0 {
				source[idx] = found
				break
			}
			if r >= reach {
				break
			}
		}
	}
	return
}

// fill copies each missing tuple from its source
func (ex *existence) fill(data []byte, tupleSize int) {
	for i, s := range ex.source {
		if s >= 0 {
			copy(data[i*tupleSize:(i+1)*tupleSize], data[s*tupleSize:(s+1)*tupleSize])
		}
	}
}
