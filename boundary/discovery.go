package boundary

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/notargets/ghostzones/types"
)

// extentPoint is a domain's node box as a point in 6-D [ilo,ihi,jlo,jhi,klo,khi]
type extentPoint struct {
	box types.Extents
	id  int
}

func (p extentPoint) coord(d kdtree.Dim) float64 {
	return float64(p.box[d])
}

func (p extentPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coord(d) - c.(extentPoint).coord(d)
}

func (p extentPoint) Dims() int { return 6 }

func (p extentPoint) Distance(c kdtree.Comparable) (sum float64) {
	q := c.(extentPoint)
	for d := kdtree.Dim(0); d < 6; d++ {
		diff := p.coord(d) - q.coord(d)
		sum += diff * diff
	}
	return
}

type extentPoints []extentPoint

func (p extentPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p extentPoints) Len() int                      { return len(p) }
func (p extentPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p extentPoints) Pivot(d kdtree.Dim) int {
	return extentPlane{extentPoints: p, Dim: d}.Pivot()
}

type extentPlane struct {
	kdtree.Dim
	extentPoints
}

func (p extentPlane) Less(i, j int) bool {
	return p.extentPoints[i].box[p.Dim] < p.extentPoints[j].box[p.Dim]
}
func (p extentPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p extentPlane) Slice(start, end int) kdtree.SortSlicer {
	p.extentPoints = p.extentPoints[start:end]
	return p
}
func (p extentPlane) Swap(i, j int) {
	p.extentPoints[i], p.extentPoints[j] = p.extentPoints[j], p.extentPoints[i]
}

/*
overlapQuery is the bounding region holding every box that touches e: the
low corner of a candidate must not exceed e's high corner and its high corner
must not be less than e's low corner. Each bound is one index wider because
the tree skips a subtree whose pivot equals a bound, and touching boxes share
exactly those coordinates. Intersect trims the extra candidates.
*/
func overlapQuery(e types.Extents) *kdtree.Bounding {
	var (
		lo, hi extentPoint
		inf    = math.MaxInt32
	)
	for a := 0; a < 3; a++ {
		lo.box[2*a], hi.box[2*a] = -inf, e[2*a+1]+1
		lo.box[2*a+1], hi.box[2*a+1] = e[2*a]-1, inf
	}
	return &kdtree.Bounding{Min: lo, Max: hi}
}

/*
Discover builds a finished topology from per-domain node extents given in one
global index space per refinement level. levels may be nil. Every domain is
registered with local extents [0, dims-1] and its records are inserted in
ascending neighbor id order, so match indices agree on every process without
communication.
*/
func Discover(extents []types.Extents, levels []int) (t *Topology, err error) {
	var (
		nd      = len(extents)
		byLevel = make(map[int]extentPoints)
		nbrs    = make([][]int, nd)
	)
	if levels != nil && len(levels) != nd {
		return nil, fmt.Errorf("%w: %d levels for %d domains", ErrConfig, len(levels), nd)
	}
	level := func(d int) int {
		if levels == nil {
			return 0
		}
		return levels[d]
	}
	t = NewTopology(nd)
	for d, e := range extents {
		if err = t.SetIndicesForAMRPatch(d, level(d), e.Local()); err != nil {
			return nil, err
		}
		byLevel[level(d)] = append(byLevel[level(d)], extentPoint{box: e, id: d})
	}
	for _, pts := range byLevel {
		query := append(extentPoints(nil), pts...)
		tree := kdtree.New(pts, false)
		for _, p := range query {
			tree.DoBounded(overlapQuery(p.box), func(c kdtree.Comparable, _ *kdtree.Bounding, _ int) (done bool) {
				q := c.(extentPoint)
				if q.id == p.id {
					return
				}
				if _, ok := p.box.Intersect(q.box); ok {
					nbrs[p.id] = append(nbrs[p.id], q.id)
				}
				return
			})
		}
	}
	for d := range nbrs {
		slices.Sort(nbrs[d])
	}
	for d1 := range nbrs {
		origin := extents[d1].Origin()
		for _, d2 := range nbrs[d1] {
			shared, _ := extents[d1].Intersect(extents[d2])
			match := slices.Index(nbrs[d2], d1)
			if match < 0 {
				return nil, fmt.Errorf("%w: domain %d sees %d but not the reverse", ErrConfig, d1, d2)
			}
			shared = shared.Shift([3]int{-origin[0], -origin[1], -origin[2]})
			if err = t.AddNeighbor(d1, d2, match, Identity, shared); err != nil {
				return nil, err
			}
		}
	}
	for d := range nd {
		if err = t.Finish(d); err != nil {
			return nil, err
		}
	}
	return
}
