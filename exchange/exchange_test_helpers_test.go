package exchange

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/transport"
	"github.com/notargets/ghostzones/types"
)

// grid is a global node box of nc cells per axis cut into nb blocks per
// axis, domain id = bi + nb[0]*(bj + nb[1]*bk)
type grid struct {
	extents []types.Extents
	topo    *boundary.Topology
}

func newGrid(t *testing.T, nc, nb [3]int) (g *grid) {
	var err error
	g = &grid{}
	for bk := 0; bk < nb[2]; bk++ {
		for bj := 0; bj < nb[1]; bj++ {
			for bi := 0; bi < nb[0]; bi++ {
				var e types.Extents
				for a, b := range [3]int{bi, bj, bk} {
					w := nc[a] / nb[a]
					e[2*a], e[2*a+1] = b*w, (b+1)*w
				}
				g.extents = append(g.extents, e)
			}
		}
	}
	g.topo, err = boundary.Discover(g.extents, nil)
	require.NoError(t, err)
	require.NoError(t, g.topo.Validate())
	return
}

// grid2x2 is four 4x4 cell 2D domains: 0 top left, 1 east of 0, 2 south of 0
func grid2x2(t *testing.T) *grid {
	return newGrid(t, [3]int{8, 8, 0}, [3]int{2, 2, 1})
}

func (g *grid) numDomains() int { return len(g.extents) }

// global turns a local index of domain d into the global one
func (g *grid) global(d, i, j, k int) (gi, gj, gk int) {
	o := g.extents[d].Origin()
	return o[0] + i, o[1] + j, o[2] + k
}

func globalValue(gi, gj, gk int) float32 { return float32(gi + 100*gj + 10000*gk) }

// fieldArray holds globalValue over the old nodes or cells of every domain
func (g *grid) fieldArrays(center dataset.Centering) (arrays map[int]*dataset.Array) {
	arrays = make(map[int]*dataset.Array)
	for d := 0; d < g.numDomains(); d++ {
		var (
			e    = oldExtents(g.topo.Domain(d), center)
			vals []float32
		)
		e.Each(func(i, j, k int) {
			vals = append(vals, globalValue(g.global(d, i, j, k)))
		})
		arrays[d] = dataset.NewFloat32Array("field", 1, vals)
	}
	return
}

// rectilinear is the block of the global mesh x = i/2, y = j/4, z = k
func (g *grid) rectilinear(d int) *dataset.Dataset {
	var (
		e       = g.extents[d]
		x, y, z []float32
	)
	for i := e.Lo(0); i <= e.Hi(0); i++ {
		x = append(x, 0.5*float32(i))
	}
	for j := e.Lo(1); j <= e.Hi(1); j++ {
		y = append(y, 0.25*float32(j))
	}
	for k := e.Lo(2); k <= e.Hi(2); k++ {
		z = append(z, float32(k))
	}
	return dataset.NewRectilinear(x, y, z)
}

func curvilinearPoint(gi, gj, gk int) [3]float32 {
	return [3]float32{float32(gi) + 0.125*float32(gj), float32(gj), float32(gk) - 0.5*float32(gi)}
}

func (g *grid) curvilinear(t *testing.T, d int) *dataset.Dataset {
	var (
		e   = g.extents[d].Local()
		xyz []float32
	)
	e.Each(func(i, j, k int) {
		p := curvilinearPoint(g.global(d, i, j, k))
		xyz = append(xyz, p[:]...)
	})
	ds, err := dataset.NewCurvilinear(e.Dims(), xyz)
	require.NoError(t, err)
	return ds
}

// blockOwner spreads the domains over np ranks in contiguous runs
func blockOwner(nd, np int) (owner []int) {
	owner = make([]int, nd)
	for d := range owner {
		owner[d] = d * np / nd
	}
	return
}

func localOf(owner []int, rank int) (local []int) {
	for d, r := range owner {
		if r == rank {
			local = append(local, d)
		}
	}
	return
}

// pick restricts a per-domain map to the given domains
func pick[T any](in map[int]T, local []int) (out map[int]T) {
	out = make(map[int]T, len(local))
	for _, d := range local {
		out[d] = in[d]
	}
	return
}

/*
runRanks runs fn on np in-process ranks, rank r owning the domains owner
assigns it. fn returns per-domain results which are gathered into one map;
the per-rank exchangers come back for their stats.
*/
func runRanks[T any](t *testing.T, g *grid, np int, owner []int, opts Options,
	fn func(x *Exchanger, local []int) (map[int]T, error)) (all map[int]T, xs []*Exchanger) {
	var (
		mu    sync.Mutex
		group = transport.NewLocalGroup(np, 5*time.Second)
	)
	all = make(map[int]T)
	xs = make([]*Exchanger, np)
	require.NoError(t, group.Run(func(c transport.Comm) (err error) {
		var (
			x     *Exchanger
			local = localOf(owner, c.Rank())
			out   map[int]T
		)
		if x, err = New(c, g.topo, opts); err != nil {
			return
		}
		if err = x.SetActive(local); err != nil {
			return
		}
		xs[c.Rank()] = x
		if out, err = fn(x, local); err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for d, v := range out {
			all[d] = v
		}
		return
	}))
	return
}

// rankErrors runs fn on np ranks and keeps the error of each rank apart
func rankErrors(t *testing.T, g *grid, np int, owner []int, fn func(x *Exchanger, local []int) error) (errs []error) {
	var (
		mu    sync.Mutex
		group = transport.NewLocalGroup(np, 5*time.Second)
	)
	errs = make([]error, np)
	require.NoError(t, group.Run(func(c transport.Comm) (err error) {
		var (
			x     *Exchanger
			local = localOf(owner, c.Rank())
		)
		if x, err = New(c, g.topo, Options{}); err != nil {
			return
		}
		if err = x.SetActive(local); err != nil {
			return
		}
		rerr := fn(x, local)
		mu.Lock()
		errs[c.Rank()] = rerr
		mu.Unlock()
		return
	}))
	return
}
