package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/types"
)

// orientedPair is two 4x4 cell domains glued along shared0 of 0 and shared1
// of 1, 0 seeing 1 through o
func orientedPair(t *testing.T, o boundary.Orientation, shared0, shared1 types.Extents) *grid {
	box := types.NewExtents(0, 4, 0, 4, 0, 0)
	topo := boundary.NewTopology(2)
	require.NoError(t, topo.SetExtents(0, box))
	require.NoError(t, topo.SetExtents(1, box))
	require.NoError(t, topo.AddNeighbor(0, 1, 0, o, shared0))
	require.NoError(t, topo.AddNeighbor(1, 0, 0, o.Inverse(), shared1))
	require.NoError(t, topo.Finish(0))
	require.NoError(t, topo.Finish(1))
	require.NoError(t, topo.Validate())
	return &grid{topo: topo}
}

func pairValue(d int, p [3]int) float32 { return float32(1000*d + p[0] + 10*p[1]) }

func pairArrays(g *grid, center dataset.Centering, ncomp int) (arrays map[int]*dataset.Array) {
	arrays = make(map[int]*dataset.Array)
	for d := 0; d < 2; d++ {
		var vals []float32
		oldExtents(g.topo.Domain(d), center).Each(func(i, j, k int) {
			for c := 0; c < ncomp; c++ {
				vals = append(vals, pairValue(d, [3]int{i, j, k})+0.5*float32(c))
			}
		})
		arrays[d] = dataset.NewFloat32Array("field", ncomp, vals)
	}
	return
}

func pairMaterial(d int, p [3]int) (clean int32, mats []int32, vfs []float32) {
	if (p[0]+p[1])%2 != 0 {
		return int32(d), nil, nil
	}
	vf := float32(1+p[0]+4*p[1]+16*d) / 64
	return -1, []int32{0, 1}, []float32{vf, 1 - vf}
}

func pairMaterials(g *grid) (mats map[int]*dataset.Material) {
	mats = make(map[int]*dataset.Material)
	for d := 0; d < 2; d++ {
		var (
			old = g.topo.Domain(d).OldCells
			m   = dataset.NewMaterial([]string{"steel", "air"}, old.Count())
		)
		old.Each(func(i, j, k int) {
			c := old.Index(i, j, k)
			if clean, ms, vfs := pairMaterial(d, [3]int{i, j, k}); clean >= 0 {
				m.Matlist[c] = clean
			} else {
				m.AppendRun(c, ms, vfs)
			}
		})
		mats[d] = m
	}
	return
}

func TestOrientedExchange(t *testing.T) {
	var (
		east  = types.NewExtents(4, 4, 0, 4, 0, 0)
		south = types.NewExtents(0, 4, 0, 0, 0, 0)
	)
	// cell and node give the index in the other domain feeding halo entry q of d
	for _, tc := range []struct {
		name             string
		orient           boundary.Orientation
		shared0, shared1 types.Extents
		cell, node       func(d int, q [3]int) [3]int
	}{
		{
			name:    "east face to east face, both axes reversed",
			orient:  boundary.Orientation{-1, -2, 3},
			shared0: east, shared1: east,
			cell: func(d int, q [3]int) [3]int { return [3]int{3, 3 - q[1], 0} },
			node: func(d int, q [3]int) [3]int { return [3]int{3, 4 - q[1], 0} },
		},
		{
			name:    "east face to south face, axes swapped",
			orient:  boundary.Orientation{2, 1, 3},
			shared0: east, shared1: south,
			cell: func(d int, q [3]int) [3]int {
				if d == 0 {
					return [3]int{q[1], 0, 0}
				}
				return [3]int{3, q[0], 0}
			},
			node: func(d int, q [3]int) [3]int {
				if d == 0 {
					return [3]int{q[1], 1, 0}
				}
				return [3]int{3, q[0], 0}
			},
		},
	} {
		g := orientedPair(t, tc.orient, tc.shared0, tc.shared1)
		for _, owner := range [][]int{{0, 0}, {0, 1}} {
			np := owner[1] + 1
			for _, c := range []struct {
				center dataset.Centering
				ncomp  int
				src    func(d int, q [3]int) [3]int
			}{
				{dataset.Zonal, 2, tc.cell},
				{dataset.Nodal, 1, tc.node},
			} {
				in := pairArrays(g, c.center, c.ncomp)
				all, _ := runRanks(t, g, np, owner, Options{ValidateOrder: true},
					func(x *Exchanger, local []int) (map[int]*dataset.Array, error) {
						return x.ExchangeArray(pick(in, local), c.center)
					})
				require.Len(t, all, 2, tc.name)
				for d, a := range all {
					var (
						dom = g.topo.Domain(d)
						old = oldExtents(dom, c.center)
						ne  = newExtents(dom, c.center)
					)
					require.Equal(t, ne.Count(), a.Tuples())
					ne.Each(func(i, j, k int) {
						var (
							q    = [3]int{i, j, k}
							want = pairValue(d, q)
						)
						if !old.Contains(i, j, k) {
							want = pairValue(1-d, c.src(d, q))
						}
						for comp := 0; comp < c.ncomp; comp++ {
							assert.Equal(t, want+0.5*float32(comp), a.Float32At(ne.Index(i, j, k), comp),
								"%s np %d %s domain %d at %v", tc.name, np, c.center, d, q)
						}
					})
				}
			}
			{ // Mixed runs follow the same cells
				mats := pairMaterials(g)
				all, _ := runRanks(t, g, np, owner, Options{},
					func(x *Exchanger, local []int) (map[int]*dataset.Material, error) {
						return x.ExchangeMaterial(pick(mats, local))
					})
				require.Len(t, all, 2, tc.name)
				for d, m := range all {
					checkMixlen(t, m)
					dom := g.topo.Domain(d)
					dom.NewCells.Each(func(i, j, k int) {
						var (
							q    = [3]int{i, j, k}
							c    = dom.NewCells.Index(i, j, k)
							from = d
							p    = q
						)
						if !dom.OldCells.Contains(i, j, k) {
							from, p = 1-d, tc.cell(d, q)
						}
						clean, ms, vfs := pairMaterial(from, p)
						if clean >= 0 {
							assert.Equal(t, clean, m.Matlist[c], "%s np %d domain %d at %v", tc.name, np, d, q)
							return
						}
						var n int
						for rec := range m.Chain(c) {
							require.Less(t, n, len(ms))
							assert.Equal(t, ms[n], m.MixMat[rec])
							assert.Equal(t, vfs[n], m.MixVF[rec], "%s np %d domain %d at %v", tc.name, np, d, q)
							n++
						}
						assert.Equal(t, len(ms), n)
					})
				}
			}
		}
	}
}
