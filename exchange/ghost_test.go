package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/transport"
	"github.com/notargets/ghostzones/types"
)

func (g *grid) datasets(local []int) (in map[int]*dataset.Dataset) {
	var (
		cells = g.fieldArrays(dataset.Zonal)
		nodes = g.fieldArrays(dataset.Nodal)
	)
	in = make(map[int]*dataset.Dataset)
	for _, d := range local {
		ds := g.rectilinear(d)
		ds.AddCellArray(cells[d])
		nodes[d].Name = "density"
		ds.AddPointArray(nodes[d])
		ds.AddFieldArray(dataset.NewInt32Array("cycle", 1, []int32{7}))
		in[d] = ds
	}
	return
}

func count(flags []uint8, bit uint8) (n int) {
	for _, f := range flags {
		if f&bit != 0 {
			n++
		}
	}
	return
}

func TestCreateGhostZones(t *testing.T) {
	g := grid2x2(t)
	{ // Everyone active: the halo row and column of 0 are flagged
		all, _ := runRanks(t, g, 2, []int{0, 1, 1, 0}, Options{},
			func(x *Exchanger, local []int) (map[int]*dataset.Dataset, error) {
				return x.ExchangeDataset(g.datasets(local))
			})
		require.Len(t, all, 4)
		for d, ds := range all {
			require.NoError(t, ds.Validate())
			assert.NotNil(t, ds.GetCellArray("field"))
			assert.NotNil(t, ds.GetPointArray("density"))
			assert.Equal(t, []int32{7}, ds.GetFieldArray("cycle").Int32s())
			ghost := ds.GetCellArray(dataset.GhostZonesName).Bytes()
			assert.Equal(t, 9, count(ghost, dataset.DuplicatedZoneInternalToProblem), "domain %d", d)
		}
		var (
			ne    = g.topo.Domain(0).NewCells
			ghost = all[0].GetCellArray(dataset.GhostZonesName).Bytes()
		)
		ne.Each(func(i, j, k int) {
			want := uint8(0)
			if i == 4 || j == 4 {
				want = dataset.DuplicatedZoneInternalToProblem
			}
			assert.Equal(t, want, ghost[ne.Index(i, j, k)], "cell (%d,%d)", i, j)
		})
		assert.Equal(t, []int32{0, 4, 0, 4, 0, 0}, all[0].GetFieldArray(dataset.RealDimsName).Int32s())
		assert.Equal(t, []int32{1, 5, 1, 5, 0, 0}, all[3].GetFieldArray(dataset.RealDimsName).Int32s())
	}
	{ // 3 inactive: the gap filled corner of 0 stays unflagged
		all, _ := runRanks(t, g, 1, []int{0, 0, 0, boundary.None}, Options{},
			func(x *Exchanger, local []int) (map[int]*dataset.Dataset, error) {
				return x.ExchangeDataset(g.datasets(local))
			})
		var (
			ne    = g.topo.Domain(0).NewCells
			ghost = all[0].GetCellArray(dataset.GhostZonesName).Bytes()
		)
		assert.Equal(t, uint8(0), ghost[ne.Index(4, 4, 0)])
		assert.Equal(t, 8, count(ghost, dataset.DuplicatedZoneInternalToProblem))
	}
	{ // Flags already present in the input travel with the data
		const external uint8 = 2
		all, _ := runRanks(t, g, 2, []int{0, 1, 0, 1}, Options{},
			func(x *Exchanger, local []int) (map[int]*dataset.Dataset, error) {
				in := g.datasets(local)
				if ds, ok := in[1]; ok {
					flags := make([]uint8, ds.NumCells())
					for i := range flags {
						flags[i] = external
					}
					ds.AddCellArray(dataset.NewByteArray(dataset.GhostZonesName, 1, flags))
				}
				return x.ExchangeDataset(in)
			})
		var (
			ne    = g.topo.Domain(0).NewCells
			ghost = all[0].GetCellArray(dataset.GhostZonesName).Bytes()
		)
		for j := 0; j < 4; j++ {
			assert.Equal(t, external|dataset.DuplicatedZoneInternalToProblem, ghost[ne.Index(4, j, 0)])
			assert.Equal(t, dataset.DuplicatedZoneInternalToProblem, ghost[ne.Index(j, 4, 0)])
		}
		assert.Equal(t, 16, count(all[1].GetCellArray(dataset.GhostZonesName).Bytes(), external))
	}
}

func TestCreateGhostNodes(t *testing.T) {
	g := grid2x2(t)
	for _, tc := range []struct {
		owner []int
		flags [4]int
	}{
		{[]int{0, 0, 0, 0}, [4]int{0, 5, 5, 9}},
		{[]int{0, 0, boundary.None, 0}, [4]int{0, 5, 0, 5}},
	} {
		x, err := New(transport.NewSerial(), g.topo, Options{})
		require.NoError(t, err)
		require.NoError(t, x.SetActive(localOf(tc.owner, 0)))
		in := g.datasets(localOf(tc.owner, 0))
		require.NoError(t, x.CreateGhostNodes(in))
		for d, ds := range in {
			ghost := ds.GetPointArray(dataset.GhostNodesName).Bytes()
			require.Len(t, ghost, ds.NumPoints())
			assert.Equal(t, tc.flags[d], count(ghost, dataset.DuplicatedNode), "owner %v domain %d", tc.owner, d)
		}
		{ // Datasets already grown are indexed over the new nodes
			grown := map[int]*dataset.Dataset{}
			for _, d := range localOf(tc.owner, 0) {
				ne := g.topo.Domain(d).NewNodes.Dims()
				grown[d] = dataset.NewRectilinear(make([]float32, ne[0]), make([]float32, ne[1]), make([]float32, ne[2]))
			}
			require.NoError(t, x.CreateGhostNodes(grown))
			var (
				nn    = g.topo.Domain(1).NewNodes
				ghost = grown[1].GetPointArray(dataset.GhostNodesName).Bytes()
			)
			assert.Equal(t, types.NewExtents(-1, 4, 0, 5, 0, 0), nn)
			for j := 0; j <= 4; j++ {
				assert.Equal(t, dataset.DuplicatedNode, ghost[nn.Index(0, j, 0)])
				assert.Equal(t, dataset.DuplicatedNode, ghost[nn.Index(-1, j, 0)])
				assert.Zero(t, ghost[nn.Index(1, j, 0)])
			}
			// Halo row and column copies plus the nodes shared with 0
			assert.Equal(t, 11+5, count(ghost, dataset.DuplicatedNode))
			ghost0 := grown[0].GetPointArray(dataset.GhostNodesName).Bytes()
			assert.Equal(t, 11, count(ghost0, dataset.DuplicatedNode))
		}
		assert.ErrorIs(t, x.CreateGhostNodes(map[int]*dataset.Dataset{0: in[0]}), ErrConfig)
	}
}
