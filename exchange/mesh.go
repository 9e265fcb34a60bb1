package exchange

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
)

// nodeCoordinates lays out the xyz of every node of ds as 3 float32, i fastest
func nodeCoordinates(ds *dataset.Dataset) (buf []byte) {
	if ds.Type == dataset.Curvilinear {
		return ds.Points.Data
	}
	buf = make([]byte, 12*ds.NumPoints())
	var n int
	for k := 0; k < ds.Dims[2]; k++ {
		for j := 0; j < ds.Dims[1]; j++ {
			for i := 0; i < ds.Dims[0]; i++ {
				for c, v := range ds.Coordinate(i, j, k) {
					binary.LittleEndian.PutUint32(buf[12*n+4*c:], math.Float32bits(v))
				}
				n++
			}
		}
	}
	return
}

/*
ExchangeMesh grows the coordinates of every local domain by one layer of
nodes. The returned datasets carry only coordinates; arrays go through
ExchangeArray or ExchangeDataset.
*/
func (x *Exchanger) ExchangeMesh(meshes map[int]*dataset.Dataset) (out map[int]*dataset.Dataset, err error) {
	var (
		topo     *boundary.Topology
		shapes   [][]int
		localErr error
		shape    []int
		present  bool
		a        *Arena
		src      = make(map[int][]byte, len(meshes))
	)
	if topo, err = x.pruned(); err != nil {
		return
	}
	x.Stats.Exchanges++
	localErr = checkLocal(x, "mesh input", meshes)
	for _, d := range x.members.Local() {
		ds := meshes[d]
		if ds == nil {
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d has a nil mesh", ErrConfig, d))
			continue
		}
		if err := ds.Validate(); err != nil {
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d: %w", ErrConfig, d, err))
			continue
		}
		if want := topo.Domain(d).OldNodes.Dims(); ds.Dims != want {
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d mesh dims %v, extents give %v",
				ErrConfig, d, ds.Dims, want))
			continue
		}
		shapes = append(shapes, []int{int(ds.Type)})
		src[d] = nodeCoordinates(ds)
	}
	if shape, present, err = x.agree("mesh type", shapes, localErr); err != nil || !present {
		return
	}
	if a, err = x.fixed(topo, dataset.Nodal, 12, src); err != nil {
		return
	}
	out = make(map[int]*dataset.Dataset, len(meshes))
	for _, d := range x.members.Local() {
		var (
			merged []byte
			dims   = topo.Domain(d).NewNodes.Dims()
		)
		if merged, err = x.mergeFixed(topo, d, dataset.Nodal, 12, src[d], a); err != nil {
			return nil, err
		}
		if dataset.MeshType(shape[0]) == dataset.Curvilinear {
			out[d] = &dataset.Dataset{
				Type:   dataset.Curvilinear,
				Dims:   dims,
				Points: &dataset.Array{Name: meshes[d].Points.Name, Kind: dataset.Float32, NComp: 3, Data: merged},
			}
			continue
		}
		xyz := x.collapse(topo, d, merged)
		out[d] = dataset.NewRectilinear(xyz[0], xyz[1], xyz[2])
	}
	return
}

/*
collapse recovers per axis coordinates from merged nodal xyz. Each axis index
takes its value from a node that exists when there is one, otherwise from a
gap filled node.
*/
func (x *Exchanger) collapse(topo *boundary.Topology, d int, merged []byte) (xyz [3][]float32) {
	var (
		ne   = topo.Domain(d).NewNodes
		dims = ne.Dims()
		ex   = x.classify(topo, d, dataset.Nodal)
		rank [3][]int8 // 0 unset, 1 from a filled node, 2 from an existing node
	)
	for a := 0; a < 3; a++ {
		xyz[a] = make([]float32, dims[a])
		rank[a] = make([]int8, dims[a])
	}
	for n := 0; n < ne.Count(); n++ {
		var (
			i, j, k = ne.IJK(n)
			idx     = [3]int{i - ne.Lo(0), j - ne.Lo(1), k - ne.Lo(2)}
			r       = int8(1)
		)
		if ex.exists[n] {
			r = 2
		}
		for a := 0; a < 3; a++ {
			if rank[a][idx[a]] < r {
				xyz[a][idx[a]] = math.Float32frombits(binary.LittleEndian.Uint32(merged[12*n+4*a:]))
				rank[a][idx[a]] = r
			}
		}
	}
	return
}
