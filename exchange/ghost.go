package exchange

import (
	"errors"
	"fmt"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
)

// realDims is the old node box relative to the new node origin
func realDims(dom *boundary.Domain) []int32 {
	var (
		o = dom.NewNodes.Origin()
		e = dom.OldNodes
	)
	return []int32{
		int32(e.Lo(0) - o[0]), int32(e.Hi(0) - o[0]),
		int32(e.Lo(1) - o[1]), int32(e.Hi(1) - o[1]),
		int32(e.Lo(2) - o[2]), int32(e.Hi(2) - o[2]),
	}
}

/*
CreateGhostZones adds a ghostZones cell array and the RealDims field record
to every merged dataset in updated. Cells that hold neighbor data are flagged
DuplicatedZoneInternalToProblem; gap filled cells stay unflagged. When any
rank's input carries a ghostZones array the flags are seeded from it, so
nested halo passes compose.
*/
func (x *Exchanger) CreateGhostZones(original, updated map[int]*dataset.Dataset) (err error) {
	var (
		topo     *boundary.Topology
		localErr error
		seed     int
		reduced  []int
		seeds    map[int]*dataset.Array
	)
	if topo, err = x.pruned(); err != nil {
		return
	}
	localErr = errors.Join(checkLocal(x, "ghost zone input", original), checkLocal(x, "ghost zone output", updated))
	for _, d := range x.members.Local() {
		var (
			in, out = original[d], updated[d]
			dom     = topo.Domain(d)
		)
		if in == nil || out == nil {
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d has a nil dataset", ErrConfig, d))
			continue
		}
		if out.NumCells() != dom.NewCells.Count() {
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d output has %d cells, expected %d",
				ErrConfig, d, out.NumCells(), dom.NewCells.Count()))
		}
		if g := in.GetCellArray(dataset.GhostZonesName); g != nil {
			if g.Kind != dataset.Byte || g.NComp != 1 || g.Tuples() != dom.OldCells.Count() {
				localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d input %s is %d %s tuples of %d",
					ErrConfig, d, g.Name, g.Tuples(), g.Kind, g.NComp))
			}
			seed = 1
		}
	}
	flag := 0
	if localErr != nil {
		flag = 1
	}
	if reduced, err = x.comm.AllReduceMax([]int{seed, flag}); err != nil {
		return
	}
	if localErr != nil {
		return localErr
	}
	if reduced[1] != 0 {
		return fmt.Errorf("%w: ghost zone input rejected by another rank", ErrConfig)
	}
	if reduced[0] != 0 {
		in := make(map[int]*dataset.Array, len(original))
		for _, d := range x.members.Local() {
			if g := original[d].GetCellArray(dataset.GhostZonesName); g != nil {
				in[d] = g
			} else {
				in[d] = dataset.NewArray(dataset.GhostZonesName, dataset.Byte, 1, topo.Domain(d).OldCells.Count())
			}
		}
		if seeds, err = x.ExchangeArray(in, dataset.Zonal); err != nil {
			return
		}
	}
	for _, d := range x.members.Local() {
		var (
			dom   = topo.Domain(d)
			ne    = dom.NewCells
			ex    = x.classify(topo, d, dataset.Zonal)
			ghost = make([]uint8, ne.Count())
		)
		if seeds != nil {
			copy(ghost, seeds[d].Data)
		}
		for t := range ghost {
			i, j, k := ne.IJK(t)
			switch {
			case ex.source[t] >= 0:
				ghost[t] = 0
			case !dom.OldCells.Contains(i, j, k):
				ghost[t] |= dataset.DuplicatedZoneInternalToProblem
			}
		}
		updated[d].AddCellArray(dataset.NewByteArray(dataset.GhostZonesName, 1, ghost))
		updated[d].AddFieldArray(dataset.NewInt32Array(dataset.RealDimsName, 6, realDims(dom)))
	}
	return
}

/*
CreateGhostNodes adds a ghostNodes point array to every local dataset. A node
shared with an active neighbor of lower id in the whole topology is flagged
DuplicatedNode, so each shared node stays real in exactly one domain. The
datasets may hold either the old or the new nodes; over the new nodes every
halo node is a copy and is flagged too. No data moves between ranks.
*/
func (x *Exchanger) CreateGhostNodes(meshes map[int]*dataset.Dataset) (err error) {
	if x.members.State() != boundary.Built {
		return fmt.Errorf("%w: ghost nodes before SetActive", ErrConfig)
	}
	if err = checkLocal(x, "ghost node input", meshes); err != nil {
		return
	}
	whole := x.members.Whole()
	for _, d := range x.members.Local() {
		var (
			ds   = meshes[d]
			dom  = whole.Domain(d)
			base = dom.OldNodes
		)
		if ds == nil {
			return fmt.Errorf("%w: domain %d has a nil dataset", ErrConfig, d)
		}
		switch ds.NumPoints() {
		case dom.OldNodes.Count():
		case dom.NewNodes.Count():
			base = dom.NewNodes
		default:
			return fmt.Errorf("%w: domain %d has %d points, extents give %d old or %d new",
				ErrConfig, d, ds.NumPoints(), dom.OldNodes.Count(), dom.NewNodes.Count())
		}
		ghost := make([]uint8, base.Count())
		if base == dom.NewNodes {
			base.Each(func(i, j, k int) {
				if !dom.OldNodes.Contains(i, j, k) {
					ghost[base.Index(i, j, k)] = dataset.DuplicatedNode
				}
			})
		}
		for _, nb := range dom.Neighbors {
			if nb.Domain >= d || !x.members.Active(nb.Domain) {
				continue
			}
			nb.Shared.Each(func(i, j, k int) {
				if base.Contains(i, j, k) {
					ghost[base.Index(i, j, k)] |= dataset.DuplicatedNode
				}
			})
		}
		ds.AddPointArray(dataset.NewByteArray(dataset.GhostNodesName, 1, ghost))
	}
	return
}

func isGhostArray(a *dataset.Array) bool {
	return a.Name == dataset.GhostZonesName || a.Name == dataset.GhostNodesName
}

func withoutGhosts(list []*dataset.Array) (out []*dataset.Array) {
	for _, a := range list {
		if !isGhostArray(a) {
			out = append(out, a)
		}
	}
	return
}

/*
ExchangeDataset grows every local dataset as a whole: coordinates, then each
point and cell array matched by position, then ghost zones. Field data is
carried over unchanged apart from RealDims.
*/
func (x *Exchanger) ExchangeDataset(in map[int]*dataset.Dataset) (out map[int]*dataset.Dataset, err error) {
	var (
		shapes [][]int
		shape  []int
	)
	if out, err = x.ExchangeMesh(in); err != nil {
		return
	}
	for _, d := range x.members.Local() {
		shapes = append(shapes, []int{len(withoutGhosts(in[d].PointData)), len(withoutGhosts(in[d].CellData))})
	}
	if shape, _, err = x.agree("dataset array count", shapes, nil); err != nil {
		return
	}
	for c, center := range []dataset.Centering{dataset.Nodal, dataset.Zonal} {
		for i := 0; shape != nil && i < shape[c]; i++ {
			var (
				arrays = make(map[int]*dataset.Array, len(in))
				merged map[int]*dataset.Array
			)
			for _, d := range x.members.Local() {
				list := in[d].PointData
				if center == dataset.Zonal {
					list = in[d].CellData
				}
				arrays[d] = withoutGhosts(list)[i]
			}
			if merged, err = x.ExchangeArray(arrays, center); err != nil {
				return nil, err
			}
			for d, a := range merged {
				out[d].AddArray(a, center)
			}
		}
	}
	for _, d := range x.members.Local() {
		for _, f := range in[d].FieldData {
			if f.Name != dataset.RealDimsName {
				out[d].AddFieldArray(f.Clone())
			}
		}
	}
	err = x.CreateGhostZones(in, out)
	return
}
