package BlockGrid

import (
	"bytes"
	"fmt"

	"go.uber.org/multierr"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/types"
)

const maxProblems = 20

// verifier checks exchanged domains against the closed forms they were built from
type verifier struct {
	bg       *BlockGrid
	pruned   *boundary.Topology
	problems error
	count    int
}

func newVerifier(bg *BlockGrid, pruned *boundary.Topology) *verifier {
	return &verifier{bg: bg, pruned: pruned}
}

func (v *verifier) failf(format string, args ...any) {
	v.count++
	if v.count <= maxProblems {
		v.problems = multierr.Append(v.problems, fmt.Errorf(format, args...))
	}
}

func (v *verifier) err() error {
	if v.count > maxProblems {
		return multierr.Append(v.problems, fmt.Errorf("%d more problems", v.count-maxProblems))
	}
	return v.problems
}

/*
Verify checks every domain of res against the closed forms it was built
from, pruned being the active topology of the run. Halo entries that exist
must hold their owner's values, gap entries only need consistent flags and
mixed chains. The returned error lists at most maxProblems problems.
*/
func (bg *BlockGrid) Verify(pruned *boundary.Topology, res *Result) error {
	v := newVerifier(bg, pruned)
	for d, ds := range res.Datasets {
		v.dataset(d, ds)
		if res.Materials != nil {
			v.material(d, res.Materials[d], res.MixVars[d])
		}
	}
	return v.err()
}

// Errors splits err into the problems one verification found
func Errors(err error) []error { return multierr.Errors(err) }

// exists marks the entries of a domain's new extents that hold real data
func (v *verifier) exists(d int, center dataset.Centering) (ne types.Extents, ex []bool) {
	var (
		dom = v.pruned.Domain(d)
		old = dom.OldCells
	)
	ne = dom.NewCells
	if center == dataset.Nodal {
		ne, old = dom.NewNodes, dom.OldNodes
	}
	ex = make([]bool, ne.Count())
	mark := func(e types.Extents) {
		e.Each(func(i, j, k int) { ex[ne.Index(i, j, k)] = true })
	}
	mark(old)
	for _, nb := range dom.Neighbors {
		if center == dataset.Nodal {
			mark(nb.GhostNodes)
		} else {
			mark(nb.GhostCells)
		}
	}
	return
}

func (v *verifier) dataset(d int, ds *dataset.Dataset) {
	var (
		dom = v.pruned.Domain(d)
		nn  = dom.NewNodes
	)
	if ds == nil {
		v.failf("domain %d: missing dataset", d)
		return
	}
	if err := ds.Validate(); err != nil {
		v.failf("domain %d: %w", d, err)
		return
	}
	if ds.Dims != nn.Dims() {
		v.failf("domain %d: dims %v, expected %v", d, ds.Dims, nn.Dims())
		return
	}
	ne, ex := v.exists(d, dataset.Nodal)
	ne.Each(func(i, j, k int) {
		if !ex[ne.Index(i, j, k)] {
			return
		}
		var (
			g    = v.bg.global(d, [3]int{i, j, k})
			want [3]float32
			got  = ds.Coordinate(i-nn.Lo(0), j-nn.Lo(1), k-nn.Lo(2))
		)
		if ds.Type == dataset.Curvilinear {
			want = curvilinearPoint(g)
		} else {
			for a := range want {
				want[a] = float32(g[a]) * v.bg.spacing(a)
			}
		}
		if got != want {
			v.failf("domain %d: node (%d,%d,%d) at %v, expected %v", d, i, j, k, got, want)
		}
	})
	for _, f := range v.bg.fields {
		a := ds.GetArray(f.name, f.center)
		if a == nil {
			v.failf("domain %d: missing %s array %q", d, f.center, f.name)
			continue
		}
		ne, ex := v.exists(d, f.center)
		if a.Tuples() != ne.Count() {
			v.failf("domain %d: %q has %d tuples, expected %d", d, f.name, a.Tuples(), ne.Count())
			continue
		}
		ne.Each(func(i, j, k int) {
			n := ne.Index(i, j, k)
			if want := f.tuple(v.bg.global(d, [3]int{i, j, k})); ex[n] && !bytes.Equal(a.Tuple(n), want) {
				v.failf("domain %d: %q at (%d,%d,%d) is %v, expected %v", d, f.name, i, j, k, a.Tuple(n), want)
			}
		})
	}
	if dv := ds.GetFieldArray("domain"); dv == nil || dv.Int32s()[0] != int32(d) {
		v.failf("domain %d: field data did not survive the exchange", d)
	}
	v.ghostZones(d, ds)
	if v.bg.Scenario.GhostNodes {
		v.ghostNodes(d, ds)
	}
}

func (v *verifier) ghostZones(d int, ds *dataset.Dataset) {
	var (
		dom    = v.pruned.Domain(d)
		ne, ex = v.exists(d, dataset.Zonal)
		a      = ds.GetCellArray(dataset.GhostZonesName)
	)
	if a == nil || a.Tuples() != ne.Count() {
		v.failf("domain %d: missing or misshaped %s", d, dataset.GhostZonesName)
		return
	}
	flags := a.Bytes()
	ne.Each(func(i, j, k int) {
		n := ne.Index(i, j, k)
		want := uint8(0)
		if ex[n] && !dom.OldCells.Contains(i, j, k) {
			want = dataset.DuplicatedZoneInternalToProblem
		}
		if flags[n] != want {
			v.failf("domain %d: ghost zone flag at (%d,%d,%d) is %d, expected %d", d, i, j, k, flags[n], want)
		}
	})
	rd := ds.GetFieldArray(dataset.RealDimsName)
	if rd == nil {
		v.failf("domain %d: missing %s", d, dataset.RealDimsName)
		return
	}
	want := make([]int32, 6)
	for a := 0; a < 3; a++ {
		want[2*a] = int32(dom.OldNodes.Lo(a) - dom.NewNodes.Lo(a))
		want[2*a+1] = int32(dom.OldNodes.Hi(a) - dom.NewNodes.Lo(a))
	}
	if got := rd.Int32s(); fmt.Sprint(got) != fmt.Sprint(want) {
		v.failf("domain %d: %s is %v, expected %v", d, dataset.RealDimsName, got, want)
	}
}

// ghostNodes expects a flag on every halo node and on every node shared with
// an active neighbor of lower id
func (v *verifier) ghostNodes(d int, ds *dataset.Dataset) {
	var (
		dom = v.pruned.Domain(d)
		nn  = dom.NewNodes
		a   = ds.GetPointArray(dataset.GhostNodesName)
	)
	if a == nil || a.Tuples() != nn.Count() {
		v.failf("domain %d: missing or misshaped %s", d, dataset.GhostNodesName)
		return
	}
	flags := a.Bytes()
	nn.Each(func(i, j, k int) {
		want := uint8(0)
		if !dom.OldNodes.Contains(i, j, k) {
			want = dataset.DuplicatedNode
		}
		for _, nb := range dom.Neighbors {
			if nb.Domain < d && nb.Shared.Contains(i, j, k) {
				want = dataset.DuplicatedNode
			}
		}
		if got := flags[nn.Index(i, j, k)]; got != want {
			v.failf("domain %d: ghost node flag at (%d,%d,%d) is %d, expected %d", d, i, j, k, got, want)
		}
	})
}

func (v *verifier) material(d int, m *dataset.Material, mv *dataset.MixVar) {
	ne, ex := v.exists(d, dataset.Zonal)
	if m == nil || mv == nil {
		v.failf("domain %d: missing material or mixed variable", d)
		return
	}
	if err := m.Validate(); err != nil {
		v.failf("domain %d: %w", d, err)
		return
	}
	if m.NumCells() != ne.Count() || len(mv.Values) != ne.Count() {
		v.failf("domain %d: material over %d cells, values over %d, expected %d",
			d, m.NumCells(), len(mv.Values), ne.Count())
		return
	}
	if len(mv.MixValues) != m.Mixlen() {
		v.failf("domain %d: %d mixed values for mixlen %d", d, len(mv.MixValues), m.Mixlen())
		return
	}
	ne.Each(func(i, j, k int) {
		var (
			c = ne.Index(i, j, k)
			g = v.bg.global(d, [3]int{i, j, k})
		)
		for rec := range m.Chain(c) {
			if m.MixZone[rec] != int32(c) {
				v.failf("domain %d: record %d of cell %d names zone %d", d, rec, c, m.MixZone[rec])
			}
			if want := mixValue(mv.Values[c], m.MixVF[rec]); mv.MixValues[rec] != want {
				v.failf("domain %d: mixed value %d is %g, expected %g", d, rec, mv.MixValues[rec], want)
			}
		}
		if !ex[c] {
			return
		}
		if want := cellValue(g); mv.Values[c] != want {
			v.failf("domain %d: %s at (%d,%d,%d) is %g, expected %g", d, mv.Name, i, j, k, mv.Values[c], want)
		}
		clean, mats, vfs := material(g)
		if clean >= 0 {
			if m.Matlist[c] != clean {
				v.failf("domain %d: cell (%d,%d,%d) is material %d, expected %d", d, i, j, k, m.Matlist[c], clean)
			}
			return
		}
		var n int
		for rec := range m.Chain(c) {
			if n < len(mats) && (m.MixMat[rec] != mats[n] || m.MixVF[rec] != vfs[n]) {
				v.failf("domain %d: cell (%d,%d,%d) record %d is (%d, %g), expected (%d, %g)",
					d, i, j, k, n, m.MixMat[rec], m.MixVF[rec], mats[n], vfs[n])
			}
			n++
		}
		if n != len(mats) {
			v.failf("domain %d: cell (%d,%d,%d) has %d mix records, expected %d", d, i, j, k, n, len(mats))
		}
	})
}

func (v *verifier) report(d int, res *Result) (dr DomainReport) {
	dom := v.pruned.Domain(d)
	dr = DomainReport{
		ID:       d,
		Rank:     v.bg.Owner[d],
		OldCells: dom.OldCells.Count(),
		NewCells: dom.NewCells.Count(),
	}
	_, ex := v.exists(d, dataset.Zonal)
	for _, e := range ex {
		if !e {
			dr.GapCells++
		}
	}
	if ds := res.Datasets[d]; ds != nil {
		if a := ds.GetCellArray(dataset.GhostZonesName); a != nil {
			for _, f := range a.Bytes() {
				if f&dataset.DuplicatedZoneInternalToProblem != 0 {
					dr.GhostCells++
				}
			}
		}
	}
	if m := res.Materials[d]; m != nil {
		dr.Mixlen = m.Mixlen()
	}
	return
}
