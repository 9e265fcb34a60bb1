package exchange

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/transport"
)

// cellCodes is the fixed part of a material payload: the material of a clean
// cell, or minus the run length of a mixed one
func cellCodes(m *dataset.Material) (buf []byte) {
	buf = make([]byte, 4*m.NumCells())
	for c, ml := range m.Matlist {
		code := ml
		if ml < 0 {
			code = -int32(m.RunLength(c))
		}
		binary.LittleEndian.PutUint32(buf[4*c:], uint32(code))
	}
	return
}

func putInt32(col []byte, r int, v int32) { binary.LittleEndian.PutUint32(col[4*r:], uint32(v)) }
func putFloat32(col []byte, r int, v float32) {
	binary.LittleEndian.PutUint32(col[4*r:], math.Float32bits(v))
}
func getInt32(col []byte, r int) int32     { return int32(binary.LittleEndian.Uint32(col[4*r:])) }
func getFloat32(col []byte, r int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(col[4*r:])) }

/*
walkRecords calls fn for every mix record in the send region of edge (d,n),
cells in wire order and records in chain order, with the running record
number r on that edge.
*/
func walkRecords(topo *boundary.Topology, d, n int, m *dataset.Material, fn func(r, cell, rec int)) {
	var (
		dom = topo.Domain(d)
		old = dom.OldCells
		r   int
	)
	dom.Neighbors[n].SendCells.Each(func(i, j, k int) {
		cell := old.Index(i, j, k)
		for rec := range m.Chain(cell) {
			fn(r, cell, rec)
			r++
		}
	})
}

// runSink receives the mix records of one merged domain, run by run
type runSink interface {
	// own appends the local run of old cell for new cell t
	own(t, old int)
	// remote appends count records starting at first from the columns of one
	// neighbor's buffer, zone is the sender cell the records must name
	remote(t int, cols [][]byte, first, count int, zone int32) error
	// duplicate appends a copy of count already merged records starting at first
	duplicate(t, first, count int)
	len() int
}

func splitColumns(buf []byte, ncol int) (cols [][]byte) {
	w := len(buf) / ncol
	cols = make([][]byte, ncol)
	for c := range cols {
		cols[c] = buf[c*w : (c+1)*w]
	}
	return
}

/*
mergeMixed lays out the runs of one domain over its new cells: own cells in
old order, then neighbor cells in neighbor order, then gap copies in new index
order, each run a contiguous block. It returns the new matlist and the run
length per new cell. codes is the exchanged cell code arena, recs the record
arena with ncol columns.
*/
func (x *Exchanger) mergeMixed(topo *boundary.Topology, d int, ownCodes []byte,
	codes, recs *Arena, ncol int, sink runSink) (matlist []int32, runs []int, err error) {
	var (
		dom    = topo.Domain(d)
		ne     = dom.NewCells
		recOff = make([][]int, len(dom.Neighbors))
		cols   = make([][][]byte, len(dom.Neighbors))
		first  = make([]int, ne.Count())
		runErr error
	)
	matlist = make([]int32, ne.Count())
	runs = make([]int, ne.Count())
	for n, nb := range dom.Neighbors {
		var (
			buf = codes.Buffer(nb.Domain, nb.Match)
			off int
		)
		if buf == nil || !recs.Has(nb.Domain, nb.Match) {
			return nil, nil, fmt.Errorf("%w: domain %d has no material buffer from neighbor %d (domain %d)",
				ErrConfig, d, n, nb.Domain)
		}
		recOff[n] = make([]int, len(buf)/4)
		for s := range recOff[n] {
			recOff[n][s] = off
			if c := getInt32(buf, s); c < 0 {
				off += int(-c)
			}
		}
		cols[n] = splitColumns(recs.Buffer(nb.Domain, nb.Match), ncol)
		if have := len(cols[n][0]) / 4; have != off {
			return nil, nil, fmt.Errorf("%w: domain %d neighbor %d carries %d mix records, codes announce %d",
				transport.ErrTransport, d, n, have, off)
		}
	}
	err = x.scatter(topo, d, dataset.Zonal, codes, func(t, n, slot int, p [3]int) {
		if runErr != nil {
			return
		}
		var code int32
		if n < 0 {
			code = getInt32(ownCodes, slot)
		} else {
			code = getInt32(codes.Buffer(dom.Neighbors[n].Domain, dom.Neighbors[n].Match), slot)
		}
		if code >= 0 {
			matlist[t] = code
			return
		}
		first[t], runs[t] = sink.len(), int(-code)
		matlist[t] = -int32(first[t] + 1)
		if n < 0 {
			sink.own(t, slot)
		} else {
			sender := topo.Domain(dom.Neighbors[n].Domain)
			zone := int32(sender.OldCells.Index(p[0], p[1], p[2]))
			runErr = sink.remote(t, cols[n], recOff[n][slot], runs[t], zone)
		}
	})
	if err = errors.Join(err, runErr); err != nil {
		return nil, nil, err
	}
	for t, s := range x.classify(topo, d, dataset.Zonal).source {
		if s < 0 {
			continue
		}
		if matlist[s] >= 0 {
			matlist[t] = matlist[s]
			continue
		}
		first[t], runs[t] = sink.len(), runs[s]
		matlist[t] = -int32(first[t] + 1)
		sink.duplicate(t, first[s], runs[s])
	}
	return
}

// linkRuns rebuilds MixNext for contiguous runs
func linkRuns(matlist []int32, runs []int, mixlen int) (next []int32) {
	next = make([]int32, mixlen)
	for c, ml := range matlist {
		if ml >= 0 {
			continue
		}
		first := int(-ml - 1)
		for r := 0; r < runs[c]-1; r++ {
			next[first+r] = int32(first + r + 2)
		}
	}
	return
}

type materialSink struct {
	old *dataset.Material
	out *dataset.Material
}

func (s *materialSink) add(t int, mat int32, vf float32) {
	s.out.MixMat = append(s.out.MixMat, mat)
	s.out.MixZone = append(s.out.MixZone, int32(t))
	s.out.MixVF = append(s.out.MixVF, vf)
}

func (s *materialSink) own(t, old int) {
	for rec := range s.old.Chain(old) {
		s.add(t, s.old.MixMat[rec], s.old.MixVF[rec])
	}
}

func (s *materialSink) remote(t int, cols [][]byte, first, count int, zone int32) (err error) {
	for r := first; r < first+count; r++ {
		if z := getInt32(cols[1], r); z != zone {
			return fmt.Errorf("%w: mix record %d names sender cell %d, expected %d",
				transport.ErrTransport, r, z, zone)
		}
		s.add(t, getInt32(cols[0], r), getFloat32(cols[2], r))
	}
	return
}

func (s *materialSink) duplicate(t, first, count int) {
	for r := first; r < first+count; r++ {
		s.add(t, s.out.MixMat[r], s.out.MixVF[r])
	}
}

func (s *materialSink) len() int { return len(s.out.MixMat) }

type mixVarSink struct {
	mat *dataset.Material
	old []float32
	out []float32
}

func (s *mixVarSink) own(t, old int) {
	for rec := range s.mat.Chain(old) {
		s.out = append(s.out, s.old[rec])
	}
}

func (s *mixVarSink) remote(t int, cols [][]byte, first, count int, zone int32) (err error) {
	for r := first; r < first+count; r++ {
		if z := getInt32(cols[0], r); z != zone {
			return fmt.Errorf("%w: mix value %d names sender cell %d, expected %d",
				transport.ErrTransport, r, z, zone)
		}
		s.out = append(s.out, getFloat32(cols[1], r))
	}
	return
}

func (s *mixVarSink) duplicate(t, first, count int) {
	s.out = append(s.out, s.out[first:first+count]...)
}

func (s *mixVarSink) len() int { return len(s.out) }

// checkMaterials gathers the local input errors of a material exchange
func checkMaterials(x *Exchanger, topo *boundary.Topology, mats map[int]*dataset.Material) (shapes [][]int, localErr error) {
	localErr = checkLocal(x, "material input", mats)
	for _, d := range x.members.Local() {
		m := mats[d]
		if m == nil {
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d has a nil material", ErrConfig, d))
			continue
		}
		if want := topo.Domain(d).OldCells.Count(); m.NumCells() != want {
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d material covers %d cells, expected %d",
				ErrConfig, d, m.NumCells(), want))
			continue
		}
		if err := m.Validate(); err != nil {
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d: %w", ErrConfig, d, err))
			continue
		}
		shapes = append(shapes, []int{m.NMaterials()})
	}
	return
}

// exchangeCodes moves the fixed cell codes of every local material
func (x *Exchanger) exchangeCodes(topo *boundary.Topology, mats map[int]*dataset.Material) (own map[int][]byte, a *Arena, err error) {
	own = make(map[int][]byte, len(mats))
	for _, d := range x.members.Local() {
		own[d] = cellCodes(mats[d])
	}
	a, err = x.fixed(topo, dataset.Zonal, 4, own)
	return
}

func (x *Exchanger) recordCounter(topo *boundary.Topology, mats map[int]*dataset.Material) func(d, n int) int {
	return func(d, n int) (count int) {
		walkRecords(topo, d, n, mats[d], func(int, int, int) { count++ })
		return
	}
}

/*
ExchangeMaterial grows the material description of every local domain over
its new cells. Clean cells travel as their material index; mixed cells as a
run length plus one (material, zone, volume fraction) record per entry.
*/
func (x *Exchanger) ExchangeMaterial(mats map[int]*dataset.Material) (out map[int]*dataset.Material, err error) {
	var (
		topo     *boundary.Topology
		shapes   [][]int
		localErr error
		present  bool
		own      map[int][]byte
		codes    *Arena
		recs     *Arena
	)
	if topo, err = x.pruned(); err != nil {
		return
	}
	x.Stats.Exchanges++
	shapes, localErr = checkMaterials(x, topo, mats)
	if _, present, err = x.agree("material count", shapes, localErr); err != nil || !present {
		return
	}
	if own, codes, err = x.exchangeCodes(topo, mats); err != nil {
		return
	}
	recs, err = x.exchangeVariable(topo, 3, x.recordCounter(topo, mats), func(d, n int, cols [][]byte) {
		m := mats[d]
		walkRecords(topo, d, n, m, func(r, cell, rec int) {
			putInt32(cols[0], r, m.MixMat[rec])
			putInt32(cols[1], r, int32(cell))
			putFloat32(cols[2], r, m.MixVF[rec])
		})
	})
	if err != nil {
		return
	}
	out = make(map[int]*dataset.Material, len(mats))
	for _, d := range x.members.Local() {
		var (
			sink = &materialSink{
				old: mats[d],
				out: &dataset.Material{Names: slices.Clone(mats[d].Names)},
			}
			runs []int
		)
		if sink.out.Matlist, runs, err = x.mergeMixed(topo, d, own[d], codes, recs, 3, sink); err != nil {
			return nil, fmt.Errorf("domain %d: %w", d, err)
		}
		sink.out.MixNext = linkRuns(sink.out.Matlist, runs, sink.len())
		out[d] = sink.out
	}
	return
}

/*
ExchangeMixVar grows a mixed variable along with its material. mats must be
the pre-exchange materials the variables belong to; the merged MixValues line
up with the records ExchangeMaterial produces from the same input.
*/
func (x *Exchanger) ExchangeMixVar(mats map[int]*dataset.Material, vars map[int]*dataset.MixVar) (out map[int]*dataset.MixVar, err error) {
	var (
		topo     *boundary.Topology
		shapes   [][]int
		localErr error
		present  bool
		own      map[int][]byte
		codes    *Arena
		recs     *Arena
		values   *Arena
		srcVals  = make(map[int][]byte, len(vars))
	)
	if topo, err = x.pruned(); err != nil {
		return
	}
	x.Stats.Exchanges++
	shapes, localErr = checkMaterials(x, topo, mats)
	localErr = errors.Join(localErr, checkLocal(x, "mixed variable input", vars))
	for _, d := range x.members.Local() {
		v, m := vars[d], mats[d]
		switch {
		case v == nil:
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d has a nil mixed variable", ErrConfig, d))
		case m == nil:
		case len(v.Values) != m.NumCells() || len(v.MixValues) != m.Mixlen():
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d mixed variable %q has %d/%d values, material has %d cells and %d records",
				ErrConfig, d, v.Name, len(v.Values), len(v.MixValues), m.NumCells(), m.Mixlen()))
		default:
			srcVals[d] = dataset.NewFloat32Array(v.Name, 1, v.Values).Data
		}
	}
	if _, present, err = x.agree("mixed variable", shapes, localErr); err != nil || !present {
		return
	}
	if own, codes, err = x.exchangeCodes(topo, mats); err != nil {
		return
	}
	if values, err = x.fixed(topo, dataset.Zonal, 4, srcVals); err != nil {
		return
	}
	recs, err = x.exchangeVariable(topo, 2, x.recordCounter(topo, mats), func(d, n int, cols [][]byte) {
		mv := vars[d].MixValues
		walkRecords(topo, d, n, mats[d], func(r, cell, rec int) {
			putInt32(cols[0], r, int32(cell))
			putFloat32(cols[1], r, mv[rec])
		})
	})
	if err != nil {
		return
	}
	out = make(map[int]*dataset.MixVar, len(vars))
	for _, d := range x.members.Local() {
		var (
			sink = &mixVarSink{mat: mats[d], old: vars[d].MixValues}
			cell []byte
		)
		if cell, err = x.mergeFixed(topo, d, dataset.Zonal, 4, srcVals[d], values); err != nil {
			return nil, err
		}
		if _, _, err = x.mergeMixed(topo, d, own[d], codes, recs, 2, sink); err != nil {
			return nil, fmt.Errorf("domain %d: %w", d, err)
		}
		out[d] = &dataset.MixVar{
			Name:      vars[d].Name,
			Values:    (&dataset.Array{Kind: dataset.Float32, NComp: 1, Data: cell}).Float32s(),
			MixValues: sink.out,
		}
	}
	return
}
