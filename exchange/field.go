package exchange

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/transport"
)

// fixed is exchangeFixed followed by the optional slot by slot order check
func (x *Exchanger) fixed(topo *boundary.Topology, center dataset.Centering,
	tupleSize int, src map[int][]byte) (a *Arena, err error) {
	if a, err = x.exchangeFixed(topo, center, tupleSize, src); err != nil {
		return
	}
	if x.opts.ValidateOrder {
		err = x.validateOrder(topo, center)
	}
	return
}

/*
scatter visits, once per new entry of domain d that receives data, where that
data comes from: n is -1 and slot the old index for its own entries, else n
is the neighbor record and slot the position in that neighbor's buffer, with
p the sender's index. Own entries go first, then neighbors in order, and the
first writer wins.
*/
func (x *Exchanger) scatter(topo *boundary.Topology, d int, center dataset.Centering,
	a *Arena, visit func(t, n, slot int, p [3]int)) (err error) {
	var (
		dom     = topo.Domain(d)
		old     = oldExtents(dom, center)
		ne      = newExtents(dom, center)
		covered = make([]bool, ne.Count())
	)
	old.Each(func(i, j, k int) {
		t := ne.Index(i, j, k)
		covered[t] = true
		visit(t, -1, old.Index(i, j, k), [3]int{i, j, k})
	})
	for n := range dom.Neighbors {
		var (
			nb   = &dom.Neighbors[n]
			tr   boundary.Translator
			slot int
		)
		if !a.Has(nb.Domain, nb.Match) {
			return fmt.Errorf("%w: domain %d has no buffer from neighbor %d (domain %d)",
				ErrConfig, d, n, nb.Domain)
		}
		if tr, err = topo.Translator(d, n); err != nil {
			return
		}
		if x.isLocal(nb.Domain) {
			x.Stats.LocalHandoffs++
		}
		sender := &topo.Domain(nb.Domain).Neighbors[nb.Match]
		sendRegion(sender, center).Each(func(i, j, k int) {
			p := [3]int{i, j, k}
			q := translate(tr, center, p)
			if ne.Contains(q[0], q[1], q[2]) {
				if t := ne.Index(q[0], q[1], q[2]); !covered[t] {
					covered[t] = true
					visit(t, n, slot, p)
				}
			}
			slot++
		})
	}
	return
}

// mergeFixed builds the halo sized copy of one local domain, gap filled
func (x *Exchanger) mergeFixed(topo *boundary.Topology, d int, center dataset.Centering,
	tupleSize int, own []byte, a *Arena) (out []byte, err error) {
	var (
		dom  = topo.Domain(d)
		bufs = make([][]byte, len(dom.Neighbors))
	)
	for n, nb := range dom.Neighbors {
		bufs[n] = a.Buffer(nb.Domain, nb.Match)
	}
	out = make([]byte, tupleSize*newExtents(dom, center).Count())
	err = x.scatter(topo, d, center, a, func(t, n, slot int, _ [3]int) {
		src := own
		if n >= 0 {
			src = bufs[n]
		}
		copy(out[t*tupleSize:(t+1)*tupleSize], src[slot*tupleSize:(slot+1)*tupleSize])
	})
	if err != nil {
		return nil, err
	}
	x.classify(topo, d, center).fill(out, tupleSize)
	return
}

/*
ExchangeArray grows one array per local domain to the domain's new extents.
Every domain must hold an array of the same kind and component count, sized
to its old node (Nodal) or cell (Zonal) extents.
*/
func (x *Exchanger) ExchangeArray(arrays map[int]*dataset.Array,
	center dataset.Centering) (out map[int]*dataset.Array, err error) {
	var (
		topo     *boundary.Topology
		shapes   [][]int
		localErr error
		shape    []int
		present  bool
		a        *Arena
	)
	if topo, err = x.pruned(); err != nil {
		return
	}
	x.Stats.Exchanges++
	localErr = checkLocal(x, "array input", arrays)
	for _, d := range x.members.Local() {
		arr := arrays[d]
		if arr == nil {
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d has a nil array", ErrConfig, d))
			continue
		}
		want := oldExtents(topo.Domain(d), center).Count()
		if !arr.Kind.Valid() || arr.NComp < 1 || arr.Tuples() != want || len(arr.Data) != want*arr.TupleSize() {
			localErr = errors.Join(localErr, fmt.Errorf("%w: domain %d array %q has %d %s tuples of %d, expected %d",
				ErrConfig, d, arr.Name, arr.Tuples(), arr.Kind, arr.NComp, want))
			continue
		}
		shapes = append(shapes, []int{int(arr.Kind), arr.NComp})
	}
	if shape, present, err = x.agree("array "+center.String(), shapes, localErr); err != nil || !present {
		return
	}
	var (
		kind      = dataset.FieldKind(shape[0])
		ncomp     = shape[1]
		tupleSize = ncomp * kind.Size()
		src       = make(map[int][]byte, len(arrays))
	)
	for d, arr := range arrays {
		src[d] = arr.Data
	}
	if a, err = x.fixed(topo, center, tupleSize, src); err != nil {
		return
	}
	out = make(map[int]*dataset.Array, len(arrays))
	for _, d := range x.members.Local() {
		var data []byte
		if data, err = x.mergeFixed(topo, d, center, tupleSize, src[d], a); err != nil {
			return nil, err
		}
		out[d] = &dataset.Array{Name: arrays[d].Name, Kind: kind, NComp: ncomp, Data: data}
	}
	x.logf("rank %d: exchanged %s %s x%d over %d local domains, arena %d bytes",
		x.comm.Rank(), center, kind, ncomp, len(out), a.Len())
	return
}

/*
validateOrder ships (sender domain, sender index) for every slot through the
same path as the payload and checks that each receiver reads exactly the
entries it expects.
*/
func (x *Exchanger) validateOrder(topo *boundary.Topology, center dataset.Centering) (err error) {
	var (
		src = make(map[int][]byte)
		a   *Arena
	)
	for _, d := range x.members.Local() {
		n := oldExtents(topo.Domain(d), center).Count()
		buf := make([]byte, 8*n)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(buf[8*i:], uint32(d))
			binary.LittleEndian.PutUint32(buf[8*i+4:], uint32(i))
		}
		src[d] = buf
	}
	if a, err = x.exchangeFixed(topo, center, 8, src); err != nil {
		return
	}
	x.Stats.OrderChecks++
	for _, d := range x.members.Local() {
		for n, nb := range topo.Domain(d).Neighbors {
			var (
				buf    = a.Buffer(nb.Domain, nb.Match)
				sender = &topo.Domain(nb.Domain).Neighbors[nb.Match]
				old    = oldExtents(topo.Domain(nb.Domain), center)
				slot   int
			)
			sendRegion(sender, center).Each(func(i, j, k int) {
				gotD := int(int32(binary.LittleEndian.Uint32(buf[slot:])))
				gotI := int(int32(binary.LittleEndian.Uint32(buf[slot+4:])))
				if err == nil && (gotD != nb.Domain || gotI != old.Index(i, j, k)) {
					err = fmt.Errorf("%w: domain %d neighbor %d slot %d holds (%d,%d), expected (%d,%d)",
						transport.ErrTransport, d, n, slot/8, gotD, gotI, nb.Domain, old.Index(i, j, k))
				}
				slot += 8
			})
			if err != nil {
				return
			}
		}
	}
	return
}
