package exchange

import (
	"fmt"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/transport"
)

// needsEdge is true when this rank sends or receives edge (d,n)
func (x *Exchanger) needsEdge(topo *boundary.Topology, d, n int) bool {
	nb := &topo.Domain(d).Neighbors[n]
	return x.isLocal(d) || x.isLocal(nb.Domain)
}

/*
exchangeFixed fills one buffer per edge from src, the old-extent data of
every local domain with tupleSize bytes per entry, and delivers the remote
ones with a single AllToAllV. Same-rank pairs stay in the arena.
*/
func (x *Exchanger) exchangeFixed(topo *boundary.Topology, center dataset.Centering,
	tupleSize int, src map[int][]byte) (a *Arena, err error) {
	a = NewArena(topo, func(d, n int) (int, bool) {
		if !x.needsEdge(topo, d, n) {
			return 0, false
		}
		return tupleSize * sendRegion(&topo.Domain(d).Neighbors[n], center).Count(), true
	})
	for _, d := range x.members.Local() {
		var (
			dom  = topo.Domain(d)
			old  = oldExtents(dom, center)
			data = src[d]
		)
		if len(data) != tupleSize*old.Count() {
			return nil, fmt.Errorf("%w: domain %d payload has %d bytes, expected %d",
				ErrConfig, d, len(data), tupleSize*old.Count())
		}
		for n := range dom.Neighbors {
			var (
				buf  = a.Buffer(d, n)
				slot int
			)
			sendRegion(&dom.Neighbors[n], center).Each(func(i, j, k int) {
				o := old.Index(i, j, k) * tupleSize
				copy(buf[slot:slot+tupleSize], data[o:o+tupleSize])
				slot += tupleSize
			})
		}
	}
	if err = x.allToAll(topo, a); err != nil {
		return nil, err
	}
	return
}

/*
allToAll moves the cross-rank buffers of a. Both sides enumerate the edges
by peer rank, then ascending sender domain, then ascending neighbor index,
which is the only thing binding a byte range to its edge.
*/
func (x *Exchanger) allToAll(topo *boundary.Topology, a *Arena) (err error) {
	var (
		size, me   = x.comm.Size(), x.comm.Rank()
		nd         = topo.NumDomains()
		sendCounts = make([]int, size)
		sendDispls = make([]int, size)
		recvCounts = make([]int, size)
		recvDispls = make([]int, size)
		nsend      int
		nrecv      int
	)
	owner := x.members.Owner
	for d := 0; d < nd; d++ {
		for n, nb := range topo.Domain(d).Neighbors {
			switch {
			case owner(d) == me && owner(nb.Domain) != me:
				sendCounts[owner(nb.Domain)] += a.Size(d, n)
			case owner(d) != me && owner(nb.Domain) == me:
				recvCounts[owner(d)] += a.Size(d, n)
			}
		}
	}
	for p := 0; p < size; p++ {
		sendDispls[p], recvDispls[p] = nsend, nrecv
		nsend += sendCounts[p]
		nrecv += recvCounts[p]
	}
	var (
		send = make([]byte, nsend)
		recv = make([]byte, nrecv)
	)
	for p := 0; p < size; p++ {
		cursor := sendDispls[p]
		for d := 0; d < nd; d++ {
			if owner(d) != me {
				continue
			}
			for n, nb := range topo.Domain(d).Neighbors {
				if owner(nb.Domain) == p && p != me {
					cursor += copy(send[cursor:], a.Buffer(d, n))
				}
			}
		}
	}
	if err = x.comm.AllToAllV(send, sendCounts, sendDispls, recv, recvCounts, recvDispls); err != nil {
		return
	}
	for p := 0; p < size; p++ {
		if p == me {
			continue
		}
		cursor := recvDispls[p]
		for d := 0; d < nd; d++ {
			if owner(d) != p {
				continue
			}
			for n, nb := range topo.Domain(d).Neighbors {
				if owner(nb.Domain) == me {
					cursor += copy(a.Buffer(d, n), recv[cursor:])
				}
			}
		}
		if cursor != recvDispls[p]+recvCounts[p] {
			return fmt.Errorf("%w: rank %d unpacked %d bytes from rank %d, received %d",
				transport.ErrTransport, me, cursor-recvDispls[p], p, recvCounts[p])
		}
	}
	x.Stats.CollectiveBytesSent += nsend
	x.Stats.CollectiveBytesReceived += nrecv
	return
}

// recordWords is the wire width of one column entry of a variable payload
const recordWords = 4

/*
exchangeVariable moves data dependent record tables, ncol columns of 4 byte
words per record. Counts travel first, one message per cross-rank edge, then
one message per column, each kind on its own tag, then a barrier.
*/
func (x *Exchanger) exchangeVariable(topo *boundary.Topology, ncol int,
	count func(d, n int) int, fill func(d, n int, cols [][]byte)) (a *Arena, err error) {
	var (
		nd       = topo.NumDomains()
		me       = x.comm.Rank()
		owner    = x.members.Owner
		countTag = x.comm.UniqueTag()
		colTags  = make([]int, ncol)
		nrec     = make([][]int, nd)
	)
	for c := range colTags {
		colTags[c] = x.comm.UniqueTag()
	}
	for d := 0; d < nd; d++ {
		nrec[d] = make([]int, len(topo.Domain(d).Neighbors))
		if owner(d) != me {
			continue
		}
		for n, nb := range topo.Domain(d).Neighbors {
			nrec[d][n] = count(d, n)
			if owner(nb.Domain) != me {
				msg := transport.EncodeInts([]int{nrec[d][n]})
				if err = x.comm.Send(msg, owner(nb.Domain), countTag); err != nil {
					return
				}
				x.Stats.PointToPointBytesSent += len(msg)
			}
		}
	}
	for d := 0; d < nd; d++ {
		if owner(d) == me || owner(d) == boundary.None {
			continue
		}
		for n, nb := range topo.Domain(d).Neighbors {
			if owner(nb.Domain) != me {
				continue
			}
			msg := make([]byte, 8)
			if err = x.comm.Recv(msg, owner(d), countTag); err != nil {
				return
			}
			x.Stats.PointToPointBytesReceived += len(msg)
			if nrec[d][n] = transport.DecodeInts(msg)[0]; nrec[d][n] < 0 {
				return nil, fmt.Errorf("%w: domain %d neighbor %d announced %d records",
					transport.ErrTransport, d, n, nrec[d][n])
			}
		}
	}
	a = NewArena(topo, func(d, n int) (int, bool) {
		if !x.needsEdge(topo, d, n) {
			return 0, false
		}
		return ncol * recordWords * nrec[d][n], true
	})
	columns := func(d, n int) (cols [][]byte) {
		var (
			buf = a.Buffer(d, n)
			w   = recordWords * nrec[d][n]
		)
		cols = make([][]byte, ncol)
		for c := range cols {
			cols[c] = buf[c*w : (c+1)*w]
		}
		return
	}
	for _, d := range x.members.Local() {
		for n, nb := range topo.Domain(d).Neighbors {
			cols := columns(d, n)
			fill(d, n, cols)
			if owner(nb.Domain) == me || nrec[d][n] == 0 {
				continue
			}
			for c, col := range cols {
				if err = x.comm.Send(col, owner(nb.Domain), colTags[c]); err != nil {
					return nil, err
				}
				x.Stats.PointToPointBytesSent += len(col)
			}
		}
	}
	for d := 0; d < nd; d++ {
		if owner(d) == me || owner(d) == boundary.None {
			continue
		}
		for n, nb := range topo.Domain(d).Neighbors {
			if owner(nb.Domain) != me || nrec[d][n] == 0 {
				continue
			}
			for c, col := range columns(d, n) {
				if err = x.comm.Recv(col, owner(d), colTags[c]); err != nil {
					return nil, err
				}
				x.Stats.PointToPointBytesReceived += len(col)
			}
		}
	}
	if err = x.comm.Barrier(); err != nil {
		return nil, err
	}
	return
}
