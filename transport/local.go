package transport

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/notargets/ghostzones/utils"
)

/*
LocalGroup runs Size ranks inside one process, one goroutine per rank, over a
shared MailBox. User tags are positive, collectives use a private negative
tag sequence so they never match user traffic.
*/
type LocalGroup struct {
	size    int
	mb      *utils.MailBox[[]byte]
	Timeout time.Duration // Zero blocks forever
	ranks   []*LocalComm
}

func NewLocalGroup(size int, timeout time.Duration) (g *LocalGroup) {
	if size < 1 {
		panic(fmt.Sprintf("local group size %d must be positive", size))
	}
	g = &LocalGroup{
		size:    size,
		mb:      utils.NewMailBox[[]byte](size),
		Timeout: timeout,
		ranks:   make([]*LocalComm, size),
	}
	for r := range g.ranks {
		g.ranks[r] = &LocalComm{rank: r, group: g}
	}
	return
}

func (g *LocalGroup) Size() int { return g.size }

func (g *LocalGroup) Comm(rank int) *LocalComm { return g.ranks[rank] }

/*
Run calls fn once per rank, each on its own goroutine, and waits for all of
them. A rank that fails closes the mailbox so its peers stop waiting on it.
*/
func (g *LocalGroup) Run(fn func(c Comm) error) (err error) {
	var (
		wg   sync.WaitGroup
		errs = make([]error, g.size)
	)
	for r := 0; r < g.size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					errs[r] = fmt.Errorf("rank %d panicked: %v", r, p)
					g.mb.Close()
				}
			}()
			if errs[r] = fn(g.ranks[r]); errs[r] != nil {
				errs[r] = fmt.Errorf("rank %d: %w", r, errs[r])
				g.mb.Close()
			}
		}(r)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

// Run builds a LocalGroup of n ranks with no receive timeout and runs fn on it
func Run(n int, fn func(c Comm) error) error {
	return NewLocalGroup(n, 0).Run(fn)
}

// Stats returns the counters of every rank
func (g *LocalGroup) Stats() (stats []Stats) {
	stats = make([]Stats, g.size)
	for r, c := range g.ranks {
		stats[r] = c.Stats
	}
	return
}

// LocalComm is one rank's view of a LocalGroup
type LocalComm struct {
	rank    int
	group   *LocalGroup
	tag     int
	collTag int
	Stats   Stats
}

func (c *LocalComm) Rank() int { return c.rank }
func (c *LocalComm) Size() int { return c.group.size }

func (c *LocalComm) UniqueTag() int {
	c.tag++
	return c.tag
}

func (c *LocalComm) collective() int {
	c.collTag--
	c.Stats.Collectives++
	return c.collTag
}

func (c *LocalComm) checkRank(r int, label string) (err error) {
	if r < 0 || r >= c.group.size {
		err = fmt.Errorf("%w: %s rank %d outside group of %d", ErrTransport, label, r, c.group.size)
	}
	return
}

func (c *LocalComm) post(buf []byte, dest, tag int) (err error) {
	if err = c.group.mb.PostMessage(c.rank, dest, tag, append([]byte(nil), buf...)); err != nil {
		return fmt.Errorf("%w: rank %d send to %d tag %d: %w", ErrTransport, c.rank, dest, tag, err)
	}
	c.Stats.sent(len(buf))
	return
}

func (c *LocalComm) receive(src, tag int) (msg []byte, err error) {
	if msg, err = c.group.mb.ReceiveMessage(c.rank, src, tag, c.group.Timeout); err != nil {
		return nil, fmt.Errorf("%w: rank %d receive from %d tag %d: %w", ErrTransport, c.rank, src, tag, err)
	}
	c.Stats.received(len(msg))
	return
}

func (c *LocalComm) Send(buf []byte, dest, tag int) (err error) {
	if err = c.checkRank(dest, "send"); err != nil {
		return
	}
	if tag < 0 {
		return fmt.Errorf("%w: user tag %d must not be negative", ErrTransport, tag)
	}
	return c.post(buf, dest, tag)
}

func (c *LocalComm) Recv(buf []byte, src, tag int) (err error) {
	var (
		msg []byte
	)
	if err = c.checkRank(src, "receive"); err != nil {
		return
	}
	if msg, err = c.receive(src, tag); err != nil {
		return
	}
	if len(msg) != len(buf) {
		return fmt.Errorf("%w: rank %d got %d bytes from %d tag %d, expected %d",
			ErrTransport, c.rank, len(msg), src, tag, len(buf))
	}
	copy(buf, msg)
	return
}

func (c *LocalComm) AllToAllV(send []byte, sendCounts, sendDispls []int,
	recv []byte, recvCounts, recvDispls []int) (err error) {
	var (
		size = c.group.size
		tag  = c.collective()
		msg  []byte
	)
	if err = checkAllToAll(size, send, sendCounts, sendDispls, recv, recvCounts, recvDispls); err != nil {
		return
	}
	for p := 0; p < size; p++ {
		if p == c.rank {
			continue
		}
		if err = c.post(send[sendDispls[p]:sendDispls[p]+sendCounts[p]], p, tag); err != nil {
			return
		}
	}
	if sendCounts[c.rank] != recvCounts[c.rank] {
		return fmt.Errorf("%w: rank %d alltoallv sends %d bytes to itself, expects %d",
			ErrTransport, c.rank, sendCounts[c.rank], recvCounts[c.rank])
	}
	copy(recv[recvDispls[c.rank]:recvDispls[c.rank]+recvCounts[c.rank]], send[sendDispls[c.rank]:])
	for p := 0; p < size; p++ {
		if p == c.rank {
			continue
		}
		if msg, err = c.receive(p, tag); err != nil {
			return
		}
		if len(msg) != recvCounts[p] {
			return fmt.Errorf("%w: rank %d alltoallv got %d bytes from %d, expected %d",
				ErrTransport, c.rank, len(msg), p, recvCounts[p])
		}
		copy(recv[recvDispls[p]:], msg)
	}
	return
}

/*
AllReduceMax sends the local vector to every peer and reduces locally, so a
length disagreement is detected by every rank rather than only by a root.
*/
func (c *LocalComm) AllReduceMax(vals []int) (result []int, err error) {
	var (
		tag = c.collective()
		msg []byte
	)
	if err = c.group.mb.PostMessageToAll(c.rank, tag, EncodeInts(vals)); err != nil {
		return nil, fmt.Errorf("%w: rank %d allreduce: %w", ErrTransport, c.rank, err)
	}
	c.Stats.BytesSent += 8 * len(vals) * (c.group.size - 1)
	result = append([]int(nil), vals...)
	for p := 0; p < c.group.size; p++ {
		if p == c.rank {
			continue
		}
		if msg, err = c.receive(p, tag); err != nil {
			return nil, err
		}
		other := DecodeInts(msg)
		if len(other) != len(vals) {
			return nil, fmt.Errorf("%w: allreduce length %d on rank %d, %d on rank %d",
				ErrTransport, len(vals), c.rank, len(other), p)
		}
		for i, v := range other {
			result[i] = max(result[i], v)
		}
	}
	return
}

func (c *LocalComm) Barrier() (err error) {
	var (
		tag = c.collective()
	)
	if err = c.group.mb.PostMessageToAll(c.rank, tag, nil); err != nil {
		return fmt.Errorf("%w: rank %d barrier: %w", ErrTransport, c.rank, err)
	}
	for p := 0; p < c.group.size; p++ {
		if p == c.rank {
			continue
		}
		if _, err = c.receive(p, tag); err != nil {
			return
		}
	}
	return
}
