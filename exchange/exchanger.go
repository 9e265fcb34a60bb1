// Package exchange moves one ghost layer of mesh, field and material data
// between the domains of a boundary topology, locally or over a transport,
// and synthesizes the ghost flags downstream stages read.
package exchange

import (
	"errors"
	"fmt"
	"log"
	"math"
	"slices"

	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/transport"
	"github.com/notargets/ghostzones/types"
)

var ErrConfig = errors.New("exchange configuration error")

type Options struct {
	// ValidateOrder ships (sender domain, sender index) next to every fixed
	// payload and checks each slot on arrival
	ValidateOrder bool
	Logger        *log.Logger
}

// Stats accumulates over the life of an Exchanger
type Stats struct {
	Exchanges                                        int
	CollectiveBytesSent, CollectiveBytesReceived     int
	PointToPointBytesSent, PointToPointBytesReceived int
	LocalHandoffs                                    int // Buffers read by a receiver on the same rank
	OrderChecks                                      int
}

func (s Stats) String() string {
	return fmt.Sprintf("exchanges %d, collective %d/%d bytes sent/received, p2p %d/%d bytes sent/received, %d local handoffs",
		s.Exchanges, s.CollectiveBytesSent, s.CollectiveBytesReceived,
		s.PointToPointBytesSent, s.PointToPointBytesReceived, s.LocalHandoffs)
}

type existKey struct {
	domain int
	center dataset.Centering
}

/*
Exchanger runs halo exchanges for the domains this rank owns. Every exported
exchange is collective: all ranks of the Comm call it in the same order, a
rank without local domains passes an empty map.
*/
type Exchanger struct {
	comm    transport.Comm
	members *boundary.Membership
	opts    Options
	Stats   Stats

	existence map[existKey]*existence
}

func New(comm transport.Comm, whole *boundary.Topology, opts Options) (x *Exchanger, err error) {
	if !whole.Finished() {
		return nil, fmt.Errorf("%w: topology has unfinished domains", ErrConfig)
	}
	x = &Exchanger{
		comm:      comm,
		members:   boundary.NewMembership(whole),
		opts:      opts,
		existence: make(map[existKey]*existence),
	}
	x.members.Logger = opts.Logger
	return
}

func (x *Exchanger) logf(format string, args ...any) {
	if x.opts.Logger != nil {
		x.opts.Logger.Printf(format, args...)
	}
}

func (x *Exchanger) Membership() *boundary.Membership { return x.members }

/*
SetActive builds the membership map from this rank's domains. It is
collective the first time and after ResetCachedMembers, a call on a built
cache with the same selection does nothing.
*/
func (x *Exchanger) SetActive(local []int) (err error) {
	if x.members.State() == boundary.Built {
		have := x.members.Local()
		want := slices.Clone(local)
		slices.Sort(want)
		if !slices.Equal(have, want) {
			return fmt.Errorf("%w: active selection changed without ResetCachedMembers", ErrConfig)
		}
		return
	}
	return x.members.Build(x.comm, local)
}

// ResetCachedMembers drops the membership map and everything derived from it
func (x *Exchanger) ResetCachedMembers() {
	x.members.Invalidate()
	clear(x.existence)
}

func (x *Exchanger) pruned() (p *boundary.Topology, err error) {
	if x.members.State() != boundary.Built {
		return nil, fmt.Errorf("%w: exchange before SetActive", ErrConfig)
	}
	return x.members.Pruned(), nil
}

func (x *Exchanger) isLocal(d int) bool { return x.members.Owner(d) == x.comm.Rank() }

// checkLocal verifies a per-domain input holds exactly this rank's domains
func checkLocal[T any](x *Exchanger, label string, in map[int]T) (err error) {
	local := x.members.Local()
	if len(in) != len(local) {
		return fmt.Errorf("%w: %s has %d domains, rank %d owns %d",
			ErrConfig, label, len(in), x.comm.Rank(), len(local))
	}
	for _, d := range local {
		if _, ok := in[d]; !ok {
			return fmt.Errorf("%w: %s is missing local domain %d", ErrConfig, label, d)
		}
	}
	return
}

func oldExtents(dom *boundary.Domain, center dataset.Centering) types.Extents {
	if center == dataset.Nodal {
		return dom.OldNodes
	}
	return dom.OldCells
}

func newExtents(dom *boundary.Domain, center dataset.Centering) types.Extents {
	if center == dataset.Nodal {
		return dom.NewNodes
	}
	return dom.NewCells
}

func sendRegion(nb *boundary.Neighbor, center dataset.Centering) types.Extents {
	if center == dataset.Nodal {
		return nb.SendNodes
	}
	return nb.SendCells
}

func ghostRegion(nb *boundary.Neighbor, center dataset.Centering) types.Extents {
	if center == dataset.Nodal {
		return nb.GhostNodes
	}
	return nb.GhostCells
}

func translate(tr boundary.Translator, center dataset.Centering, p [3]int) [3]int {
	if center == dataset.Nodal {
		return tr.Node(p)
	}
	return tr.Cell(p)
}

/*
agree checks that every rank's local shapes are identical. Each component is
reduced as its maximum and as its negated minimum in one AllReduceMax, plus a
flag for a local input error, so every rank reaches the same verdict and no
rank enters a later collective with a mismatched size. present is false when
no rank has any domain.
*/
func (x *Exchanger) agree(label string, shapes [][]int, localErr error) (shape []int, present bool, err error) {
	var (
		ncomp   = -1
		vals    []int
		reduced []int
	)
	for _, s := range shapes {
		if ncomp >= 0 && len(s) != ncomp {
			localErr = errors.Join(localErr, fmt.Errorf("%w: %s shape lengths differ", ErrConfig, label))
			break
		}
		ncomp = len(s)
	}
	if ncomp < 0 {
		ncomp = 0
	}
	// [shape length, max..., -min..., error] with fixed room for 4 components
	const maxComp = 4
	if ncomp > maxComp {
		return nil, false, fmt.Errorf("%w: %s shape has %d components", ErrConfig, label, ncomp)
	}
	vals = make([]int, 2+2*maxComp+1)
	for i := range vals {
		vals[i] = math.MinInt32
	}
	vals[2+2*maxComp] = 0
	if len(shapes) > 0 {
		vals[0], vals[1] = ncomp, -ncomp
		for c := 0; c < ncomp; c++ {
			lo, hi := math.MaxInt32, math.MinInt32
			for _, s := range shapes {
				lo, hi = min(lo, s[c]), max(hi, s[c])
			}
			vals[2+c], vals[2+maxComp+c] = hi, -lo
		}
	}
	if localErr != nil {
		vals[2+2*maxComp] = 1
	}
	if reduced, err = x.comm.AllReduceMax(vals); err != nil {
		return
	}
	if localErr != nil {
		return nil, false, localErr
	}
	if reduced[2+2*maxComp] != 0 {
		return nil, false, fmt.Errorf("%w: %s rejected by another rank", ErrConfig, label)
	}
	if reduced[0] == math.MinInt32 {
		return nil, false, nil
	}
	if reduced[0] != -reduced[1] {
		return nil, false, fmt.Errorf("%w: %s shape lengths differ across ranks", ErrConfig, label)
	}
	ncomp = reduced[0]
	shape = make([]int, ncomp)
	for c := 0; c < ncomp; c++ {
		if reduced[2+c] != -reduced[2+maxComp+c] {
			return nil, false, fmt.Errorf("%w: %s component %d ranges over [%d,%d] across domains",
				ErrConfig, label, c, -reduced[2+maxComp+c], reduced[2+c])
		}
		shape[c] = reduced[2+c]
	}
	return shape, true, nil
}
