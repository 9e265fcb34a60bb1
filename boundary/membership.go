package boundary

import (
	"fmt"
	"log"
	"math"
	"slices"

	"github.com/notargets/ghostzones/transport"
)

// None is the owner of a domain outside the active selection
const None = -1

type CacheState uint8

const (
	Invalidated CacheState = iota
	Rebuilding
	Built
)

func (s CacheState) String() string {
	switch s {
	case Invalidated:
		return "Invalidated"
	case Rebuilding:
		return "Rebuilding"
	}
	return "Built"
}

/*
Membership maps every domain to its owning rank and holds the topology pruned
to the owned domains. It is cached until Invalidate is called, Build on a
built cache does nothing.
*/
type Membership struct {
	whole  *Topology
	pruned *Topology
	owner  []int
	local  []int
	state  CacheState
	Logger *log.Logger
}

func NewMembership(whole *Topology) *Membership {
	return &Membership{whole: whole}
}

func (m *Membership) State() CacheState { return m.state }

// Invalidate drops the cached map, the next Build recomputes it
func (m *Membership) Invalidate() {
	m.state = Invalidated
	m.pruned, m.owner, m.local = nil, nil, nil
}

func (m *Membership) logf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Printf(format, args...)
	}
}

func (m *Membership) checkLocal(local []int) (err error) {
	var (
		seen = make(map[int]bool, len(local))
	)
	for _, d := range local {
		if err = m.whole.checkDomain(d); err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
		if seen[d] {
			return fmt.Errorf("%w: domain %d listed twice as local", ErrConfig, d)
		}
		seen[d] = true
	}
	return
}

/*
Build is collective. Each rank contributes its own ids to one max reduction
of [owner..., -owner..., error flag]; the negated half yields the smallest
contributor, so a domain claimed by two ranks is seen as such on every rank.
A local input error is broadcast through the flag so no rank is left waiting.
*/
func (m *Membership) Build(comm transport.Comm, local []int) (err error) {
	var (
		nd      = m.whole.NumDomains()
		vals    = make([]int, 2*nd+1)
		rank    = comm.Rank()
		reduced []int
	)
	if m.state == Built {
		return
	}
	if !m.whole.Finished() {
		return fmt.Errorf("%w: membership built before every domain is finished", ErrConfig)
	}
	m.state = Rebuilding
	defer func() {
		if err != nil {
			m.Invalidate()
		}
	}()
	for d := 0; d < nd; d++ {
		vals[d], vals[nd+d] = None, math.MinInt32
	}
	localErr := m.checkLocal(local)
	if localErr != nil {
		vals[2*nd] = 1
	} else {
		for _, d := range local {
			vals[d], vals[nd+d] = rank, -rank
		}
	}
	if reduced, err = comm.AllReduceMax(vals); err != nil {
		return
	}
	if localErr != nil {
		return localErr
	}
	if reduced[2*nd] != 0 {
		return fmt.Errorf("%w: another rank rejected its local domain list", ErrConfig)
	}
	m.owner = make([]int, nd)
	for d := 0; d < nd; d++ {
		m.owner[d] = reduced[d]
		if m.owner[d] != None && -reduced[nd+d] != m.owner[d] {
			return fmt.Errorf("%w: domain %d is owned by ranks %d and %d",
				ErrConfig, d, -reduced[nd+d], m.owner[d])
		}
	}
	m.local = slices.Clone(local)
	slices.Sort(m.local)
	if m.pruned, err = m.whole.Prune(m.owner); err != nil {
		return
	}
	m.state = Built
	m.logf("rank %d: membership built, %d local of %d domains, %d of %d edges active",
		rank, len(m.local), nd, m.pruned.NumEdges(), m.whole.NumEdges())
	return
}

func (m *Membership) mustBeBuilt() {
	if m.state != Built {
		panic(fmt.Sprintf("membership used in state %s", m.state))
	}
}

func (m *Membership) Owner(d int) int {
	m.mustBeBuilt()
	return m.owner[d]
}

func (m *Membership) Owners() []int {
	m.mustBeBuilt()
	return m.owner
}

func (m *Membership) Active(d int) bool { return m.Owner(d) != None }

// Local is the sorted list of domains owned by this rank
func (m *Membership) Local() []int {
	m.mustBeBuilt()
	return m.local
}

func (m *Membership) Pruned() *Topology {
	m.mustBeBuilt()
	return m.pruned
}

func (m *Membership) Whole() *Topology { return m.whole }
