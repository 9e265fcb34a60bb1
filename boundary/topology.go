// Package boundary models which structured domains touch in index space:
// per-domain extents, matched neighbor records, the membership map that
// assigns domains to ranks and the pruned view of the active domains.
package boundary

import (
	"errors"
	"fmt"

	"github.com/james-bowman/sparse"

	"github.com/notargets/ghostzones/types"
)

var (
	ErrDomainOutOfRange = errors.New("domain id out of range")
	ErrConfig           = errors.New("boundary configuration error")
)

// HaloWidth is the number of ghost layers added on each connected side
const HaloWidth = 1

/*
Neighbor is a directed adjacency from the owning domain to Domain. Match is
the position of the reciprocal record in Domain's own neighbor list. All
extents are node or cell index boxes in the owning domain's index space.
*/
type Neighbor struct {
	Domain int
	Match  int
	Orient Orientation
	Shared types.Extents // Shared nodes
	Normal [3]int        // -1 min face, +1 max face, 0 tangential

	SendNodes, SendCells   types.Extents // Interior layer the neighbor needs
	GhostNodes, GhostCells types.Extents // Where the neighbor's data lands
}

func (n *Neighbor) NodeCount() int { return n.SendNodes.Count() }
func (n *Neighbor) CellCount() int { return n.SendCells.Count() }

type Domain struct {
	ID, Level          int
	OldNodes, OldCells types.Extents
	NewNodes, NewCells types.Extents
	Expand             [6]int // Halo layers added on [imin,imax,jmin,jmax,kmin,kmax]
	Neighbors          []Neighbor
	Active             bool

	registered, finished bool
}

func (d *Domain) Finished() bool { return d.finished }

type Topology struct {
	domains []Domain
}

func NewTopology(numDomains int) (t *Topology) {
	t = &Topology{domains: make([]Domain, numDomains)}
	for d := range t.domains {
		t.domains[d].ID = d
		t.domains[d].Active = true
	}
	return
}

func (t *Topology) NumDomains() int { return len(t.domains) }

func (t *Topology) checkDomain(d int) (err error) {
	if d < 0 || d >= len(t.domains) {
		err = fmt.Errorf("%w: domain %d not in [0,%d)", ErrDomainOutOfRange, d, len(t.domains))
	}
	return
}

// Domain panics on an out of range id, use checkDomain first for user input
func (t *Topology) Domain(d int) *Domain {
	if err := t.checkDomain(d); err != nil {
		panic(err)
	}
	return &t.domains[d]
}

// Finished is true once every domain has been finished
func (t *Topology) Finished() bool {
	for d := range t.domains {
		if !t.domains[d].finished {
			return false
		}
	}
	return true
}

func (t *Topology) SetExtents(d int, e types.Extents) (err error) {
	return t.SetIndicesForAMRPatch(d, 0, e)
}

func (t *Topology) SetIndicesForAMRPatch(d, level int, e types.Extents) (err error) {
	if err = t.checkDomain(d); err != nil {
		return
	}
	dom := &t.domains[d]
	if dom.finished {
		return fmt.Errorf("%w: domain %d is finished, extents are locked", ErrConfig, d)
	}
	if e.Empty() {
		return fmt.Errorf("%w: domain %d extents %v are empty", ErrConfig, d, e)
	}
	dom.Level = level
	dom.OldNodes = e
	dom.OldCells = e.CellExtents()
	dom.registered = true
	return
}

/*
AddNeighbor appends a record to d's list and derives its normals and its
send and ghost regions. The caller owns the match invariant, Validate checks
it once both sides are finished.
*/
func (t *Topology) AddNeighbor(d, other, match int, orient Orientation, shared types.Extents) (err error) {
	var (
		n = Neighbor{Domain: other, Match: match, Orient: orient, Shared: shared}
	)
	if err = t.checkDomain(d); err != nil {
		return
	}
	if err = t.checkDomain(other); err != nil {
		return
	}
	dom := &t.domains[d]
	switch {
	case !dom.registered:
		return fmt.Errorf("%w: domain %d has no extents", ErrConfig, d)
	case dom.finished:
		return fmt.Errorf("%w: domain %d is finished, neighbor %d rejected", ErrConfig, d, other)
	case !orient.Valid():
		return fmt.Errorf("%w: domain %d neighbor %d orientation %v", ErrConfig, d, other, [3]int(orient))
	case shared.Empty() || !dom.OldNodes.ContainsExtents(shared):
		return fmt.Errorf("%w: domain %d neighbor %d shared extents %v outside %v",
			ErrConfig, d, other, shared, dom.OldNodes)
	}
	if err = n.derive(dom.OldNodes); err != nil {
		return fmt.Errorf("%w: domain %d neighbor %d: %w", ErrConfig, d, other, err)
	}
	dom.Neighbors = append(dom.Neighbors, n)
	return
}

func (n *Neighbor) derive(nodes types.Extents) (err error) {
	var (
		s       = n.Shared
		normals int
	)
	for a := 0; a < 3; a++ {
		lo, hi := 2*a, 2*a+1
		if s.Flat(a) && !nodes.Flat(a) {
			f := s.Lo(a)
			switch f {
			case nodes.Hi(a):
				n.Normal[a] = 1
				n.SendNodes[lo], n.SendNodes[hi] = f-HaloWidth, f-HaloWidth
				n.SendCells[lo], n.SendCells[hi] = f-HaloWidth, f-HaloWidth
				n.GhostNodes[lo], n.GhostNodes[hi] = f+HaloWidth, f+HaloWidth
				n.GhostCells[lo], n.GhostCells[hi] = f, f
			case nodes.Lo(a):
				n.Normal[a] = -1
				n.SendNodes[lo], n.SendNodes[hi] = f+HaloWidth, f+HaloWidth
				n.SendCells[lo], n.SendCells[hi] = f, f
				n.GhostNodes[lo], n.GhostNodes[hi] = f-HaloWidth, f-HaloWidth
				n.GhostCells[lo], n.GhostCells[hi] = f-HaloWidth, f-HaloWidth
			default:
				return fmt.Errorf("flat shared axis %d at %d is not on the boundary %v", a, f, nodes)
			}
			normals++
			continue
		}
		n.SendNodes[lo], n.SendNodes[hi] = s.Lo(a), s.Hi(a)
		n.GhostNodes[lo], n.GhostNodes[hi] = s.Lo(a), s.Hi(a)
		if nodes.Flat(a) {
			n.SendCells[lo], n.SendCells[hi] = s.Lo(a), s.Lo(a)
		} else {
			n.SendCells[lo], n.SendCells[hi] = s.Lo(a), s.Hi(a)-1
		}
		n.GhostCells[lo], n.GhostCells[hi] = n.SendCells[lo], n.SendCells[hi]
	}
	if normals == 0 {
		return fmt.Errorf("shared extents %v overlap a volume, no normal axis", s)
	}
	return
}

/*
Finish locks d's neighbor list and grows the old extents by one layer on
every side some neighbor's normal points to.
*/
func (t *Topology) Finish(d int) (err error) {
	if err = t.checkDomain(d); err != nil {
		return
	}
	dom := &t.domains[d]
	if dom.finished {
		return fmt.Errorf("%w: domain %d finished twice", ErrConfig, d)
	}
	if !dom.registered {
		return fmt.Errorf("%w: domain %d finished without extents", ErrConfig, d)
	}
	dom.Expand = [6]int{}
	for _, n := range dom.Neighbors {
		for a := 0; a < 3; a++ {
			switch n.Normal[a] {
			case -1:
				dom.Expand[2*a] = HaloWidth
			case 1:
				dom.Expand[2*a+1] = HaloWidth
			}
		}
	}
	dom.NewNodes = dom.OldNodes
	for a := 0; a < 3; a++ {
		dom.NewNodes[2*a] -= dom.Expand[2*a]
		dom.NewNodes[2*a+1] += dom.Expand[2*a+1]
	}
	dom.NewCells = dom.NewNodes.CellExtents()
	dom.finished = true
	return
}

func (t *Topology) checkEdge(d, n int) (n1, n2 *Neighbor, err error) {
	if err = t.checkDomain(d); err != nil {
		return
	}
	if n < 0 || n >= len(t.domains[d].Neighbors) {
		err = fmt.Errorf("%w: domain %d has no neighbor index %d", ErrConfig, d, n)
		return
	}
	n1 = &t.domains[d].Neighbors[n]
	if err = t.checkDomain(n1.Domain); err != nil {
		return
	}
	other := &t.domains[n1.Domain]
	if n1.Match < 0 || n1.Match >= len(other.Neighbors) {
		err = fmt.Errorf("%w: domain %d neighbor %d match %d outside domain %d's %d neighbors",
			ErrConfig, d, n, n1.Match, n1.Domain, len(other.Neighbors))
		return
	}
	n2 = &other.Neighbors[n1.Match]
	return
}

// Translator builds the index transform from neighbor n's space into d's
func (t *Topology) Translator(d, n int) (tr Translator, err error) {
	var (
		n1, n2 *Neighbor
	)
	if n1, n2, err = t.checkEdge(d, n); err != nil {
		return
	}
	tr = newTranslator(n1, n2, t.domains[d].OldNodes)
	return
}

/*
Validate checks reciprocity of every edge: the match points back, the
orientations are inverse and the neighbor's send region lands exactly on this
record's ghost region.
*/
func (t *Topology) Validate() (err error) {
	for d := range t.domains {
		dom := &t.domains[d]
		if !dom.finished {
			return fmt.Errorf("%w: domain %d is not finished", ErrConfig, d)
		}
		for n := range dom.Neighbors {
			var (
				n1, n2 *Neighbor
				tr     Translator
			)
			if n1, n2, err = t.checkEdge(d, n); err != nil {
				return
			}
			switch {
			case n2.Domain != d:
				return fmt.Errorf("%w: domain %d neighbor %d matches domain %d's record %d which points to %d",
					ErrConfig, d, n, n1.Domain, n1.Match, n2.Domain)
			case n2.Match != n:
				return fmt.Errorf("%w: domain %d neighbor %d is matched back as %d",
					ErrConfig, d, n, n2.Match)
			case n2.Orient != n1.Orient.Inverse():
				return fmt.Errorf("%w: domain %d neighbor %d orientation %v is not the inverse of %v",
					ErrConfig, d, n, n1.Orient, n2.Orient)
			}
			tr = newTranslator(n1, n2, dom.OldNodes)
			if got := tr.NodeExtents(n2.Shared); got != n1.Shared {
				return fmt.Errorf("%w: domain %d neighbor %d shared nodes %v map to %v",
					ErrConfig, d, n, n2.Shared, got)
			}
			if got := tr.NodeExtents(n2.SendNodes); got != n1.GhostNodes {
				return fmt.Errorf("%w: domain %d neighbor %d send nodes %v land on %v, ghost nodes are %v",
					ErrConfig, d, n, n2.SendNodes, got, n1.GhostNodes)
			}
			if got := tr.CellExtents(n2.SendCells); got != n1.GhostCells {
				return fmt.Errorf("%w: domain %d neighbor %d send cells %v land on %v, ghost cells are %v",
					ErrConfig, d, n, n2.SendCells, got, n1.GhostCells)
			}
		}
	}
	if !t.Symmetric() {
		return fmt.Errorf("%w: adjacency matrix is not symmetric", ErrConfig)
	}
	return
}

/*
Prune returns a copy restricted to the domains with an owner. Unowned
domains lose every neighbor and become inactive, owned domains lose the edges
to unowned ones. Match indices are remapped because deleting an edge shifts
the positions that follow it.
*/
func (t *Topology) Prune(owner []int) (p *Topology, err error) {
	var (
		nd    = len(t.domains)
		remap = make([][]int, nd)
	)
	if len(owner) != nd {
		return nil, fmt.Errorf("%w: owner map has %d entries for %d domains", ErrConfig, len(owner), nd)
	}
	if !t.Finished() {
		return nil, fmt.Errorf("%w: prune before every domain is finished", ErrConfig)
	}
	p = &Topology{domains: make([]Domain, nd)}
	for d := range t.domains {
		src := &t.domains[d]
		dst := &p.domains[d]
		*dst = *src
		dst.Neighbors = nil
		dst.Active = owner[d] != None
		remap[d] = make([]int, len(src.Neighbors))
		for n, nb := range src.Neighbors {
			remap[d][n] = -1
			if dst.Active && owner[nb.Domain] != None {
				remap[d][n] = len(dst.Neighbors)
				dst.Neighbors = append(dst.Neighbors, nb)
			}
		}
	}
	for d := range p.domains {
		for n := range p.domains[d].Neighbors {
			nb := &p.domains[d].Neighbors[n]
			nb.Match = remap[nb.Domain][nb.Match]
		}
	}
	return
}

// AdjacencyMatrix counts the edges from each domain to every other
func (t *Topology) AdjacencyMatrix() *sparse.CSR {
	var (
		nd  = len(t.domains)
		dok = sparse.NewDOK(nd, nd)
	)
	for d := range t.domains {
		for _, nb := range t.domains[d].Neighbors {
			dok.Set(d, nb.Domain, dok.At(d, nb.Domain)+1)
		}
	}
	return dok.ToCSR()
}

func (t *Topology) Symmetric() (sym bool) {
	var (
		adj = t.AdjacencyMatrix()
	)
	sym = true
	adj.DoNonZero(func(i, j int, v float64) {
		if adj.At(j, i) != v {
			sym = false
		}
	})
	return
}

// NumEdges is the number of directed neighbor records
func (t *Topology) NumEdges() (n int) {
	for d := range t.domains {
		n += len(t.domains[d].Neighbors)
	}
	return
}
