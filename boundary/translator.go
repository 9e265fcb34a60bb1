package boundary

import "github.com/notargets/ghostzones/types"

/*
Translator maps indices of a neighbor's space into the receiving domain's
space. For receiving axis a running along neighbor axis b with sign s:

	node[a] = base1 + s*(p[b] - base2)

base2 is the low corner of the neighbor's shared box on b, base1 is the low
(s > 0) or high (s < 0) corner of the receiver's shared box on a. A reversed
cell index lands one lower, since cell c spans nodes c and c+1.
*/
type Translator struct {
	axis, sign   [3]int
	base1, base2 [3]int
	flat         [3]bool
}

func newTranslator(n1, n2 *Neighbor, nodes types.Extents) (tr Translator) {
	for a := 0; a < 3; a++ {
		b, s := n1.Orient.Axis(a)
		tr.axis[a], tr.sign[a] = b, s
		tr.base2[a] = n2.Shared.Lo(b)
		if s > 0 {
			tr.base1[a] = n1.Shared.Lo(a)
		} else {
			tr.base1[a] = n1.Shared.Hi(a)
		}
		tr.flat[a] = nodes.Flat(a)
	}
	return
}

func (tr Translator) Node(p [3]int) (q [3]int) {
	for a := 0; a < 3; a++ {
		q[a] = tr.base1[a] + tr.sign[a]*(p[tr.axis[a]]-tr.base2[a])
	}
	return
}

func (tr Translator) Cell(p [3]int) (q [3]int) {
	for a := 0; a < 3; a++ {
		q[a] = tr.base1[a] + tr.sign[a]*(p[tr.axis[a]]-tr.base2[a])
		if tr.sign[a] < 0 && !tr.flat[a] {
			q[a]--
		}
	}
	return
}

func boxOf(p0, p1 [3]int) (e types.Extents) {
	for a := 0; a < 3; a++ {
		e[2*a], e[2*a+1] = min(p0[a], p1[a]), max(p0[a], p1[a])
	}
	return
}

// NodeExtents maps a node box by its two corners
func (tr Translator) NodeExtents(e types.Extents) types.Extents {
	return boxOf(tr.Node([3]int{e[0], e[2], e[4]}), tr.Node([3]int{e[1], e[3], e[5]}))
}

func (tr Translator) CellExtents(e types.Extents) types.Extents {
	return boxOf(tr.Cell([3]int{e[0], e[2], e[4]}), tr.Cell([3]int{e[1], e[3], e[5]}))
}
