package BlockGrid

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"

	"github.com/notargets/ghostzones/InputParameters"
	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/types"
)

type field struct {
	id     int
	name   string
	center dataset.Centering
	kind   dataset.FieldKind
	ncomp  int
}

// tuple encodes the value of the field at a global index, every component
// a distinct integer that survives each wire kind exactly
func (f field) tuple(g [3]int) (buf []byte) {
	buf = make([]byte, f.ncomp*f.kind.Size())
	for c := 0; c < f.ncomp; c++ {
		v := (f.id*8+c)*7 + g[0] + 32*g[1] + 1024*g[2]
		switch f.kind {
		case dataset.Byte:
			buf[c] = uint8(v)
		case dataset.Int32:
			binary.LittleEndian.PutUint32(buf[4*c:], uint32(int32(v)))
		case dataset.Float32:
			binary.LittleEndian.PutUint32(buf[4*c:], math.Float32bits(float32(v)/4))
		}
	}
	return
}

/*
BlockGrid is one global structured mesh of Cells cells per axis cut into
Blocks domains per axis, domain id = bi + Blocks[0]*(bj + Blocks[1]*bk).
Every field is a closed form of the global index, so any halo entry can be
checked against the value its owner would hold.
*/
type BlockGrid struct {
	Scenario *InputParameters.Scenario
	Extents  []types.Extents // Global node boxes
	Topo     *boundary.Topology
	Owner    []int // Rank per domain, boundary.None when inactive
	Logger   *log.Logger

	meshType dataset.MeshType
	fields   []field
}

func NewBlockGrid(ip *InputParameters.Scenario, logger *log.Logger) (bg *BlockGrid, err error) {
	if err = ip.Validate(); err != nil {
		return
	}
	bg = &BlockGrid{Scenario: ip, Logger: logger}
	if bg.meshType, err = dataset.NewMeshType(ip.MeshType); err != nil {
		return
	}
	for id, fp := range ip.Fields {
		f := field{id: id, name: fp.Name, ncomp: fp.NComp}
		if f.center, err = dataset.NewCentering(fp.Centering); err != nil {
			return
		}
		if f.kind, err = dataset.NewFieldKind(fp.Kind); err != nil {
			return
		}
		bg.fields = append(bg.fields, f)
	}
	for bk := 0; bk < ip.Blocks[2]; bk++ {
		for bj := 0; bj < ip.Blocks[1]; bj++ {
			for bi := 0; bi < ip.Blocks[0]; bi++ {
				var e types.Extents
				for a, b := range [3]int{bi, bj, bk} {
					w := ip.Cells[a] / ip.Blocks[a]
					e[2*a], e[2*a+1] = b*w, (b+1)*w
				}
				bg.Extents = append(bg.Extents, e)
			}
		}
	}
	if bg.Topo, err = boundary.Discover(bg.Extents, nil); err != nil {
		return
	}
	if err = bg.Topo.Validate(); err != nil {
		return
	}
	config := boundary.DefaultPartitionConfig(int32(ip.NumProcs))
	config.Method = ip.Partition
	dp := boundary.NewDomainPartitioner(bg.Topo, config)
	dp.Logger = logger
	if bg.Owner, err = dp.Partition(); err != nil {
		return
	}
	for _, d := range ip.Inactive {
		bg.Owner[d] = boundary.None
	}
	return
}

func (bg *BlockGrid) NumDomains() int { return len(bg.Extents) }

// Local lists the domains rank owns
func (bg *BlockGrid) Local(rank int) (local []int) {
	for d, r := range bg.Owner {
		if r == rank {
			local = append(local, d)
		}
	}
	return
}

func (bg *BlockGrid) global(d int, p [3]int) [3]int {
	o := bg.Extents[d].Origin()
	return [3]int{o[0] + p[0], o[1] + p[1], o[2] + p[2]}
}

func (bg *BlockGrid) spacing(a int) float32 {
	if n := bg.Scenario.Cells[a]; n > 0 {
		return 1 / float32(n)
	}
	return 1
}

func curvilinearPoint(g [3]int) [3]float32 {
	return [3]float32{
		float32(g[0]) + 0.25*float32(g[1]),
		float32(g[1]) - 0.125*float32(g[2]),
		float32(g[2]) + 0.5*float32(g[0]),
	}
}

// Dataset builds domain d as its owner holds it before any exchange
func (bg *BlockGrid) Dataset(d int) (ds *dataset.Dataset, err error) {
	var (
		dom = bg.Topo.Domain(d)
	)
	switch bg.meshType {
	case dataset.Rectilinear:
		var xyz [3][]float32
		for a := 0; a < 3; a++ {
			for i := bg.Extents[d].Lo(a); i <= bg.Extents[d].Hi(a); i++ {
				xyz[a] = append(xyz[a], float32(i)*bg.spacing(a))
			}
		}
		ds = dataset.NewRectilinear(xyz[0], xyz[1], xyz[2])
	case dataset.Curvilinear:
		var points []float32
		dom.OldNodes.Each(func(i, j, k int) {
			p := curvilinearPoint(bg.global(d, [3]int{i, j, k}))
			points = append(points, p[:]...)
		})
		if ds, err = dataset.NewCurvilinear(dom.OldNodes.Dims(), points); err != nil {
			return
		}
	}
	for _, f := range bg.fields {
		var (
			e    = dom.OldCells
			data []byte
		)
		if f.center == dataset.Nodal {
			e = dom.OldNodes
		}
		e.Each(func(i, j, k int) {
			data = append(data, f.tuple(bg.global(d, [3]int{i, j, k}))...)
		})
		ds.AddArray(&dataset.Array{Name: f.name, Kind: f.kind, NComp: f.ncomp, Data: data}, f.center)
	}
	ds.AddFieldArray(dataset.NewInt32Array("domain", 1, []int32{int32(d)}))
	return
}

var MaterialNames = []string{"steel", "air"}

// material is the two material pattern at a global cell: one diagonal out
// of three is mixed, the others alternate between clean materials
func material(g [3]int) (clean int32, mats []int32, vfs []float32) {
	switch (g[0] + g[1] + g[2]) % 3 {
	case 0:
		vf := float32(g[0]%8+1) / 16
		return -1, []int32{0, 1}, []float32{vf, 1 - vf}
	case 1:
		return 1, nil, nil
	}
	return 0, nil, nil
}

func cellValue(g [3]int) float32 { return float32(g[0]+32*g[1]+1024*g[2]) / 2 }

func mixValue(cell, vf float32) float32 { return cell + 100*vf }

func (bg *BlockGrid) Material(d int) (m *dataset.Material) {
	old := bg.Topo.Domain(d).OldCells
	m = dataset.NewMaterial(append([]string(nil), MaterialNames...), old.Count())
	old.Each(func(i, j, k int) {
		c := old.Index(i, j, k)
		if clean, mats, vfs := material(bg.global(d, [3]int{i, j, k})); clean >= 0 {
			m.Matlist[c] = clean
		} else {
			m.AppendRun(c, mats, vfs)
		}
	})
	return
}

// MixVar is a cell variable over m, one extra value per mix record
func (bg *BlockGrid) MixVar(d int, m *dataset.Material) (mv *dataset.MixVar) {
	old := bg.Topo.Domain(d).OldCells
	mv = &dataset.MixVar{Name: "temperature", Values: make([]float32, old.Count())}
	old.Each(func(i, j, k int) {
		mv.Values[old.Index(i, j, k)] = cellValue(bg.global(d, [3]int{i, j, k}))
	})
	for rec := range m.MixMat {
		mv.MixValues = append(mv.MixValues, mixValue(mv.Values[m.MixZone[rec]], m.MixVF[rec]))
	}
	return
}

func (bg *BlockGrid) logf(format string, args ...any) {
	if bg.Logger != nil {
		bg.Logger.Printf(format, args...)
	}
}

func (bg *BlockGrid) String() string {
	return fmt.Sprintf("%s: %s mesh, %v cells in %v blocks over %d ranks",
		bg.Scenario.Title, bg.meshType, bg.Scenario.Cells, bg.Scenario.Blocks, bg.Scenario.NumProcs)
}
