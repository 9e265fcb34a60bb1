package dataset

import (
	"fmt"
	"iter"
)

/*
Material is the per-cell material description of one domain.

	Matlist[c] >= 0 : cell c is clean, the value is its material index
	Matlist[c] <  0 : cell c is mixed, its first mix record is -(Matlist[c]+1)

Mix records are parallel arrays. MixNext holds the 1-based index of the next
record of the same cell, 0 (or any value <= 0) ends the run.
*/
type Material struct {
	Names   []string
	Matlist []int32
	MixMat  []int32
	MixZone []int32
	MixVF   []float32
	MixNext []int32
}

func NewMaterial(names []string, ncells int) *Material {
	return &Material{
		Names:   names,
		Matlist: make([]int32, ncells),
	}
}

func (m *Material) NMaterials() int { return len(m.Names) }

func (m *Material) Mixlen() int { return len(m.MixMat) }

func (m *Material) NumCells() int { return len(m.Matlist) }

func (m *Material) IsMixed(cell int) bool { return m.Matlist[cell] < 0 }

// Chain yields the mix record indices of one cell in link order. Clean cells
// yield nothing. The walk is bounded by Mixlen so a corrupt chain cannot spin.
func (m *Material) Chain(cell int) iter.Seq[int] {
	return func(yield func(int) bool) {
		if m.Matlist[cell] >= 0 {
			return
		}
		rec := int(-m.Matlist[cell] - 1)
		for steps := 0; rec >= 0 && rec < len(m.MixNext) && steps < len(m.MixNext); steps++ {
			if !yield(rec) {
				return
			}
			rec = int(m.MixNext[rec]) - 1
		}
	}
}

func (m *Material) RunLength(cell int) (n int) {
	for range m.Chain(cell) {
		n++
	}
	return
}

// AppendRun adds one mixed cell as a contiguous block of records
func (m *Material) AppendRun(cell int, mats []int32, vfs []float32) {
	first := len(m.MixMat)
	for r := range mats {
		m.MixMat = append(m.MixMat, mats[r])
		m.MixVF = append(m.MixVF, vfs[r])
		m.MixZone = append(m.MixZone, int32(cell))
		next := int32(first + r + 2)
		if r == len(mats)-1 {
			next = 0
		}
		m.MixNext = append(m.MixNext, next)
	}
	m.Matlist[cell] = -int32(first + 1)
}

func (m *Material) Validate() (err error) {
	var (
		nrec = len(m.MixMat)
		used = make([]bool, nrec)
	)
	if len(m.MixZone) != nrec || len(m.MixVF) != nrec || len(m.MixNext) != nrec {
		return fmt.Errorf("mix arrays differ in length: mat %d, zone %d, vf %d, next %d",
			nrec, len(m.MixZone), len(m.MixVF), len(m.MixNext))
	}
	for c, ml := range m.Matlist {
		if ml >= 0 {
			if int(ml) >= len(m.Names) {
				return fmt.Errorf("cell %d has material %d, only %d materials", c, ml, len(m.Names))
			}
			continue
		}
		rec := int(-ml - 1)
		if rec >= nrec {
			return fmt.Errorf("cell %d starts at mix record %d, mixlen is %d", c, rec, nrec)
		}
		for steps := 0; rec >= 0; steps++ {
			if rec >= nrec {
				return fmt.Errorf("cell %d links to mix record %d, mixlen is %d", c, rec, nrec)
			}
			if used[rec] || steps > nrec {
				return fmt.Errorf("mix record %d of cell %d is reached twice", rec, c)
			}
			used[rec] = true
			rec = int(m.MixNext[rec]) - 1
		}
	}
	return
}

// MixVar is a cell variable that also carries one value per mix record
type MixVar struct {
	Name      string
	Values    []float32 // One per cell
	MixValues []float32 // One per mix record of the matching Material
}
