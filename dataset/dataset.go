package dataset

import (
	"fmt"
)

type MeshType uint8

const (
	Rectilinear MeshType = iota
	Curvilinear
)

func (mt MeshType) String() string {
	if mt == Rectilinear {
		return "Rectilinear"
	}
	return "Curvilinear"
}

func NewMeshType(label string) (mt MeshType, err error) {
	switch label {
	case "Rectilinear", "rectilinear", "":
		mt = Rectilinear
	case "Curvilinear", "curvilinear":
		mt = Curvilinear
	default:
		err = fmt.Errorf("unknown mesh type %q", label)
	}
	return
}

// Well known array names produced by ghost synthesis
const (
	GhostZonesName = "ghostZones"
	GhostNodesName = "ghostNodes"
	RealDimsName   = "RealDims"
)

// Ghost flag bits of the ghostZones and ghostNodes arrays
const (
	DuplicatedZoneInternalToProblem uint8 = 1
	DuplicatedNode                  uint8 = 1
)

/*
Dataset is one structured domain: node dimensions, coordinates and the
point, cell and field data attached to it. Rectilinear meshes keep one
coordinate array per axis, curvilinear meshes keep xyz per node in Points.
*/
type Dataset struct {
	Type      MeshType
	Dims      [3]int // Node dimensions
	X, Y, Z   []float32
	Points    *Array // Curvilinear only, Float32 with 3 components
	PointData []*Array
	CellData  []*Array
	FieldData []*Array
}

func NewRectilinear(x, y, z []float32) *Dataset {
	return &Dataset{
		Type: Rectilinear,
		Dims: [3]int{len(x), len(y), len(z)},
		X:    x, Y: y, Z: z,
	}
}

func NewCurvilinear(dims [3]int, xyz []float32) (ds *Dataset, err error) {
	if len(xyz) != 3*dims[0]*dims[1]*dims[2] {
		err = fmt.Errorf("curvilinear points length %d does not match dims %v", len(xyz), dims)
		return
	}
	ds = &Dataset{
		Type:   Curvilinear,
		Dims:   dims,
		Points: NewFloat32Array("points", 3, xyz),
	}
	return
}

func (ds *Dataset) NumPoints() int {
	return ds.Dims[0] * ds.Dims[1] * ds.Dims[2]
}

// NumCells follows the structured convention that a flat axis still holds
// one layer of cells
func (ds *Dataset) NumCells() (n int) {
	n = 1
	for _, d := range ds.Dims {
		if d > 1 {
			n *= d - 1
		}
	}
	return
}

func (ds *Dataset) Validate() (err error) {
	switch ds.Type {
	case Rectilinear:
		if len(ds.X) != ds.Dims[0] || len(ds.Y) != ds.Dims[1] || len(ds.Z) != ds.Dims[2] {
			return fmt.Errorf("rectilinear coordinate lengths [%d,%d,%d] do not match dims %v",
				len(ds.X), len(ds.Y), len(ds.Z), ds.Dims)
		}
	case Curvilinear:
		if ds.Points == nil || ds.Points.Tuples() != ds.NumPoints() || ds.Points.NComp != 3 {
			return fmt.Errorf("curvilinear points do not match dims %v", ds.Dims)
		}
	}
	for _, a := range ds.PointData {
		if a.Tuples() != ds.NumPoints() {
			return fmt.Errorf("point array %s has %d tuples, mesh has %d points",
				a.Name, a.Tuples(), ds.NumPoints())
		}
	}
	for _, a := range ds.CellData {
		if a.Tuples() != ds.NumCells() {
			return fmt.Errorf("cell array %s has %d tuples, mesh has %d cells",
				a.Name, a.Tuples(), ds.NumCells())
		}
	}
	return
}

func find(list []*Array, name string) (a *Array, idx int) {
	for i, a := range list {
		if a.Name == name {
			return a, i
		}
	}
	return nil, -1
}

func replace(list []*Array, a *Array) []*Array {
	if _, idx := find(list, a.Name); idx >= 0 {
		list[idx] = a
		return list
	}
	return append(list, a)
}

func (ds *Dataset) GetPointArray(name string) (a *Array) {
	a, _ = find(ds.PointData, name)
	return
}

func (ds *Dataset) GetCellArray(name string) (a *Array) {
	a, _ = find(ds.CellData, name)
	return
}

func (ds *Dataset) GetFieldArray(name string) (a *Array) {
	a, _ = find(ds.FieldData, name)
	return
}

func (ds *Dataset) GetArray(name string, center Centering) *Array {
	if center == Nodal {
		return ds.GetPointArray(name)
	}
	return ds.GetCellArray(name)
}

// AddPointArray adds or replaces the point array with the same name
func (ds *Dataset) AddPointArray(a *Array) { ds.PointData = replace(ds.PointData, a) }
func (ds *Dataset) AddCellArray(a *Array)  { ds.CellData = replace(ds.CellData, a) }
func (ds *Dataset) AddFieldArray(a *Array) { ds.FieldData = replace(ds.FieldData, a) }

func (ds *Dataset) AddArray(a *Array, center Centering) {
	if center == Nodal {
		ds.AddPointArray(a)
		return
	}
	ds.AddCellArray(a)
}

// Coordinate returns the xyz location of node (i,j,k), zero based
func (ds *Dataset) Coordinate(i, j, k int) (xyz [3]float32) {
	if ds.Type == Rectilinear {
		return [3]float32{ds.X[i], ds.Y[j], ds.Z[k]}
	}
	n := (k*ds.Dims[1]+j)*ds.Dims[0] + i
	for c := 0; c < 3; c++ {
		xyz[c] = ds.Points.Float32At(n, c)
	}
	return
}
