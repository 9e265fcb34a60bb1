// Package dataset holds the per-domain mesh, field and material containers
// the exchange engine reads from and writes halo-sized copies into.
package dataset

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FieldKind is the closed set of element types that travel on the wire
type FieldKind uint8

const (
	Int32 FieldKind = iota
	Float32
	Byte
)

// Size is the wire width of one element in bytes
func (k FieldKind) Size() int {
	switch k {
	case Int32, Float32:
		return 4
	case Byte:
		return 1
	}
	panic(fmt.Sprintf("unknown field kind %d", k))
}

func (k FieldKind) Valid() bool { return k <= Byte }

func (k FieldKind) String() string {
	switch k {
	case Int32:
		return "Int32"
	case Float32:
		return "Float32"
	case Byte:
		return "Byte"
	}
	return fmt.Sprintf("FieldKind(%d)", k)
}

func NewFieldKind(label string) (k FieldKind, err error) {
	switch label {
	case "Int32", "int32", "int":
		k = Int32
	case "Float32", "float32", "float":
		k = Float32
	case "Byte", "byte", "uint8":
		k = Byte
	default:
		err = fmt.Errorf("unknown field kind %q", label)
	}
	return
}

// Centering says whether an array lives on nodes or on cells
type Centering uint8

const (
	Nodal Centering = iota
	Zonal
)

func (c Centering) String() string {
	if c == Nodal {
		return "Nodal"
	}
	return "Zonal"
}

func NewCentering(label string) (c Centering, err error) {
	switch label {
	case "Nodal", "nodal", "point", "Point":
		c = Nodal
	case "Zonal", "zonal", "cell", "Cell":
		c = Zonal
	default:
		err = fmt.Errorf("unknown centering %q", label)
	}
	return
}

/*
Array is a flat tuple array stored in its wire encoding: Tuples() tuples of
NComp little-endian elements of Kind. Keeping the raw encoding lets the
exchange move any kind with the same copy path.
*/
type Array struct {
	Name  string
	Kind  FieldKind
	NComp int
	Data  []byte
}

func NewArray(name string, kind FieldKind, ncomp, ntuples int) *Array {
	return &Array{
		Name:  name,
		Kind:  kind,
		NComp: ncomp,
		Data:  make([]byte, ntuples*ncomp*kind.Size()),
	}
}

func NewFloat32Array(name string, ncomp int, vals []float32) (a *Array) {
	a = NewArray(name, Float32, ncomp, len(vals)/ncomp)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(a.Data[4*i:], math.Float32bits(v))
	}
	return
}

func NewInt32Array(name string, ncomp int, vals []int32) (a *Array) {
	a = NewArray(name, Int32, ncomp, len(vals)/ncomp)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(a.Data[4*i:], uint32(v))
	}
	return
}

func NewByteArray(name string, ncomp int, vals []uint8) (a *Array) {
	a = NewArray(name, Byte, ncomp, len(vals)/ncomp)
	copy(a.Data, vals)
	return
}

// TupleSize is the byte width of one tuple
func (a *Array) TupleSize() int { return a.NComp * a.Kind.Size() }

func (a *Array) Tuples() int {
	if a.NComp == 0 {
		return 0
	}
	return len(a.Data) / a.TupleSize()
}

func (a *Array) Tuple(i int) []byte {
	var (
		ts = a.TupleSize()
	)
	return a.Data[i*ts : (i+1)*ts]
}

func (a *Array) Float32s() (vals []float32) {
	if a.Kind != Float32 {
		panic(fmt.Sprintf("array %s is %s, not Float32", a.Name, a.Kind))
	}
	vals = make([]float32, len(a.Data)/4)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[4*i:]))
	}
	return
}

func (a *Array) Int32s() (vals []int32) {
	if a.Kind != Int32 {
		panic(fmt.Sprintf("array %s is %s, not Int32", a.Name, a.Kind))
	}
	vals = make([]int32, len(a.Data)/4)
	for i := range vals {
		vals[i] = int32(binary.LittleEndian.Uint32(a.Data[4*i:]))
	}
	return
}

func (a *Array) Bytes() []uint8 {
	if a.Kind != Byte {
		panic(fmt.Sprintf("array %s is %s, not Byte", a.Name, a.Kind))
	}
	return a.Data
}

func (a *Array) Float32At(tuple, comp int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(a.Data[4*(tuple*a.NComp+comp):]))
}

func (a *Array) Int32At(tuple, comp int) int32 {
	return int32(binary.LittleEndian.Uint32(a.Data[4*(tuple*a.NComp+comp):]))
}

func (a *Array) Clone() *Array {
	b := *a
	b.Data = append([]byte(nil), a.Data...)
	return &b
}

// SameShape is true when both arrays can be exchanged together
func (a *Array) SameShape(b *Array) bool {
	return a.Kind == b.Kind && a.NComp == b.NComp
}
