package boundary

import "fmt"

/*
Orientation maps this domain's axes onto a neighbor's axes. Entry a is
±(b+1): axis a here runs along the neighbor's axis b, in the same (+) or the
reversed (-) direction.
*/
type Orientation [3]int

var Identity = Orientation{1, 2, 3}

// Axis returns the neighbor axis and the direction sign for local axis a
func (o Orientation) Axis(a int) (b, sign int) {
	if o[a] < 0 {
		return -o[a] - 1, -1
	}
	return o[a] - 1, 1
}

// Valid is true for a signed permutation of the three axes
func (o Orientation) Valid() bool {
	var (
		seen [3]bool
	)
	for a := 0; a < 3; a++ {
		if o[a] == 0 || o[a] > 3 || o[a] < -3 {
			return false
		}
		b, _ := o.Axis(a)
		if seen[b] {
			return false
		}
		seen[b] = true
	}
	return true
}

func (o Orientation) Inverse() (inv Orientation) {
	for a := 0; a < 3; a++ {
		b, s := o.Axis(a)
		inv[b] = s * (a + 1)
	}
	return
}

func (o Orientation) String() string {
	var (
		names = [3]string{"i", "j", "k"}
		s     string
	)
	if !o.Valid() {
		return fmt.Sprintf("invalid%v", [3]int(o))
	}
	for a := 0; a < 3; a++ {
		b, sign := o.Axis(a)
		if sign < 0 {
			s += "-"
		} else {
			s += "+"
		}
		s += names[b]
	}
	return fmt.Sprintf("(%s)", s)
}
