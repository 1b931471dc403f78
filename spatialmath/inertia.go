package spatialmath

import (
	"github.com/golang/geo/r3"
)

// Inertia is a 3x3 inertia tensor stored row-major.
type Inertia [9]float64

// NewInertiaFromSlice builds an inertia tensor from the first nine elements of
// v, the layout Onshape reports inertia in.
func NewInertiaFromSlice(v []float64) Inertia {
	var i Inertia
	copy(i[:], v)
	return i
}

// NewDiagonalInertia returns a diagonal inertia tensor.
func NewDiagonalInertia(xx, yy, zz float64) Inertia {
	return Inertia{xx, 0, 0, 0, yy, 0, 0, 0, zz}
}

// Reexpress returns R * I * Rᵀ, the tensor expressed in the frame reached by r.
func (i Inertia) Reexpress(r Rotation) Inertia {
	var ir Rotation
	copy(ir[:], i[:])
	rotated := r.Mul(ir).Mul(r.Transpose())
	var out Inertia
	copy(out[:], rotated[:])
	return out
}

// Add returns the element-wise sum of the two tensors.
func (i Inertia) Add(o Inertia) Inertia {
	var out Inertia
	for k := range i {
		out[k] = i[k] + o[k]
	}
	return out
}

// Diagonal returns the diagonal elements of the tensor.
func (i Inertia) Diagonal() r3.Vector {
	return r3.Vector{X: i[0], Y: i[4], Z: i[8]}
}

// ParallelAxis shifts the tensor of a body of mass m by the displacement d:
// I + m*(‖d‖²*I₃ − d*dᵀ).
func ParallelAxis(i Inertia, m float64, d r3.Vector) Inertia {
	d2 := d.Norm2()
	shift := Inertia{
		m * (d2 - d.X*d.X), m * (-d.X * d.Y), m * (-d.X * d.Z),
		m * (-d.Y * d.X), m * (d2 - d.Y*d.Y), m * (-d.Y * d.Z),
		m * (-d.Z * d.X), m * (-d.Z * d.Y), m * (d2 - d.Z*d.Z),
	}
	return i.Add(shift)
}
