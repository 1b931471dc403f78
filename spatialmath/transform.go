// Package spatialmath implements the rigid-body math used by the assembly
// compiler: homogeneous transforms, rotations, Euler angle conversions, and
// inertia tensor manipulation.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Transform is a 4x4 homogeneous transform stored row-major.
type Transform [16]float64

// NewTransform returns the identity transform.
func NewTransform() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// NewTransformFromSlice builds a transform from 16 row-major floats.
func NewTransformFromSlice(v []float64) (Transform, error) {
	if len(v) != 16 {
		return Transform{}, errors.Errorf("transform must have 16 elements, got %d", len(v))
	}
	var t Transform
	copy(t[:], v)
	return t, nil
}

// NewTransformFromRotation builds a transform from a rotation and a translation.
func NewTransformFromRotation(r Rotation, v r3.Vector) Transform {
	return Transform{
		r[0], r[1], r[2], v.X,
		r[3], r[4], r[5], v.Y,
		r[6], r[7], r[8], v.Z,
		0, 0, 0, 1,
	}
}

// Rotation returns the upper-left 3x3 block.
func (t Transform) Rotation() Rotation {
	return Rotation{
		t[0], t[1], t[2],
		t[4], t[5], t[6],
		t[8], t[9], t[10],
	}
}

// Translation returns the translation column.
func (t Transform) Translation() r3.Vector {
	return r3.Vector{X: t[3], Y: t[7], Z: t[11]}
}

// WithTranslation returns a copy of the transform with its translation replaced.
func (t Transform) WithTranslation(v r3.Vector) Transform {
	t[3], t[7], t[11] = v.X, v.Y, v.Z
	return t
}

// Mul returns t * o.
func (t Transform) Mul(o Transform) Transform {
	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += t[i*4+k] * o[k*4+j]
			}
			out[i*4+j] = sum
		}
	}
	return out
}

// Inverse returns the inverse transform.
func (t Transform) Inverse() (Transform, error) {
	m := mat.NewDense(4, 4, t[:])
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Transform{}, errors.Wrap(err, "transform is not invertible")
	}
	var out Transform
	copy(out[:], inv.RawMatrix().Data)
	return out, nil
}

// Apply transforms the point p.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3],
		Y: t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7],
		Z: t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11],
	}
}

// ApproxEqual reports whether every element of the two transforms is within tol.
func (t Transform) ApproxEqual(o Transform, tol float64) bool {
	for i := range t {
		if math.Abs(t[i]-o[i]) > tol {
			return false
		}
	}
	return true
}
