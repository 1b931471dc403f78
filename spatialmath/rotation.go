package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Rotation is a 3x3 rotation matrix stored row-major.
type Rotation [9]float64

// NewRotation returns the identity rotation.
func NewRotation() Rotation {
	return Rotation{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Mul returns r * o.
func (r Rotation) Mul(o Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += r[i*3+k] * o[k*3+j]
			}
			out[i*3+j] = sum
		}
	}
	return out
}

// Transpose returns the transposed (inverse) rotation.
func (r Rotation) Transpose() Rotation {
	return Rotation{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
}

// Apply rotates the vector v.
func (r Rotation) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r[0]*v.X + r[1]*v.Y + r[2]*v.Z,
		Y: r[3]*v.X + r[4]*v.Y + r[5]*v.Z,
		Z: r[6]*v.X + r[7]*v.Y + r[8]*v.Z,
	}
}

func rotX(a float64) Rotation {
	s, c := math.Sincos(a)
	return Rotation{1, 0, 0, 0, c, -s, 0, s, c}
}

func rotY(a float64) Rotation {
	s, c := math.Sincos(a)
	return Rotation{c, 0, s, 0, 1, 0, -s, 0, c}
}

func rotZ(a float64) Rotation {
	s, c := math.Sincos(a)
	return Rotation{c, -s, 0, s, c, 0, 0, 0, 1}
}

// RotationFromEulerExtrinsicXYZ composes a rotation from fixed-axis xyz angles,
// the URDF roll-pitch-yaw convention: R = Rz(yaw) * Ry(pitch) * Rx(roll).
func RotationFromEulerExtrinsicXYZ(roll, pitch, yaw float64) Rotation {
	return rotZ(yaw).Mul(rotY(pitch)).Mul(rotX(roll))
}

// EulerExtrinsicXYZ decomposes the rotation into fixed-axis xyz angles
// (URDF rpy). At the pitch singularity roll is fixed to zero.
func (r Rotation) EulerExtrinsicXYZ() (roll, pitch, yaw float64) {
	if r[6] <= -1+1e-12 {
		return 0, math.Pi / 2, math.Atan2(-r[1], r[4])
	}
	if r[6] >= 1-1e-12 {
		return 0, -math.Pi / 2, math.Atan2(-r[1], r[4])
	}
	pitch = math.Asin(-r[6])
	roll = math.Atan2(r[7], r[8])
	yaw = math.Atan2(r[3], r[0])
	return roll, pitch, yaw
}

// RotationFromEulerIntrinsicXYZ composes a rotation from intrinsic XYZ angles,
// the MJCF eulerseq="xyz" convention: R = Rx(a) * Ry(b) * Rz(c).
func RotationFromEulerIntrinsicXYZ(a, b, c float64) Rotation {
	return rotX(a).Mul(rotY(b)).Mul(rotZ(c))
}

// EulerIntrinsicXYZ decomposes the rotation into intrinsic XYZ angles (MJCF
// euler attributes). At the singularity the third angle is fixed to zero.
func (r Rotation) EulerIntrinsicXYZ() (a, b, c float64) {
	if r[2] >= 1-1e-12 {
		return math.Atan2(r[3], r[4]), math.Pi / 2, 0
	}
	if r[2] <= -1+1e-12 {
		return math.Atan2(-r[3], r[4]), -math.Pi / 2, 0
	}
	b = math.Asin(r[2])
	a = math.Atan2(-r[5], r[8])
	c = math.Atan2(-r[1], r[0])
	return a, b, c
}

// ApproxEqual reports whether every element of the two rotations is within tol.
func (r Rotation) ApproxEqual(o Rotation, tol float64) bool {
	for i := range r {
		if math.Abs(r[i]-o[i]) > tol {
			return false
		}
	}
	return true
}
