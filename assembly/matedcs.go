package assembly

import (
	"encoding/json"

	"github.com/golang/geo/r3"

	"github.com/onshape-robotics/toolkit/spatialmath"
)

// MatedCS is the right-handed orthonormal coordinate frame attached to a
// mated entity. PartTF caches the 4x4 form when the frame was derived from an
// occurrence transform.
type MatedCS struct {
	XAxis  r3.Vector
	YAxis  r3.Vector
	ZAxis  r3.Vector
	Origin r3.Vector

	PartTF *spatialmath.Transform
}

// UnmarshalJSON validates the three-element invariant on each basis vector.
func (cs *MatedCS) UnmarshalJSON(b []byte) error {
	var aux struct {
		XAxis  []float64 `json:"xAxis"`
		YAxis  []float64 `json:"yAxis"`
		ZAxis  []float64 `json:"zAxis"`
		Origin []float64 `json:"origin"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	vectors := []struct {
		name string
		v    []float64
		dst  *r3.Vector
	}{
		{"xAxis", aux.XAxis, &cs.XAxis},
		{"yAxis", aux.YAxis, &cs.YAxis},
		{"zAxis", aux.ZAxis, &cs.ZAxis},
		{"origin", aux.Origin, &cs.Origin},
	}
	for _, vec := range vectors {
		if len(vec.v) != 3 {
			return &BadBasisError{Axis: vec.name, Len: len(vec.v)}
		}
		*vec.dst = r3.Vector{X: vec.v[0], Y: vec.v[1], Z: vec.v[2]}
	}
	cs.PartTF = nil
	return nil
}

// PartToMateTF returns the 4x4 transform whose rotation columns are the three
// axes and whose translation is the origin, or the cached PartTF when set.
func (cs *MatedCS) PartToMateTF() spatialmath.Transform {
	if cs.PartTF != nil {
		return *cs.PartTF
	}
	return spatialmath.Transform{
		cs.XAxis.X, cs.YAxis.X, cs.ZAxis.X, cs.Origin.X,
		cs.XAxis.Y, cs.YAxis.Y, cs.ZAxis.Y, cs.Origin.Y,
		cs.XAxis.Z, cs.YAxis.Z, cs.ZAxis.Z, cs.Origin.Z,
		0, 0, 0, 1,
	}
}

// MatedCSFromTransform builds a MatedCS from a 4x4 transform, caching the
// matrix form.
func MatedCSFromTransform(tf spatialmath.Transform) *MatedCS {
	return &MatedCS{
		XAxis:  r3.Vector{X: tf[0], Y: tf[4], Z: tf[8]},
		YAxis:  r3.Vector{X: tf[1], Y: tf[5], Z: tf[9]},
		ZAxis:  r3.Vector{X: tf[2], Y: tf[6], Z: tf[10]},
		Origin: tf.Translation(),
		PartTF: &tf,
	}
}
