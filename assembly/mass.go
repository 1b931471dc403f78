package assembly

import (
	"github.com/golang/geo/r3"

	"github.com/onshape-robotics/toolkit/spatialmath"
)

// PrincipalAxis is one principal axis of a part.
type PrincipalAxis struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vector returns the axis as a vector.
func (a PrincipalAxis) Vector() r3.Vector {
	return r3.Vector{X: a.X, Y: a.Y, Z: a.Z}
}

// MassProperties holds the mass data Onshape reports for a part or an
// aggregate assembly. The list fields carry value, lower bound and upper
// bound; index 0, the value, is used throughout.
type MassProperties struct {
	Mass             []float64       `json:"mass"`
	Volume           []float64       `json:"volume"`
	Centroid         []float64       `json:"centroid"`
	Inertia          []float64       `json:"inertia"`
	PrincipalInertia []float64       `json:"principalInertia"`
	PrincipalAxes    []PrincipalAxis `json:"principalAxes"`
}

// TotalMass returns the reported mass, or zero when absent.
func (m *MassProperties) TotalMass() float64 {
	if m == nil || len(m.Mass) == 0 {
		return 0
	}
	return m.Mass[0]
}

// CenterOfMass returns the centroid.
func (m *MassProperties) CenterOfMass() r3.Vector {
	if m == nil || len(m.Centroid) < 3 {
		return r3.Vector{}
	}
	return r3.Vector{X: m.Centroid[0], Y: m.Centroid[1], Z: m.Centroid[2]}
}

// InertiaTensor returns the 3x3 inertia tensor.
func (m *MassProperties) InertiaTensor() spatialmath.Inertia {
	if m == nil || len(m.Inertia) < 9 {
		return spatialmath.Inertia{}
	}
	return spatialmath.NewInertiaFromSlice(m.Inertia)
}

// CenterOfMassWRT re-expresses the centroid in the frame reached by tf.
func (m *MassProperties) CenterOfMassWRT(tf spatialmath.Transform) r3.Vector {
	return tf.Apply(m.CenterOfMass())
}

// InertiaWRT re-expresses the inertia tensor under the rotation r.
func (m *MassProperties) InertiaWRT(r spatialmath.Rotation) spatialmath.Inertia {
	return m.InertiaTensor().Reexpress(r)
}
