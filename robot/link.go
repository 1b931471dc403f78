// Package robot synthesizes links and joints from a kinematic assembly graph
// and emits the result as URDF or MJCF.
package robot

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/beevik/etree"
	"github.com/golang/geo/r3"

	"github.com/onshape-robotics/toolkit/spatialmath"
)

// formatFloat renders a number to 8 significant figures, the precision every
// emitted attribute uses.
func formatFloat(v float64) string {
	return fmt.Sprintf("%.8g", v)
}

func formatVector(v r3.Vector) string {
	return formatFloat(v.X) + " " + formatFloat(v.Y) + " " + formatFloat(v.Z)
}

// Origin is a pose: a translation plus fixed-axis xyz Euler angles, the URDF
// origin convention.
type Origin struct {
	XYZ r3.Vector
	RPY r3.Vector
}

// ZeroOrigin returns the identity pose.
func ZeroOrigin() Origin {
	return Origin{}
}

// OriginFromTransform extracts the pose of a rigid transform.
func OriginFromTransform(tf spatialmath.Transform) Origin {
	roll, pitch, yaw := tf.Rotation().EulerExtrinsicXYZ()
	return Origin{
		XYZ: tf.Translation(),
		RPY: r3.Vector{X: roll, Y: pitch, Z: yaw},
	}
}

// Transform rebuilds the rigid transform of the pose.
func (o Origin) Transform() spatialmath.Transform {
	return spatialmath.NewTransformFromRotation(
		spatialmath.RotationFromEulerExtrinsicXYZ(o.RPY.X, o.RPY.Y, o.RPY.Z), o.XYZ)
}

// Rotation rebuilds the rotation of the pose.
func (o Origin) Rotation() spatialmath.Rotation {
	return spatialmath.RotationFromEulerExtrinsicXYZ(o.RPY.X, o.RPY.Y, o.RPY.Z)
}

// Axis is a joint axis direction.
type Axis struct {
	XYZ r3.Vector
}

// Inertia is the URDF inertia tensor representation.
type Inertia struct {
	Ixx, Iyy, Izz float64
	Ixy, Ixz, Iyz float64
}

// InertiaFromTensor flattens a tensor into its six URDF components.
func InertiaFromTensor(t spatialmath.Inertia) Inertia {
	return Inertia{
		Ixx: t[0], Iyy: t[4], Izz: t[8],
		Ixy: t[1], Ixz: t[2], Iyz: t[5],
	}
}

// Diagonal returns the principal diagonal, the MJCF diaginertia form.
func (i Inertia) Diagonal() r3.Vector {
	return r3.Vector{X: i.Ixx, Y: i.Iyy, Z: i.Izz}
}

// linkPalette are the material colors links cycle through.
var linkPalette = [][4]float64{
	{1, 0, 0, 1},
	{0, 1, 0, 1},
	{0, 0, 1, 1},
	{1, 1, 0, 1},
	{0, 1, 1, 1},
	{1, 0, 1, 1},
	{1, 0.5, 0, 1},
	{1, 1, 1, 1},
}

// Material is a named display color.
type Material struct {
	Name  string
	Color [4]float64
}

// MaterialForLink deterministically picks a palette color for a link so that
// repeated compiles of the same assembly emit identical documents.
func MaterialForLink(linkName string) *Material {
	h := fnv.New32a()
	h.Write([]byte(linkName)) //nolint:errcheck
	return &Material{
		Name:  linkName + "-material",
		Color: linkPalette[h.Sum32()%uint32(len(linkPalette))],
	}
}

// Geometry is a mesh reference; link geometry is always an STL asset.
type Geometry struct {
	MeshFileName string
}

// meshName is the asset name MJCF references, the file stem.
func (g Geometry) meshName() string {
	base := g.MeshFileName
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".stl")
}

// VisualLink is the display geometry of a link.
type VisualLink struct {
	Name     string
	Origin   Origin
	Geometry Geometry
	Material *Material
}

// CollisionLink is the collision geometry of a link.
type CollisionLink struct {
	Name     string
	Origin   Origin
	Geometry Geometry
}

// InertialLink carries a link's mass, center of mass and inertia.
type InertialLink struct {
	Origin  Origin
	Mass    float64
	Inertia Inertia
}

// Link is one rigid body of the robot.
type Link struct {
	Name      string
	Visual    *VisualLink
	Collision *CollisionLink
	Inertial  *InertialLink
}

// appendMJCF emits the link as a MuJoCo body under parent and returns the
// body element. The body pose is the link's visual origin.
func (l *Link) appendMJCF(parent *etree.Element) *etree.Element {
	body := parent.CreateElement("body")
	body.CreateAttr("name", l.Name)
	if l.Visual != nil {
		body.CreateAttr("pos", formatVector(l.Visual.Origin.XYZ))
		body.CreateAttr("euler", formatVector(l.Visual.Origin.RPY))
	}
	if l.Collision != nil {
		geom := body.CreateElement("geom")
		if l.Collision.Name != "" {
			geom.CreateAttr("name", l.Collision.Name)
		}
		geom.CreateAttr("contype", "1")
		geom.CreateAttr("conaffinity", "1")
		geom.CreateAttr("pos", formatVector(l.Collision.Origin.XYZ))
		geom.CreateAttr("euler", formatVector(l.Collision.Origin.RPY))
		geom.CreateAttr("type", "mesh")
		geom.CreateAttr("mesh", l.Collision.Geometry.meshName())
		geom.CreateAttr("group", "0")
	}
	if l.Visual != nil {
		geom := body.CreateElement("geom")
		if l.Visual.Name != "" {
			geom.CreateAttr("name", l.Visual.Name)
		}
		geom.CreateAttr("pos", formatVector(l.Visual.Origin.XYZ))
		geom.CreateAttr("euler", formatVector(l.Visual.Origin.RPY))
		geom.CreateAttr("type", "mesh")
		geom.CreateAttr("mesh", l.Visual.Geometry.meshName())
		if l.Visual.Material != nil {
			geom.CreateAttr("rgba", fmt.Sprintf("%s %s %s %s",
				formatFloat(l.Visual.Material.Color[0]),
				formatFloat(l.Visual.Material.Color[1]),
				formatFloat(l.Visual.Material.Color[2]),
				formatFloat(l.Visual.Material.Color[3])))
		}
		geom.CreateAttr("contype", "0")
		geom.CreateAttr("conaffinity", "0")
		geom.CreateAttr("condim", "1")
		geom.CreateAttr("density", "0")
		geom.CreateAttr("group", "1")
	}
	if l.Inertial != nil {
		inertial := body.CreateElement("inertial")
		inertial.CreateAttr("pos", formatVector(l.Inertial.Origin.XYZ))
		inertial.CreateAttr("euler", formatVector(l.Inertial.Origin.RPY))
		inertial.CreateAttr("mass", formatFloat(l.Inertial.Mass))
		inertial.CreateAttr("diaginertia", formatVector(l.Inertial.Inertia.Diagonal()))
	}
	return body
}
