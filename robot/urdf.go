package robot

import (
	"encoding/xml"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/onshape-robotics/toolkit/logging"
	"github.com/onshape-robotics/toolkit/onshape"
)

// xmlDeclaration is prepended to every emitted document.
const xmlDeclaration = "<?xml version=\"1.0\" ?>\n"

// The URDF document shape, marshalled with encoding/xml. Attribute values are
// preformatted strings so emission and parsing share one set of structs.
type urdfRobot struct {
	XMLName xml.Name    `xml:"robot"`
	Name    string      `xml:"name,attr"`
	Links   []urdfLink  `xml:"link"`
	Joints  []urdfJoint `xml:"joint"`
}

type urdfLink struct {
	Name      string         `xml:"name,attr"`
	Visual    *urdfVisual    `xml:"visual"`
	Collision *urdfCollision `xml:"collision"`
	Inertial  *urdfInertial  `xml:"inertial"`
}

type urdfOrigin struct {
	XYZ string `xml:"xyz,attr"`
	RPY string `xml:"rpy,attr"`
}

type urdfVisual struct {
	Name     string        `xml:"name,attr,omitempty"`
	Origin   *urdfOrigin   `xml:"origin"`
	Geometry urdfGeometry  `xml:"geometry"`
	Material *urdfMaterial `xml:"material"`
}

type urdfCollision struct {
	Name     string       `xml:"name,attr,omitempty"`
	Origin   *urdfOrigin  `xml:"origin"`
	Geometry urdfGeometry `xml:"geometry"`
}

type urdfGeometry struct {
	Mesh *urdfMesh `xml:"mesh"`
}

type urdfMesh struct {
	Filename string `xml:"filename,attr"`
}

type urdfMaterial struct {
	Name  string     `xml:"name,attr"`
	Color *urdfColor `xml:"color"`
}

type urdfColor struct {
	RGBA string `xml:"rgba,attr"`
}

type urdfInertial struct {
	Origin  *urdfOrigin    `xml:"origin"`
	Mass    urdfMass       `xml:"mass"`
	Inertia urdfInertiaTag `xml:"inertia"`
}

type urdfMass struct {
	Value string `xml:"value,attr"`
}

type urdfInertiaTag struct {
	Ixx string `xml:"ixx,attr"`
	Iyy string `xml:"iyy,attr"`
	Izz string `xml:"izz,attr"`
	Ixy string `xml:"ixy,attr"`
	Ixz string `xml:"ixz,attr"`
	Iyz string `xml:"iyz,attr"`
}

type urdfJoint struct {
	Name     string        `xml:"name,attr"`
	Type     string        `xml:"type,attr"`
	Origin   *urdfOrigin   `xml:"origin"`
	Parent   urdfJointRef  `xml:"parent"`
	Child    urdfJointRef  `xml:"child"`
	Axis     *urdfAxis     `xml:"axis"`
	Limit    *urdfLimit    `xml:"limit"`
	Dynamics *urdfDynamics `xml:"dynamics"`
	Mimic    *urdfMimic    `xml:"mimic"`
}

type urdfJointRef struct {
	Link string `xml:"link,attr"`
}

type urdfAxis struct {
	XYZ string `xml:"xyz,attr"`
}

type urdfLimit struct {
	Effort   string `xml:"effort,attr"`
	Velocity string `xml:"velocity,attr"`
	Lower    string `xml:"lower,attr"`
	Upper    string `xml:"upper,attr"`
}

type urdfDynamics struct {
	Damping  string `xml:"damping,attr"`
	Friction string `xml:"friction,attr"`
}

type urdfMimic struct {
	Joint      string `xml:"joint,attr"`
	Multiplier string `xml:"multiplier,attr"`
	Offset     string `xml:"offset,attr"`
}

func originToURDF(o Origin) *urdfOrigin {
	return &urdfOrigin{XYZ: formatVector(o.XYZ), RPY: formatVector(o.RPY)}
}

func parseVector(s string) (r3.Vector, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return r3.Vector{}, errors.Errorf("expected 3 values, got %q", s)
	}
	var values [3]float64
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "parsing %q", s)
		}
		values[i] = v
	}
	return r3.Vector{X: values[0], Y: values[1], Z: values[2]}, nil
}

func parseScalar(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func originFromURDF(o *urdfOrigin) (Origin, error) {
	if o == nil {
		return ZeroOrigin(), nil
	}
	out := ZeroOrigin()
	if o.XYZ != "" {
		xyz, err := parseVector(o.XYZ)
		if err != nil {
			return out, err
		}
		out.XYZ = xyz
	}
	if o.RPY != "" {
		rpy, err := parseVector(o.RPY)
		if err != nil {
			return out, err
		}
		out.RPY = rpy
	}
	return out, nil
}

// ToURDF serializes the robot into a URDF document.
func (r *Robot) ToURDF() ([]byte, error) {
	doc := urdfRobot{Name: r.Name}

	for _, link := range r.links {
		out := urdfLink{Name: link.Name}
		if link.Visual != nil {
			out.Visual = &urdfVisual{
				Name:     link.Visual.Name,
				Origin:   originToURDF(link.Visual.Origin),
				Geometry: urdfGeometry{Mesh: &urdfMesh{Filename: link.Visual.Geometry.MeshFileName}},
			}
			if link.Visual.Material != nil {
				color := link.Visual.Material.Color
				out.Visual.Material = &urdfMaterial{
					Name: link.Visual.Material.Name,
					Color: &urdfColor{RGBA: formatFloat(color[0]) + " " + formatFloat(color[1]) + " " +
						formatFloat(color[2]) + " " + formatFloat(color[3])},
				}
			}
		}
		if link.Collision != nil {
			out.Collision = &urdfCollision{
				Name:     link.Collision.Name,
				Origin:   originToURDF(link.Collision.Origin),
				Geometry: urdfGeometry{Mesh: &urdfMesh{Filename: link.Collision.Geometry.MeshFileName}},
			}
		}
		if link.Inertial != nil {
			out.Inertial = &urdfInertial{
				Origin: originToURDF(link.Inertial.Origin),
				Mass:   urdfMass{Value: formatFloat(link.Inertial.Mass)},
				Inertia: urdfInertiaTag{
					Ixx: formatFloat(link.Inertial.Inertia.Ixx),
					Iyy: formatFloat(link.Inertial.Inertia.Iyy),
					Izz: formatFloat(link.Inertial.Inertia.Izz),
					Ixy: formatFloat(link.Inertial.Inertia.Ixy),
					Ixz: formatFloat(link.Inertial.Inertia.Ixz),
					Iyz: formatFloat(link.Inertial.Inertia.Iyz),
				},
			}
		}
		doc.Links = append(doc.Links, out)
	}

	for _, joint := range r.joints {
		out := urdfJoint{
			Name:   joint.Name,
			Type:   string(joint.Type),
			Origin: originToURDF(joint.Origin),
			Parent: urdfJointRef{Link: joint.Parent},
			Child:  urdfJointRef{Link: joint.Child},
		}
		if joint.Axis != nil {
			out.Axis = &urdfAxis{XYZ: formatVector(joint.Axis.XYZ)}
		}
		if joint.Limits != nil {
			out.Limit = &urdfLimit{
				Effort:   formatFloat(joint.Limits.Effort),
				Velocity: formatFloat(joint.Limits.Velocity),
				Lower:    formatFloat(joint.Limits.Lower),
				Upper:    formatFloat(joint.Limits.Upper),
			}
		}
		if joint.Dynamics != nil {
			out.Dynamics = &urdfDynamics{
				Damping:  formatFloat(joint.Dynamics.Damping),
				Friction: formatFloat(joint.Dynamics.Friction),
			}
		}
		if joint.Mimic != nil {
			out.Mimic = &urdfMimic{
				Joint:      joint.Mimic.Joint,
				Multiplier: formatFloat(joint.Mimic.Multiplier),
				Offset:     formatFloat(joint.Mimic.Offset),
			}
		}
		doc.Joints = append(doc.Joints, out)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshalling urdf")
	}
	return append([]byte(xmlDeclaration), append(body, '\n')...), nil
}

// FromURDF loads a robot description back from a URDF file. Mesh filenames
// referenced by the document become file-backed assets.
func FromURDF(path string, format Format, logger logging.Logger) (*Robot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return ParseURDF(data, format, logger)
}

// ParseURDF decodes a URDF document into a Robot.
func ParseURDF(data []byte, format Format, logger logging.Logger) (*Robot, error) {
	var doc urdfRobot
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing urdf")
	}

	r := New(doc.Name, format, logger)
	for _, in := range doc.Links {
		link := &Link{Name: in.Name}
		if in.Visual != nil {
			origin, err := originFromURDF(in.Visual.Origin)
			if err != nil {
				return nil, err
			}
			link.Visual = &VisualLink{Name: in.Visual.Name, Origin: origin}
			if in.Visual.Geometry.Mesh != nil {
				link.Visual.Geometry = Geometry{MeshFileName: in.Visual.Geometry.Mesh.Filename}
				r.registerFileAsset(in.Visual.Geometry.Mesh.Filename, in.Name)
			}
			if in.Visual.Material != nil {
				material := &Material{Name: in.Visual.Material.Name}
				if in.Visual.Material.Color != nil {
					fields := strings.Fields(in.Visual.Material.Color.RGBA)
					for i := 0; i < len(fields) && i < 4; i++ {
						material.Color[i] = parseScalar(fields[i])
					}
				}
				link.Visual.Material = material
			}
		}
		if in.Collision != nil {
			origin, err := originFromURDF(in.Collision.Origin)
			if err != nil {
				return nil, err
			}
			link.Collision = &CollisionLink{Name: in.Collision.Name, Origin: origin}
			if in.Collision.Geometry.Mesh != nil {
				link.Collision.Geometry = Geometry{MeshFileName: in.Collision.Geometry.Mesh.Filename}
				r.registerFileAsset(in.Collision.Geometry.Mesh.Filename, in.Name)
			}
		}
		if in.Inertial != nil {
			origin, err := originFromURDF(in.Inertial.Origin)
			if err != nil {
				return nil, err
			}
			link.Inertial = &InertialLink{
				Origin: origin,
				Mass:   parseScalar(in.Inertial.Mass.Value),
				Inertia: Inertia{
					Ixx: parseScalar(in.Inertial.Inertia.Ixx),
					Iyy: parseScalar(in.Inertial.Inertia.Iyy),
					Izz: parseScalar(in.Inertial.Inertia.Izz),
					Ixy: parseScalar(in.Inertial.Inertia.Ixy),
					Ixz: parseScalar(in.Inertial.Inertia.Ixz),
					Iyz: parseScalar(in.Inertial.Inertia.Iyz),
				},
			}
		}
		if err := r.AddLink(link); err != nil {
			return nil, err
		}
	}

	for _, in := range doc.Joints {
		origin, err := originFromURDF(in.Origin)
		if err != nil {
			return nil, err
		}
		joint := &Joint{
			Name:   in.Name,
			Type:   JointType(in.Type),
			Parent: in.Parent.Link,
			Child:  in.Child.Link,
			Origin: origin,
		}
		if in.Axis != nil {
			axis, err := parseVector(in.Axis.XYZ)
			if err != nil {
				return nil, err
			}
			joint.Axis = &Axis{XYZ: axis}
		}
		if in.Limit != nil {
			joint.Limits = &JointLimits{
				Effort:   parseScalar(in.Limit.Effort),
				Velocity: parseScalar(in.Limit.Velocity),
				Lower:    parseScalar(in.Limit.Lower),
				Upper:    parseScalar(in.Limit.Upper),
			}
		}
		if in.Dynamics != nil {
			joint.Dynamics = &JointDynamics{
				Damping:  parseScalar(in.Dynamics.Damping),
				Friction: parseScalar(in.Dynamics.Friction),
			}
		}
		if in.Mimic != nil {
			joint.Mimic = &JointMimic{
				Joint:      in.Mimic.Joint,
				Multiplier: parseScalar(in.Mimic.Multiplier),
				Offset:     parseScalar(in.Mimic.Offset),
			}
		}
		if err := r.AddJoint(joint); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Robot) registerFileAsset(fileName, linkName string) {
	if fileName == "" {
		return
	}
	if _, ok := r.assets[linkName]; !ok {
		r.assets[linkName] = onshape.AssetFromFile(fileName)
	}
}
