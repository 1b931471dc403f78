package robot

import (
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/onshape-robotics/toolkit/logging"
)

func sampleRobot(t *testing.T) *Robot {
	t.Helper()
	r := New("sample", FormatURDF, logging.NewTestLogger(t))

	base := &Link{
		Name: "base",
		Visual: &VisualLink{
			Name:     "base-visual",
			Geometry: Geometry{MeshFileName: "meshes/base.stl"},
			Material: &Material{Name: "base-material", Color: [4]float64{1, 0, 0, 1}},
		},
		Collision: &CollisionLink{
			Name:     "base-collision",
			Geometry: Geometry{MeshFileName: "meshes/base.stl"},
		},
		Inertial: &InertialLink{
			Mass:    1.25,
			Inertia: Inertia{Ixx: 0.1, Iyy: 0.2, Izz: 0.30000000123},
		},
	}
	arm := &Link{
		Name: "arm",
		Visual: &VisualLink{
			Name:     "arm-visual",
			Origin:   Origin{XYZ: r3.Vector{X: 0.5}},
			Geometry: Geometry{MeshFileName: "meshes/arm.stl"},
		},
		Inertial: &InertialLink{Mass: 0.5, Inertia: Inertia{Ixx: 1, Iyy: 1, Izz: 1}},
	}
	test.That(t, r.AddLink(base), test.ShouldBeNil)
	test.That(t, r.AddLink(arm), test.ShouldBeNil)

	test.That(t, r.AddJoint(&Joint{
		Name:   "shoulder",
		Type:   JointRevolute,
		Parent: "base",
		Child:  "arm",
		Origin: Origin{XYZ: r3.Vector{Z: 0.1}, RPY: r3.Vector{X: 1.5707963}},
		Axis:   &Axis{XYZ: r3.Vector{Z: -1}},
		Limits: &JointLimits{Effort: 10, Velocity: 1, Lower: -3.14, Upper: 3.14},
		Mimic:  &JointMimic{Joint: "other", Multiplier: 2, Offset: 0},
	}), test.ShouldBeNil)
	return r
}

func TestToURDF(t *testing.T) {
	data, err := sampleRobot(t).ToURDF()
	test.That(t, err, test.ShouldBeNil)
	out := string(data)

	test.That(t, strings.HasPrefix(out, "<?xml version=\"1.0\" ?>\n"), test.ShouldBeTrue)
	test.That(t, out, test.ShouldContainSubstring, `<robot name="sample">`)
	test.That(t, out, test.ShouldContainSubstring, `<link name="base">`)
	test.That(t, out, test.ShouldContainSubstring, `<mesh filename="meshes/base.stl">`)
	test.That(t, out, test.ShouldContainSubstring, `<joint name="shoulder" type="revolute">`)
	test.That(t, out, test.ShouldContainSubstring, `<parent link="base">`)
	test.That(t, out, test.ShouldContainSubstring, `<child link="arm">`)
	test.That(t, out, test.ShouldContainSubstring, `<mimic joint="other" multiplier="2" offset="0">`)

	// Numbers render to 8 significant figures.
	test.That(t, out, test.ShouldContainSubstring, `izz="0.3"`)
	test.That(t, out, test.ShouldContainSubstring, `rpy="1.5707963 0 0"`)
}

func TestURDFRoundTrip(t *testing.T) {
	logger := logging.NewTestLogger(t)

	first, err := sampleRobot(t).ToURDF()
	test.That(t, err, test.ShouldBeNil)

	parsed, err := ParseURDF(first, FormatURDF, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed.Name, test.ShouldEqual, "sample")
	test.That(t, len(parsed.Links()), test.ShouldEqual, 2)
	test.That(t, len(parsed.Joints()), test.ShouldEqual, 1)

	// Mesh references become file-backed assets.
	test.That(t, parsed.Assets()["base"], test.ShouldNotBeNil)
	test.That(t, parsed.Assets()["base"].FromFile, test.ShouldBeTrue)

	second, err := parsed.ToURDF()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(second), test.ShouldEqual, string(first))
}

func TestURDFEscapesFilenames(t *testing.T) {
	r := New("esc", FormatURDF, logging.NewTestLogger(t))
	test.That(t, r.AddLink(&Link{
		Name:   "a",
		Visual: &VisualLink{Geometry: Geometry{MeshFileName: `meshes/a<b>&"c.stl`}},
	}), test.ShouldBeNil)

	data, err := r.ToURDF()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "a&lt;b&gt;&amp;&#34;c.stl")
}

func TestDuplicateLinkRejected(t *testing.T) {
	r := New("dup", FormatURDF, logging.NewTestLogger(t))
	test.That(t, r.AddLink(&Link{Name: "a"}), test.ShouldBeNil)
	err := r.AddLink(&Link{Name: "a"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "duplicate link")
}
