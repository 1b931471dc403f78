package robot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/beevik/etree"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/onshape-robotics/toolkit/logging"
	"github.com/onshape-robotics/toolkit/onshape"
)

// Format selects the output flavor; the value doubles as the file extension.
type Format string

// Output formats.
const (
	FormatURDF Format = "urdf"
	FormatMJCF Format = "xml"
)

// Default MJCF compiler and option attributes.
var (
	defaultCompilerAttributes = map[string]string{
		"angle":    "radian",
		"eulerseq": "xyz",
	}
	defaultOptionAttributes = map[string]string{
		"timestep":   "0.001",
		"gravity":    "0 0 -9.81",
		"iterations": "50",
	}
)

// DuplicateNameError reports a link or joint name collision. Synthesis
// uniquifies names, so hitting this means a caller bypassed it.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate %s name %q", e.Kind, e.Name)
}

// Light is a light source added to the MJCF worldbody.
type Light struct {
	Name        string
	Directional bool
	Diffuse     r3.Vector
	Specular    r3.Vector
	Pos         r3.Vector
	Direction   r3.Vector
	CastShadow  bool
}

// Actuator is a MuJoCo motor driving one joint.
type Actuator struct {
	Name        string
	Joint       string
	CtrlLimited bool
	CtrlRange   [2]float64
	Gear        float64
}

// Sensor is any element of the MJCF sensor block.
type Sensor interface {
	appendMJCF(parent *etree.Element)
}

// Encoder reads a joint position.
type Encoder struct {
	Name  string
	Joint string
}

func (e Encoder) appendMJCF(parent *etree.Element) {
	el := parent.CreateElement("jointpos")
	el.CreateAttr("name", e.Name)
	el.CreateAttr("joint", e.Joint)
}

// ForceSensor reads the force an actuator applies.
type ForceSensor struct {
	Name     string
	Actuator string
}

func (f ForceSensor) appendMJCF(parent *etree.Element) {
	el := parent.CreateElement("jointactuatorfrc")
	el.CreateAttr("name", f.Name)
	el.CreateAttr("joint", f.Actuator)
}

type namedSensor struct {
	name   string
	sensor Sensor
}

// customElement is a user-supplied element grafted into the MJCF document,
// either under the first element with a tag or under the element whose name
// attribute matches.
type customElement struct {
	name    string
	parent  string
	byTag   bool
	element *etree.Element
}

type attributeOverride struct {
	element    string
	attributes map[string]string
}

// Robot is the synthesized robot description: an ordered link/joint tree plus
// the mesh assets and MJCF extras that ride along with it.
type Robot struct {
	Name   string
	Format Format

	links      []*Link
	linkIndex  map[string]*Link
	joints     []*Joint
	jointIndex map[string]*Joint
	assets     map[string]*onshape.Asset

	position       r3.Vector
	groundPosition r3.Vector
	compilerAttrs  map[string]string
	optionAttrs    map[string]string

	lights    []*Light
	actuators []*Actuator
	sensors   []namedSensor
	custom    []customElement
	overrides []attributeOverride

	logger logging.Logger
}

// New creates an empty robot description.
func New(name string, format Format, logger logging.Logger) *Robot {
	compilerAttrs := map[string]string{}
	for k, v := range defaultCompilerAttributes {
		compilerAttrs[k] = v
	}
	optionAttrs := map[string]string{}
	for k, v := range defaultOptionAttributes {
		optionAttrs[k] = v
	}
	return &Robot{
		Name:          name,
		Format:        format,
		linkIndex:     map[string]*Link{},
		jointIndex:    map[string]*Joint{},
		assets:        map[string]*onshape.Asset{},
		compilerAttrs: compilerAttrs,
		optionAttrs:   optionAttrs,
		logger:        logger,
	}
}

// AddLink appends a link. Names must be unique within the document.
func (r *Robot) AddLink(link *Link) error {
	if _, ok := r.linkIndex[link.Name]; ok {
		return &DuplicateNameError{Kind: "link", Name: link.Name}
	}
	r.links = append(r.links, link)
	r.linkIndex[link.Name] = link
	return nil
}

// AddJoint appends a joint. Names must be unique within the document.
func (r *Robot) AddJoint(joint *Joint) error {
	if _, ok := r.jointIndex[joint.Name]; ok {
		return &DuplicateNameError{Kind: "joint", Name: joint.Name}
	}
	r.joints = append(r.joints, joint)
	r.jointIndex[joint.Name] = joint
	return nil
}

// Links returns the links in insertion order.
func (r *Robot) Links() []*Link { return r.links }

// Link returns a link by name.
func (r *Robot) Link(name string) *Link { return r.linkIndex[name] }

// Joints returns the joints in insertion order.
func (r *Robot) Joints() []*Joint { return r.joints }

// Joint returns a joint by name.
func (r *Robot) Joint(name string) *Joint { return r.jointIndex[name] }

// Assets returns the mesh assets keyed by link name.
func (r *Robot) Assets() map[string]*onshape.Asset { return r.assets }

// SetAsset registers the mesh asset of a link.
func (r *Robot) SetAsset(linkName string, asset *onshape.Asset) {
	r.assets[linkName] = asset
}

// SetPosition places the robot root body in the MJCF world.
func (r *Robot) SetPosition(pos r3.Vector) { r.position = pos }

// SetGroundPosition places the ground plane.
func (r *Robot) SetGroundPosition(pos r3.Vector) { r.groundPosition = pos }

// SetCompilerAttributes replaces the MJCF compiler attributes.
func (r *Robot) SetCompilerAttributes(attrs map[string]string) { r.compilerAttrs = attrs }

// SetOptionAttributes replaces the MJCF option attributes.
func (r *Robot) SetOptionAttributes(attrs map[string]string) { r.optionAttrs = attrs }

// AddLight adds a light to the world.
func (r *Robot) AddLight(light *Light) { r.lights = append(r.lights, light) }

// AddActuator adds a motor on a joint, optionally with an encoder and a force
// sensor reading it.
func (r *Robot) AddActuator(actuator *Actuator, addEncoder, addForceSensor bool) {
	r.actuators = append(r.actuators, actuator)
	if addEncoder {
		r.AddSensor(actuator.Name+"-enc", Encoder{Name: actuator.Name + "-enc", Joint: actuator.Joint})
	}
	if addForceSensor {
		r.AddSensor(actuator.Name+"-frc", ForceSensor{Name: actuator.Name + "-frc", Actuator: actuator.Joint})
	}
}

// AddSensor adds an entry to the sensor block.
func (r *Robot) AddSensor(name string, sensor Sensor) {
	r.sensors = append(r.sensors, namedSensor{name: name, sensor: sensor})
}

// AddCustomElementByTag registers an element to insert under the first
// element with the given tag (such as "worldbody" or "asset"). Registering
// the same name again replaces the earlier element.
func (r *Robot) AddCustomElementByTag(name, parentTag string, element *etree.Element) {
	r.setCustom(customElement{name: name, parent: parentTag, byTag: true, element: element})
}

// AddCustomElementByName registers an element to insert under the element
// whose name attribute matches; a body with that name takes precedence.
func (r *Robot) AddCustomElementByName(name, parentName string, element *etree.Element) {
	r.setCustom(customElement{name: name, parent: parentName, byTag: false, element: element})
}

func (r *Robot) setCustom(element customElement) {
	for i := range r.custom {
		if r.custom[i].name == element.name {
			r.custom[i] = element
			return
		}
	}
	r.custom = append(r.custom, element)
}

// SetElementAttributes records an attribute override applied to the named
// element as the last emission step, without regard to schema.
func (r *Robot) SetElementAttributes(elementName string, attributes map[string]string) {
	for i := range r.overrides {
		if r.overrides[i].element == elementName {
			r.overrides[i] = attributeOverride{element: elementName, attributes: attributes}
			return
		}
	}
	r.overrides = append(r.overrides, attributeOverride{element: elementName, attributes: attributes})
}

// Save writes the description to path and, when downloadAssets is set, fills
// the meshes directory beside it, one concurrent download per asset.
func (r *Robot) Save(ctx context.Context, path string, downloadAssets bool) error {
	if path == "" {
		path = r.Name + "." + string(r.Format)
	}
	dir := filepath.Dir(path)

	if downloadAssets {
		if err := r.downloadAssets(ctx, dir); err != nil {
			return err
		}
	}

	var data []byte
	var err error
	switch r.Format {
	case FormatMJCF:
		data, err = r.ToMJCF()
	default:
		data, err = r.ToURDF()
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	r.logger.Infof("robot description saved to %s", path)
	return nil
}

// downloadAssets fetches every asset concurrently. Downloads are independent
// writes, so failures accumulate instead of cancelling the rest.
func (r *Robot) downloadAssets(ctx context.Context, dir string) error {
	var (
		mu   sync.Mutex
		errs error
	)
	group, ctx := errgroup.WithContext(ctx)
	for _, asset := range r.assets {
		asset := asset
		group.Go(func() error {
			if err := asset.Download(ctx, dir); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	//nolint:errcheck
	group.Wait()
	return errs
}
