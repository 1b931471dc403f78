package robot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/onshape-robotics/toolkit/spatialmath"
)

func attrFloat(el *etree.Element, name string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(el.SelectAttrValue(name, "0")), 64)
	if err != nil {
		return 0
	}
	return v
}

func attrVector(el *etree.Element, name string) r3.Vector {
	fields := strings.Fields(el.SelectAttrValue(name, "0 0 0"))
	var values [3]float64
	for i := 0; i < len(fields) && i < 3; i++ {
		if v, err := strconv.ParseFloat(fields[i], 64); err == nil {
			values[i] = v
		}
	}
	return r3.Vector{X: values[0], Y: values[1], Z: values[2]}
}

func setAttrsSorted(el *etree.Element, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		el.CreateAttr(key, attrs[key])
	}
}

func intrinsicEuler(rot spatialmath.Rotation) r3.Vector {
	a, b, c := rot.EulerIntrinsicXYZ()
	return r3.Vector{X: a, Y: b, Z: c}
}

// inertialAccum is the running inertial of one surviving body during fixed
// joint dissolution. Pose and Euler angles accumulate mass-weighted; the
// tensor accumulates with the parallel-axis theorem applied per contribution.
type inertialAccum struct {
	body    *etree.Element
	mass    float64
	pos     r3.Vector
	euler   r3.Vector
	inertia spatialmath.Inertia
}

// add folds one inertial, already expressed in the surviving body's frame at
// offset pos with rotation rot, into the accumulator.
func (a *inertialAccum) add(mass float64, pos r3.Vector, rot spatialmath.Rotation, diag r3.Vector) {
	a.mass += mass
	a.pos = a.pos.Add(pos.Mul(mass))
	a.euler = a.euler.Add(intrinsicEuler(rot).Mul(mass))
	moved := spatialmath.ParallelAxis(
		spatialmath.NewDiagonalInertia(diag.X, diag.Y, diag.Z).Reexpress(rot), mass, pos)
	a.inertia = a.inertia.Add(moved)
}

// seed folds the body's own inertial element in, once.
func (a *inertialAccum) seed() {
	if inertial := a.body.SelectElement("inertial"); inertial != nil {
		eulerAttr := attrVector(inertial, "euler")
		a.add(
			attrFloat(inertial, "mass"),
			attrVector(inertial, "pos"),
			spatialmath.RotationFromEulerIntrinsicXYZ(eulerAttr.X, eulerAttr.Y, eulerAttr.Z),
			attrVector(inertial, "diaginertia"),
		)
	}
}

// finalize divides out the total mass and writes the combined inertial back
// onto the surviving body.
func (a *inertialAccum) finalize() {
	if a.mass > 0 {
		a.pos = a.pos.Mul(1 / a.mass)
		a.euler = a.euler.Mul(1 / a.mass)
	}
	inertial := a.body.SelectElement("inertial")
	if inertial == nil {
		inertial = a.body.CreateElement("inertial")
	}
	inertial.CreateAttr("mass", formatFloat(a.mass))
	inertial.CreateAttr("pos", formatVector(a.pos))
	inertial.CreateAttr("euler", formatVector(a.euler))
	inertial.CreateAttr("diaginertia", formatVector(a.inertia.Diagonal()))
}

type dissolvedPose struct {
	pos r3.Vector
	rot spatialmath.Rotation
}

// ToMJCF serializes the robot into a MuJoCo scene. Fixed joints dissolve:
// their child bodies are welded into the surviving parent with composed
// transforms and combined inertials.
func (r *Robot) ToMJCF() ([]byte, error) {
	doc := etree.NewDocument()
	model := doc.CreateElement("mujoco")
	model.CreateAttr("model", r.Name)

	setAttrsSorted(model.CreateElement("compiler"), r.compilerAttrs)
	setAttrsSorted(model.CreateElement("option"), r.optionAttrs)

	assetEl := model.CreateElement("asset")
	assetNames := make([]string, 0, len(r.assets))
	for name := range r.assets {
		assetNames = append(assetNames, name)
	}
	sort.Strings(assetNames)
	for _, name := range assetNames {
		asset := r.assets[name]
		meshEl := assetEl.CreateElement("mesh")
		meshEl.CreateAttr("name", strings.TrimSuffix(asset.FileName, ".stl"))
		meshEl.CreateAttr("file", asset.RelativePath())
	}
	r.addGroundPlaneAssets()

	worldbody := model.CreateElement("worldbody")
	r.addGroundPlane()

	for _, light := range r.lights {
		lightEl := worldbody.CreateElement("light")
		lightEl.CreateAttr("name", light.Name)
		lightEl.CreateAttr("directional", mjcfBool(light.Directional))
		lightEl.CreateAttr("diffuse", formatVector(light.Diffuse))
		lightEl.CreateAttr("specular", formatVector(light.Specular))
		lightEl.CreateAttr("pos", formatVector(light.Pos))
		lightEl.CreateAttr("dir", formatVector(light.Direction))
		lightEl.CreateAttr("castshadow", mjcfBool(light.CastShadow))
	}

	rootBody := worldbody.CreateElement("body")
	rootBody.CreateAttr("name", r.Name)
	rootBody.CreateAttr("pos", formatVector(r.position))
	freejoint := rootBody.CreateElement("freejoint")
	freejoint.CreateAttr("name", r.Name+"_freejoint")

	bodies := map[string]*etree.Element{r.Name: rootBody}
	for _, link := range r.links {
		bodies[link.Name] = link.appendMJCF(rootBody)
	}

	dissolved := map[string]dissolvedPose{}
	accums := map[string]*inertialAccum{}

	// Fixed joints first: weld children into their surviving parents.
	for _, joint := range r.joints {
		if !joint.Dissolves() {
			continue
		}
		parentBody, childBody := bodies[joint.Parent], bodies[joint.Child]
		if parentBody == nil || childBody == nil {
			r.logger.Warnf("fixed joint %q references unknown bodies, skipping", joint.Name)
			continue
		}
		r.logger.Debugf("dissolving fixed joint %s -> %s", joint.Parent, joint.Child)

		jpos := joint.Origin.XYZ
		jrot := joint.Origin.Rotation()
		if parentPose, ok := dissolved[joint.Parent]; ok {
			jpos = parentPose.rot.Apply(jpos).Add(parentPose.pos)
			jrot = parentPose.rot.Mul(jrot)
		}
		dissolved[joint.Child] = dissolvedPose{pos: jpos, rot: jrot}

		survivor := parentBody.SelectAttrValue("name", "")
		acc, ok := accums[survivor]
		if !ok {
			acc = &inertialAccum{body: parentBody}
			acc.seed()
			accums[survivor] = acc
		}

		for _, child := range childBody.ChildElements() {
			switch child.Tag {
			case "inertial":
				eulerAttr := attrVector(child, "euler")
				childRot := spatialmath.RotationFromEulerIntrinsicXYZ(eulerAttr.X, eulerAttr.Y, eulerAttr.Z)
				acc.add(
					attrFloat(child, "mass"),
					jrot.Apply(attrVector(child, "pos")).Add(jpos),
					jrot.Mul(childRot),
					attrVector(child, "diaginertia"),
				)
			case "geom":
				eulerAttr := attrVector(child, "euler")
				childRot := spatialmath.RotationFromEulerIntrinsicXYZ(eulerAttr.X, eulerAttr.Y, eulerAttr.Z)
				child.CreateAttr("pos", formatVector(jrot.Apply(attrVector(child, "pos")).Add(jpos)))
				child.CreateAttr("euler", formatVector(intrinsicEuler(jrot.Mul(childRot))))
				parentBody.AddChild(child)
			default:
				parentBody.AddChild(child)
			}
		}
		if p := childBody.Parent(); p != nil {
			p.RemoveChild(childBody)
		}
		bodies[joint.Child] = parentBody
	}
	for _, acc := range accums {
		acc.finalize()
	}

	// Then the articulating joints: the child body takes the composed joint
	// pose and the joint itself sits at the body origin.
	for _, joint := range r.joints {
		if joint.Dissolves() {
			continue
		}
		parentBody, childBody := bodies[joint.Parent], bodies[joint.Child]
		if parentBody == nil || childBody == nil {
			r.logger.Warnf("joint %q references unknown bodies, skipping", joint.Name)
			continue
		}

		parentPose := dissolvedPose{rot: spatialmath.NewRotation()}
		if pose, ok := dissolved[joint.Parent]; ok {
			parentPose = pose
		}
		finalPos := parentPose.rot.Apply(joint.Origin.XYZ).Add(parentPose.pos)
		finalRot := parentPose.rot.Mul(joint.Origin.Rotation())

		childBody.CreateAttr("pos", formatVector(finalPos))
		childBody.CreateAttr("euler", formatVector(intrinsicEuler(finalRot)))

		zeroed := *joint
		zeroed.Origin = ZeroOrigin()
		zeroed.appendMJCF(childBody)

		parentBody.AddChild(childBody)
	}

	if len(r.actuators) > 0 {
		actuatorEl := model.CreateElement("actuator")
		for _, actuator := range r.actuators {
			motor := actuatorEl.CreateElement("motor")
			motor.CreateAttr("name", actuator.Name)
			motor.CreateAttr("joint", actuator.Joint)
			motor.CreateAttr("ctrllimited", mjcfBool(actuator.CtrlLimited))
			motor.CreateAttr("ctrlrange", formatFloat(actuator.CtrlRange[0])+" "+formatFloat(actuator.CtrlRange[1]))
			motor.CreateAttr("gear", formatFloat(actuator.Gear))
		}
	}
	if len(r.sensors) > 0 {
		sensorEl := model.CreateElement("sensor")
		for _, sensor := range r.sensors {
			sensor.sensor.appendMJCF(sensorEl)
		}
	}

	for _, custom := range r.custom {
		var parent *etree.Element
		if custom.byTag {
			if custom.parent == "mujoco" {
				parent = model
			} else {
				parent = doc.FindElement("//" + custom.parent)
			}
		} else {
			parent = doc.FindElement(fmt.Sprintf("//body[@name='%s']", custom.parent))
			if parent == nil {
				parent = doc.FindElement(fmt.Sprintf("//*[@name='%s']", custom.parent))
			}
		}
		if parent == nil {
			r.logger.Warnf("parent %q for custom element %q not found", custom.parent, custom.name)
			continue
		}
		parent.AddChild(custom.element.Copy())
	}

	for _, override := range r.overrides {
		el := doc.FindElement(fmt.Sprintf("//*[@name='%s']", override.element))
		if el == nil {
			r.logger.Warnf("element %q not found for attribute override", override.element)
			continue
		}
		setAttrsSorted(el, override.attributes)
	}

	doc.Indent(2)
	body, err := doc.WriteToBytes()
	if err != nil {
		return nil, errors.Wrap(err, "serializing mjcf")
	}
	return append([]byte(xmlDeclaration), body...), nil
}

func mjcfBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// addGroundPlaneAssets registers the checker texture and grid material the
// ground plane uses.
func (r *Robot) addGroundPlaneAssets() {
	texture := etree.NewElement("texture")
	texture.CreateAttr("name", "checker")
	texture.CreateAttr("type", "2d")
	texture.CreateAttr("builtin", "checker")
	texture.CreateAttr("rgb1", ".1 .2 .3")
	texture.CreateAttr("rgb2", ".2 .3 .4")
	texture.CreateAttr("width", "300")
	texture.CreateAttr("height", "300")
	r.AddCustomElementByTag("checker", "asset", texture)

	material := etree.NewElement("material")
	material.CreateAttr("name", "grid")
	material.CreateAttr("texture", "checker")
	material.CreateAttr("texrepeat", "8 8")
	material.CreateAttr("reflectance", ".2")
	r.AddCustomElementByTag("grid", "asset", material)
}

// addGroundPlane registers the ground plane geom as a custom worldbody
// element.
func (r *Robot) addGroundPlane() {
	ground := etree.NewElement("geom")
	ground.CreateAttr("type", "plane")
	ground.CreateAttr("pos", formatVector(r.groundPosition))
	ground.CreateAttr("euler", "0 0 0")
	ground.CreateAttr("size", "2 2 0.001")
	ground.CreateAttr("condim", "3")
	ground.CreateAttr("conaffinity", "15")
	ground.CreateAttr("material", "grid")
	r.AddCustomElementByTag("ground", "worldbody", ground)
}
