package robot

import (
	"github.com/beevik/etree"
)

// JointType enumerates the joint kinds the emitters understand. The dummy
// type is the placeholder synthesized for unsupported mates.
type JointType string

// Joint types.
const (
	JointFixed      JointType = "fixed"
	JointRevolute   JointType = "revolute"
	JointContinuous JointType = "continuous"
	JointPrismatic  JointType = "prismatic"
	JointFloating   JointType = "floating"
	JointDummy      JointType = "dummy"
)

// mjcfJointTypes maps joint kinds onto MuJoCo joint types. Fixed and dummy
// joints never reach MJCF emission; they dissolve into their parent body.
var mjcfJointTypes = map[JointType]string{
	JointRevolute:   "hinge",
	JointContinuous: "hinge",
	JointPrismatic:  "slide",
	JointFloating:   "free",
}

// JointLimits bounds a joint's motion.
type JointLimits struct {
	Effort   float64
	Velocity float64
	Lower    float64
	Upper    float64
}

// JointDynamics carries damping and friction.
type JointDynamics struct {
	Damping  float64
	Friction float64
}

// JointMimic slaves a joint to a driver joint: q = Multiplier*q_driver + Offset.
type JointMimic struct {
	Joint      string
	Multiplier float64
	Offset     float64
}

// Joint is one kinematic edge of the robot, a tagged variant over Type.
type Joint struct {
	Name     string
	Type     JointType
	Parent   string
	Child    string
	Origin   Origin
	Axis     *Axis
	Limits   *JointLimits
	Dynamics *JointDynamics
	Mimic    *JointMimic
}

// Dissolves reports whether MJCF emission removes this joint by welding its
// child into the parent body.
func (j *Joint) Dissolves() bool {
	return j.Type == JointFixed || j.Type == JointDummy
}

// appendMJCF emits the joint inside its child body, positioned at the joint's
// origin. ToMJCF passes a copy with a zero origin because the child body
// carries the joint pose.
func (j *Joint) appendMJCF(body *etree.Element) {
	mjcfType, ok := mjcfJointTypes[j.Type]
	if !ok {
		return
	}
	joint := body.CreateElement("joint")
	joint.CreateAttr("name", j.Name)
	joint.CreateAttr("type", mjcfType)
	joint.CreateAttr("pos", formatVector(j.Origin.XYZ))
	if j.Axis != nil {
		joint.CreateAttr("axis", formatVector(j.Axis.XYZ))
	}
	if j.Limits != nil {
		joint.CreateAttr("range", formatFloat(j.Limits.Lower)+" "+formatFloat(j.Limits.Upper))
	}
	if j.Dynamics != nil {
		joint.CreateAttr("damping", formatFloat(j.Dynamics.Damping))
		joint.CreateAttr("frictionloss", formatFloat(j.Dynamics.Friction))
	}
}
