// Package assembly defines the typed model of an Onshape assembly snapshot:
// occurrences, instances, parts, sub-assemblies, mates and mate relations.
// Construction never performs I/O; the snapshot is immutable within one
// compile except for rigid marking during traversal and mate-entity rewriting
// during mate resolution.
package assembly

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/onshape-robotics/toolkit/spatialmath"
)

// Indices into MateFeatureData.MatedEntities. The ordering is semantic.
const (
	MateChild  = 0
	MateParent = 1
)

// Indices into MateRelationFeatureData.Mates.
const (
	RelationParent = 0
	RelationChild  = 1
)

// InstanceKind discriminates part instances from assembly instances.
type InstanceKind string

// The two instance kinds Onshape reports.
const (
	KindPart     InstanceKind = "Part"
	KindAssembly InstanceKind = "Assembly"
)

// MateType enumerates the mate features Onshape supports.
type MateType string

// Mate types.
const (
	MateFastened    MateType = "FASTENED"
	MateRevolute    MateType = "REVOLUTE"
	MateSlider      MateType = "SLIDER"
	MateCylindrical MateType = "CYLINDRICAL"
	MatePlanar      MateType = "PLANAR"
	MateBall        MateType = "BALL"
	MatePinSlot     MateType = "PIN_SLOT"
	MateParallel    MateType = "PARALLEL"
)

// RelationType enumerates mate relations.
type RelationType string

// Relation types.
const (
	RelationGear          RelationType = "GEAR"
	RelationLinear        RelationType = "LINEAR"
	RelationScrew         RelationType = "SCREW"
	RelationRackAndPinion RelationType = "RACK_AND_PINION"
)

// FeatureType enumerates assembly features.
type FeatureType string

// Feature types.
const (
	FeatureTypeMate          FeatureType = "mate"
	FeatureTypeMateRelation  FeatureType = "mateRelation"
	FeatureTypeMateGroup     FeatureType = "mateGroup"
	FeatureTypeMateConnector FeatureType = "mateConnector"
)

// DocumentRef identifies the document element a definition or instance came
// from.
type DocumentRef struct {
	DocumentID           string `json:"documentId"`
	ElementID            string `json:"elementId"`
	DocumentMicroversion string `json:"documentMicroversion"`
	FullConfiguration    string `json:"fullConfiguration"`
	Configuration        string `json:"configuration"`
}

// Validate checks the 24-character invariant on the document and element ids.
func (d *DocumentRef) Validate() error {
	if err := CheckID("documentId", d.DocumentID); err != nil {
		return err
	}
	return CheckID("elementId", d.ElementID)
}

// Occurrence is a leaf instance reached by a path of instance ids from the
// root assembly, carrying a world-relative transform.
type Occurrence struct {
	Fixed     bool
	Hidden    bool
	Transform spatialmath.Transform
	Path      []string
}

// UnmarshalJSON validates the 16-element transform invariant.
func (o *Occurrence) UnmarshalJSON(b []byte) error {
	var aux struct {
		Fixed     bool      `json:"fixed"`
		Hidden    bool      `json:"hidden"`
		Transform []float64 `json:"transform"`
		Path      []string  `json:"path"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.Transform) != 16 {
		return &BadTransformError{Len: len(aux.Transform)}
	}
	tf, err := spatialmath.NewTransformFromSlice(aux.Transform)
	if err != nil {
		return err
	}
	*o = Occurrence{Fixed: aux.Fixed, Hidden: aux.Hidden, Transform: tf, Path: aux.Path}
	return nil
}

// Instance is either a part instance or an assembly instance.
type Instance interface {
	InstanceID() string
	InstanceName() string
	IsSuppressed() bool
	UID() string
	Kind() InstanceKind
}

// PartInstance is a placement of a part definition inside an assembly.
type PartInstance struct {
	DocumentRef
	ID                string `json:"id"`
	Name              string `json:"name"`
	Suppressed        bool   `json:"suppressed"`
	PartID            string `json:"partId"`
	IsStandardContent bool   `json:"isStandardContent"`
}

// InstanceID returns the instance id.
func (p *PartInstance) InstanceID() string { return p.ID }

// InstanceName returns the display name.
func (p *PartInstance) InstanceName() string { return p.Name }

// IsSuppressed reports whether the instance is suppressed.
func (p *PartInstance) IsSuppressed() bool { return p.Suppressed }

// Kind returns KindPart.
func (p *PartInstance) Kind() InstanceKind { return KindPart }

// UID returns the join key to the instance's Part definition.
func (p *PartInstance) UID() string {
	return GenerateUID(p.DocumentID, p.DocumentMicroversion, p.ElementID, p.PartID, p.FullConfiguration)
}

// AssemblyInstance is a placement of a sub-assembly inside an assembly.
// IsRigid is set during traversal when the instance sits at or beyond the
// depth limit.
type AssemblyInstance struct {
	DocumentRef
	ID         string `json:"id"`
	Name       string `json:"name"`
	Suppressed bool   `json:"suppressed"`
	IsRigid    bool   `json:"-"`
}

// InstanceID returns the instance id.
func (a *AssemblyInstance) InstanceID() string { return a.ID }

// InstanceName returns the display name.
func (a *AssemblyInstance) InstanceName() string { return a.Name }

// IsSuppressed reports whether the instance is suppressed.
func (a *AssemblyInstance) IsSuppressed() bool { return a.Suppressed }

// Kind returns KindAssembly.
func (a *AssemblyInstance) Kind() InstanceKind { return KindAssembly }

// UID returns the join key to the instance's SubAssembly definition.
func (a *AssemblyInstance) UID() string {
	return GenerateUID(a.DocumentID, a.DocumentMicroversion, a.ElementID, a.FullConfiguration)
}

// Instances decodes the polymorphic instance array of an assembly scope.
type Instances []Instance

// UnmarshalJSON dispatches each element on its "type" discriminator.
func (il *Instances) UnmarshalJSON(b []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return err
	}
	out := make(Instances, 0, len(raws))
	for _, raw := range raws {
		var probe struct {
			Type InstanceKind `json:"type"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return err
		}
		switch probe.Type {
		case KindPart:
			var pi PartInstance
			if err := json.Unmarshal(raw, &pi); err != nil {
				return err
			}
			out = append(out, &pi)
		case KindAssembly:
			var ai AssemblyInstance
			if err := json.Unmarshal(raw, &ai); err != nil {
				return err
			}
			out = append(out, &ai)
		default:
			return errors.Errorf("unknown instance type %q", probe.Type)
		}
	}
	*il = out
	return nil
}

// MatedEntity is one side of a mate: an occurrence path and its local mate
// frame. ParentCS is set during mate resolution when the entity sits inside a
// rigid sub-assembly; it carries the intra-rigid transform.
type MatedEntity struct {
	MatedOccurrence []string `json:"matedOccurrence"`
	MatedCS         *MatedCS `json:"matedCS"`
	ParentCS        *MatedCS `json:"-"`
}

// PartToMateTF returns the effective part-to-mate transform of the entity,
// composing the intra-rigid transform when the entity was rewritten.
func (e *MatedEntity) PartToMateTF() spatialmath.Transform {
	if e.ParentCS != nil {
		return e.ParentCS.PartToMateTF().Mul(e.MatedCS.PartToMateTF())
	}
	return e.MatedCS.PartToMateTF()
}

// MateFeatureData is the payload of a mate feature. MatedEntities[MateChild]
// is the child side, MatedEntities[MateParent] the parent side.
type MateFeatureData struct {
	ID            string         `json:"-"`
	Name          string         `json:"name"`
	MateType      MateType       `json:"mateType"`
	MatedEntities []*MatedEntity `json:"matedEntities"`
}

// MateRelationMate references one mate participating in a relation.
type MateRelationMate struct {
	FeatureID string `json:"featureId"`
}

// MateRelationFeatureData is the payload of a mate-relation feature.
type MateRelationFeatureData struct {
	ID               string             `json:"-"`
	Name             string             `json:"name"`
	RelationType     RelationType       `json:"relationType"`
	Mates            []MateRelationMate `json:"mates"`
	ReverseDirection bool               `json:"reverseDirection"`
	RelationRatio    float64            `json:"relationRatio"`
	RelationLength   float64            `json:"relationLength"`
}

// DrivingMateID returns the feature id of the mate a relation drives: for
// SCREW relations both references point at the same feature and index 0 is
// used, otherwise the child reference.
func (r *MateRelationFeatureData) DrivingMateID() string {
	if len(r.Mates) == 0 {
		return ""
	}
	if r.RelationType == RelationScrew {
		return r.Mates[0].FeatureID
	}
	if len(r.Mates) <= RelationChild {
		return ""
	}
	return r.Mates[RelationChild].FeatureID
}

// Feature is an assembly feature. Exactly one of Mate and Relation is set for
// mate and mate-relation features; group and connector features carry neither.
type Feature struct {
	ID          string
	Suppressed  bool
	FeatureType FeatureType
	Mate        *MateFeatureData
	Relation    *MateRelationFeatureData
}

// UnmarshalJSON decodes featureData according to the feature type and copies
// the feature id onto the payload.
func (f *Feature) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID          string          `json:"id"`
		Suppressed  bool            `json:"suppressed"`
		FeatureType FeatureType     `json:"featureType"`
		FeatureData json.RawMessage `json:"featureData"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*f = Feature{ID: aux.ID, Suppressed: aux.Suppressed, FeatureType: aux.FeatureType}
	switch aux.FeatureType {
	case FeatureTypeMate:
		var mate MateFeatureData
		if err := json.Unmarshal(aux.FeatureData, &mate); err != nil {
			return err
		}
		mate.ID = aux.ID
		f.Mate = &mate
	case FeatureTypeMateRelation:
		var rel MateRelationFeatureData
		if err := json.Unmarshal(aux.FeatureData, &rel); err != nil {
			return err
		}
		rel.ID = aux.ID
		f.Relation = &rel
	}
	return nil
}

// Part is the definition of a solid, joined to instances by UID.
type Part struct {
	DocumentRef
	PartID            string `json:"partId"`
	BodyType          string `json:"bodyType"`
	IsStandardContent bool   `json:"isStandardContent"`
	DocumentVersion   string `json:"documentVersion"`

	MassProperty *MassProperties `json:"-"`

	// Rigid sub-assemblies are represented as synthesized parts carrying the
	// aggregate mass. RigidAssemblyToPartTF caches the transform from the
	// rigid assembly frame to each internal part frame, keyed by the internal
	// occurrence name; it is populated during mate resolution.
	IsRigidAssembly          bool                             `json:"-"`
	RigidAssemblyWorkspaceID string                           `json:"-"`
	RigidAssemblyToPartTF    map[string]spatialmath.Transform `json:"-"`
}

// UID returns the join key instances use to find this part.
func (p *Part) UID() string {
	return GenerateUID(p.DocumentID, p.DocumentMicroversion, p.ElementID, p.PartID, p.FullConfiguration)
}

// SubAssembly is the definition of a nested assembly scope. Sub-assembly
// scopes own instances and features but no occurrences.
type SubAssembly struct {
	DocumentRef
	Instances Instances  `json:"instances"`
	Features  []*Feature `json:"features"`
}

// UID returns the join key assembly instances use to find this definition.
func (s *SubAssembly) UID() string {
	return GenerateUID(s.DocumentID, s.DocumentMicroversion, s.ElementID, s.FullConfiguration)
}

// DocumentMetaData carries the slice of document metadata the compiler needs.
type DocumentMetaData struct {
	Name             string `json:"name"`
	DefaultWorkspace struct {
		ID string `json:"id"`
	} `json:"defaultWorkspace"`
}

// RootAssembly is the top-level assembly scope. It owns every leaf occurrence.
// Flattened rigid sub-assembly expansions are also RootAssembly values, with
// aggregate mass properties attached.
type RootAssembly struct {
	SubAssembly
	Occurrences      []*Occurrence     `json:"occurrences"`
	MassProperty     *MassProperties   `json:"-"`
	DocumentMetaData *DocumentMetaData `json:"-"`
}

// Assembly is one immutable snapshot of a CAD assembly. The document
// coordinates are attached by the client after the fetch.
type Assembly struct {
	RootAssembly  *RootAssembly  `json:"rootAssembly"`
	SubAssemblies []*SubAssembly `json:"subAssemblies"`
	Parts         []*Part        `json:"parts"`

	DocumentID    string `json:"-"`
	WorkspaceType string `json:"-"`
	WorkspaceID   string `json:"-"`
	ElementID     string `json:"-"`
	Name          string `json:"-"`
}
