package robot

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/onshape-robotics/toolkit/assembly"
	"github.com/onshape-robotics/toolkit/graph"
	"github.com/onshape-robotics/toolkit/logging"
	"github.com/onshape-robotics/toolkit/onshape"
	"github.com/onshape-robotics/toolkit/parse"
	"github.com/onshape-robotics/toolkit/spatialmath"
)

// topologicalMates aligns the mate map with the directed edges: when only the
// reversed key exists, the record is adopted with its mated entities swapped
// so index 0 stays the child of the directed edge.
func topologicalMates(
	tree *graph.Tree,
	mates map[string]*assembly.MateFeatureData,
	logger logging.Logger,
) map[string]*assembly.MateFeatureData {
	aligned := make(map[string]*assembly.MateFeatureData, len(mates))
	for _, edge := range tree.Edges() {
		key := parse.MateKey(edge.Parent, edge.Child)
		if mate, ok := mates[key]; ok {
			aligned[key] = mate
			continue
		}
		rogueKey := parse.MateKey(edge.Child, edge.Parent)
		mate, ok := mates[rogueKey]
		if !ok {
			logger.Warnf("no mate found for edge %s -> %s", edge.Parent, edge.Child)
			continue
		}
		mate.MatedEntities[assembly.MateChild], mate.MatedEntities[assembly.MateParent] =
			mate.MatedEntities[assembly.MateParent], mate.MatedEntities[assembly.MateChild]
		aligned[key] = mate
	}
	return aligned
}

// uniqueName appends -1, -2, ... until the name is unused.
func uniqueName(name string, used func(string) bool) string {
	if !used(name) {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if !used(candidate) {
			return candidate
		}
	}
}

func (r *Robot) uniqueLinkName(name string) string {
	return uniqueName(name, func(candidate string) bool {
		_, ok := r.linkIndex[candidate]
		return ok
	})
}

func (r *Robot) uniqueJointName(name string) string {
	return uniqueName(name, func(candidate string) bool {
		_, ok := r.jointIndex[candidate]
		return ok
	})
}

// buildLink creates the link of one graph node together with its
// stl-to-link transform and mesh asset. For the root, mate is nil and the
// link frame sits at the part centroid; for a child, the frame is the child
// side's effective part-to-mate transform.
func buildLink(
	name string,
	part *assembly.Part,
	wid string,
	svc onshape.Service,
	mate *assembly.MateFeatureData,
	logger logging.Logger,
) (*Link, spatialmath.Transform, *onshape.Asset, error) {
	linkToSTL := spatialmath.NewTransform()
	if mate == nil {
		linkToSTL = linkToSTL.WithTranslation(part.MassProperty.CenterOfMass())
	} else {
		linkToSTL = mate.MatedEntities[assembly.MateChild].PartToMateTF()
	}
	stlToLink, err := linkToSTL.Inverse()
	if err != nil {
		return nil, spatialmath.Transform{}, nil, errors.Wrapf(err, "link %s", name)
	}

	if part.MassProperty == nil {
		logger.Warnf("link %s has no mass properties, emitting zero inertia", name)
	}
	mass := part.MassProperty.TotalMass()
	com := part.MassProperty.CenterOfMassWRT(stlToLink)
	inertia := part.MassProperty.InertiaWRT(stlToLink.Rotation())

	wtype := onshape.WorkspaceTypeWorkspace
	mvwid := wid
	switch {
	case part.DocumentVersion != "":
		wtype = onshape.WorkspaceTypeVersion
		mvwid = part.DocumentVersion
	case part.IsRigidAssembly:
		mvwid = part.RigidAssemblyWorkspaceID
	}
	asset := onshape.NewAsset(svc, part.DocumentID, wtype, mvwid, part.ElementID, part.PartID,
		name+".stl", stlToLink, part.IsRigidAssembly)

	meshPath := asset.RelativePath()
	link := &Link{
		Name: name,
		Visual: &VisualLink{
			Name:     name + "-visual",
			Origin:   ZeroOrigin(),
			Geometry: Geometry{MeshFileName: meshPath},
			Material: MaterialForLink(name),
		},
		Collision: &CollisionLink{
			Name:     name + "-collision",
			Origin:   ZeroOrigin(),
			Geometry: Geometry{MeshFileName: meshPath},
		},
		Inertial: &InertialLink{
			Origin:  Origin{XYZ: com},
			Mass:    mass,
			Inertia: InertiaFromTensor(inertia),
		},
	}
	return link, stlToLink, asset, nil
}

// buildJoint translates one mate into its joint variant. BALL mates expand
// into three revolute joints chained through two zero-inertia dummy links.
func (r *Robot) buildJoint(
	parent, child string,
	mate *assembly.MateFeatureData,
	stlToParentTF spatialmath.Transform,
	mimic *JointMimic,
) ([]*Joint, []*Link) {
	parentToMateTF := mate.MatedEntities[assembly.MateParent].PartToMateTF()
	origin := OriginFromTransform(stlToParentTF.Mul(parentToMateTF))
	name := r.uniqueJointName(assembly.SanitizeName(mate.Name))

	switch mate.MateType {
	case assembly.MateRevolute:
		return []*Joint{{
			Name:   name,
			Type:   JointRevolute,
			Parent: parent,
			Child:  child,
			Origin: origin,
			Axis:   &Axis{XYZ: r3.Vector{Z: -1}},
			Mimic:  mimic,
		}}, nil

	case assembly.MateFastened:
		return []*Joint{{
			Name:   name,
			Type:   JointFixed,
			Parent: parent,
			Child:  child,
			Origin: origin,
		}}, nil

	case assembly.MateSlider, assembly.MateCylindrical:
		return []*Joint{{
			Name:   name,
			Type:   JointPrismatic,
			Parent: parent,
			Child:  child,
			Origin: origin,
			Axis:   &Axis{XYZ: r3.Vector{Z: -1}},
			Mimic:  mimic,
		}}, nil

	case assembly.MateBall:
		dummyX := &Link{
			Name:     r.uniqueLinkName(parent + "-" + name + "-x"),
			Inertial: &InertialLink{Origin: ZeroOrigin()},
		}
		dummyY := &Link{
			Name:     r.uniqueLinkName(parent + "-" + name + "-y"),
			Inertial: &InertialLink{Origin: ZeroOrigin()},
		}
		joints := []*Joint{
			{
				Name:   r.uniqueJointName(name + "-x"),
				Type:   JointRevolute,
				Parent: parent,
				Child:  dummyX.Name,
				Origin: origin,
				Axis:   &Axis{XYZ: r3.Vector{X: 1}},
				Mimic:  mimic,
			},
			{
				Name:   r.uniqueJointName(name + "-y"),
				Type:   JointRevolute,
				Parent: dummyX.Name,
				Child:  dummyY.Name,
				Origin: ZeroOrigin(),
				Axis:   &Axis{XYZ: r3.Vector{Y: 1}},
				Mimic:  mimic,
			},
			{
				Name:   r.uniqueJointName(name + "-z"),
				Type:   JointRevolute,
				Parent: dummyY.Name,
				Child:  child,
				Origin: ZeroOrigin(),
				Axis:   &Axis{XYZ: r3.Vector{Z: -1}},
				Mimic:  mimic,
			},
		}
		return joints, []*Link{dummyX, dummyY}

	default:
		r.logger.Warnf("unsupported mate type %s on %q, emitting a placeholder joint", mate.MateType, mate.Name)
		return []*Joint{{
			Name:   name,
			Type:   JointDummy,
			Parent: parent,
			Child:  child,
			Origin: origin,
		}}, nil
	}
}

// mimicFor synthesizes the mimic of a joint when a relation drives its mate.
func mimicFor(
	mate *assembly.MateFeatureData,
	mates map[string]*assembly.MateFeatureData,
	relations map[string]*assembly.MateRelationFeatureData,
) *JointMimic {
	relation, ok := relations[mate.ID]
	if !ok || len(relation.Mates) <= assembly.RelationParent {
		return nil
	}
	multiplier := relation.RelationRatio
	if relation.RelationType == assembly.RelationRackAndPinion {
		multiplier = relation.RelationLength
	}
	driverID := relation.Mates[assembly.RelationParent].FeatureID
	for _, candidate := range mates {
		if candidate.ID == driverID {
			return &JointMimic{
				Joint:      assembly.SanitizeName(candidate.Name),
				Multiplier: multiplier,
				Offset:     0,
			}
		}
	}
	return nil
}

// FromGraph synthesizes the robot from an oriented kinematic tree.
func FromGraph(
	name string,
	tree *graph.Tree,
	mates map[string]*assembly.MateFeatureData,
	relations map[string]*assembly.MateRelationFeatureData,
	wid string,
	svc onshape.Service,
	format Format,
	logger logging.Logger,
) (*Robot, error) {
	r := New(name, format, logger)
	aligned := topologicalMates(tree, mates, logger)

	rootPart := tree.Part(tree.Root)
	if rootPart == nil {
		return nil, &graph.RootNotInGraphError{Root: tree.Root}
	}

	logger.Infof("processing root node %q", tree.Root)
	rootLink, stlToRoot, rootAsset, err := buildLink(tree.Root, rootPart, wid, svc, nil, logger)
	if err != nil {
		return nil, err
	}
	if err := r.AddLink(rootLink); err != nil {
		return nil, err
	}
	r.SetAsset(tree.Root, rootAsset)

	stlToLinkTFs := map[string]spatialmath.Transform{tree.Root: stlToRoot}

	for _, edge := range tree.Edges() {
		mate, ok := aligned[parse.MateKey(edge.Parent, edge.Child)]
		if !ok {
			continue
		}
		childPart := tree.Part(edge.Child)
		if childPart == nil {
			logger.Warnf("part %q not found, skipping edge %s -> %s", edge.Child, edge.Parent, edge.Child)
			continue
		}

		joints, dummyLinks := r.buildJoint(edge.Parent, edge.Child, mate,
			stlToLinkTFs[edge.Parent], mimicFor(mate, mates, relations))

		childLink, stlToChild, childAsset, err := buildLink(edge.Child, childPart, wid, svc, mate, logger)
		if err != nil {
			return nil, err
		}
		stlToLinkTFs[edge.Child] = stlToChild
		r.SetAsset(edge.Child, childAsset)

		if r.Link(edge.Child) == nil {
			if err := r.AddLink(childLink); err != nil {
				return nil, err
			}
		} else {
			logger.Warnf("link %q already exists, keeping the first synthesis", edge.Child)
		}
		for _, dummy := range dummyLinks {
			if err := r.AddLink(dummy); err != nil {
				return nil, err
			}
		}
		for _, joint := range joints {
			if err := r.AddJoint(joint); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// FromURL runs the whole compile: fetch the assembly snapshot, resolve
// instances, sub-assemblies, parts, mates and relations, build the kinematic
// graph, and synthesize the robot.
func FromURL(
	ctx context.Context,
	svc onshape.Service,
	name, rawURL string,
	maxDepth int,
	useUserDefinedRoot bool,
	format Format,
	logger logging.Logger,
) (*Robot, error) {
	document, err := onshape.ParseDocumentURL(rawURL)
	if err != nil {
		return nil, err
	}

	asm, err := svc.GetAssembly(ctx, document.DID, document.Wtype, document.WID, document.EID, "default", true)
	if err != nil {
		return nil, err
	}

	instances, occurrences, idToName, err := parse.Instances(ctx, asm, maxDepth, logger)
	if err != nil {
		return nil, err
	}
	subs, rigid, err := parse.SubAssemblies(ctx, asm, svc, instances, idToName, logger)
	if err != nil {
		return nil, err
	}
	parts, err := parse.Parts(ctx, asm, rigid, svc, instances, logger)
	if err != nil {
		return nil, err
	}
	mates, relations, err := parse.MatesAndRelations(asm, subs, rigid, idToName, parts, logger)
	if err != nil {
		return nil, err
	}

	tree, err := graph.New(occurrences, instances, parts, mates, useUserDefinedRoot, logger)
	if err != nil {
		return nil, err
	}
	return FromGraph(name, tree, mates, relations, document.WID, svc, format, logger)
}
