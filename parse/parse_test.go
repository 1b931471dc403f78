package parse

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"

	"go.viam.com/test"

	"github.com/onshape-robotics/toolkit/assembly"
	"github.com/onshape-robotics/toolkit/logging"
	"github.com/onshape-robotics/toolkit/onshape"
	"github.com/onshape-robotics/toolkit/spatialmath"
)

func pad24(seed string) string {
	return (seed + strings.Repeat("0", 24))[:24]
}

func docRef(name string) assembly.DocumentRef {
	return assembly.DocumentRef{
		DocumentID:           pad24("d" + name),
		ElementID:            pad24("e" + name),
		DocumentMicroversion: pad24("m" + name),
		FullConfiguration:    "default",
	}
}

func partInstance(id, name, partID string, ref assembly.DocumentRef) *assembly.PartInstance {
	return &assembly.PartInstance{DocumentRef: ref, ID: id, Name: name, PartID: partID}
}

func asmInstance(id, name string, ref assembly.DocumentRef) *assembly.AssemblyInstance {
	return &assembly.AssemblyInstance{DocumentRef: ref, ID: id, Name: name}
}

func occurrence(path ...string) *assembly.Occurrence {
	return &assembly.Occurrence{Transform: spatialmath.NewTransform(), Path: path}
}

func identityCS() *assembly.MatedCS {
	return assembly.MatedCSFromTransform(spatialmath.NewTransform())
}

func mateFeature(id, name string, mateType assembly.MateType, childPath, parentPath []string) *assembly.Feature {
	return &assembly.Feature{
		ID:          id,
		FeatureType: assembly.FeatureTypeMate,
		Mate: &assembly.MateFeatureData{
			ID:       id,
			Name:     name,
			MateType: mateType,
			MatedEntities: []*assembly.MatedEntity{
				{MatedOccurrence: childPath, MatedCS: identityCS()},
				{MatedOccurrence: parentPath, MatedCS: identityCS()},
			},
		},
	}
}

// twoLevelAssembly builds a root with two parts and one sub-assembly "leg"
// that contains two fastened parts of its own.
func twoLevelAssembly() *assembly.Assembly {
	rootRef := docRef("root")
	legRef := docRef("leg")
	partRef := docRef("parts")

	leg := &assembly.SubAssembly{
		DocumentRef: legRef,
		Instances: assembly.Instances{
			partInstance("idp1", "p1", "P1", partRef),
			partInstance("idp2", "p2", "P2", partRef),
		},
		Features: []*assembly.Feature{
			mateFeature("legmate", "fasten p2", assembly.MateFastened, []string{"idp2"}, []string{"idp1"}),
		},
	}

	root := &assembly.RootAssembly{
		SubAssembly: assembly.SubAssembly{
			DocumentRef: rootRef,
			Instances: assembly.Instances{
				partInstance("idbase", "base", "B1", partRef),
				partInstance("idwheel", "wheel <1>", "W1", partRef),
				asmInstance("idleg", "leg 1", legRef),
			},
			Features: []*assembly.Feature{
				mateFeature("m1", "wheel mate", assembly.MateRevolute, []string{"idwheel"}, []string{"idbase"}),
			},
		},
		Occurrences: []*assembly.Occurrence{
			occurrence("idbase"),
			occurrence("idwheel"),
			occurrence("idleg", "idp1"),
			occurrence("idleg", "idp2"),
		},
	}

	return &assembly.Assembly{
		RootAssembly:  root,
		SubAssemblies: []*assembly.SubAssembly{leg},
		Parts: []*assembly.Part{
			{DocumentRef: partRef, PartID: "B1"},
			{DocumentRef: partRef, PartID: "W1"},
			{DocumentRef: partRef, PartID: "P1"},
			{DocumentRef: partRef, PartID: "P2"},
		},
	}
}

type fakeService struct {
	onshape.Service

	mu        sync.Mutex
	rigidRoot *assembly.RootAssembly
	massProps map[string]*assembly.MassProperties
	massErr   error
	massCalls []string
}

func (f *fakeService) GetRootAssembly(
	ctx context.Context, did string, wtype onshape.WorkspaceType, wid, eid string, withMass bool,
) (*assembly.RootAssembly, error) {
	return f.rigidRoot, nil
}

func (f *fakeService) GetMassProperty(
	ctx context.Context, did string, wtype onshape.WorkspaceType, wid, eid, partID string,
) (*assembly.MassProperties, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.massCalls = append(f.massCalls, partID)
	if f.massErr != nil {
		return nil, f.massErr
	}
	return f.massProps[partID], nil
}

func TestInstancesFullDepth(t *testing.T) {
	logger := logging.NewTestLogger(t)
	asm := twoLevelAssembly()

	instances, occurrences, names, err := Instances(context.Background(), asm, 1, logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, len(instances), test.ShouldEqual, 5)
	test.That(t, instances["base"], test.ShouldNotBeNil)
	test.That(t, instances["wheel-1"], test.ShouldNotBeNil)
	test.That(t, instances["leg-1"], test.ShouldNotBeNil)
	test.That(t, instances["leg-1-SUB-p1"], test.ShouldNotBeNil)
	test.That(t, instances["leg-1-SUB-p2"], test.ShouldNotBeNil)

	test.That(t, names["idwheel"], test.ShouldEqual, "wheel-1")

	test.That(t, len(occurrences), test.ShouldEqual, 4)
	test.That(t, occurrences["leg-1-SUB-p1"], test.ShouldNotBeNil)

	// The leg was fully traversed, so it is not rigid.
	leg := instances["leg-1"].(*assembly.AssemblyInstance)
	test.That(t, leg.IsRigid, test.ShouldBeFalse)
}

func TestInstancesDepthZero(t *testing.T) {
	logger := logging.NewTestLogger(t)
	asm := twoLevelAssembly()

	instances, occurrences, _, err := Instances(context.Background(), asm, 0, logger)
	test.That(t, err, test.ShouldBeNil)

	// Only root-level instances survive, and the sub-assembly is rigid.
	test.That(t, len(instances), test.ShouldEqual, 3)
	leg := instances["leg-1"].(*assembly.AssemblyInstance)
	test.That(t, leg.IsRigid, test.ShouldBeTrue)

	// Occurrences deeper than the traversal are dropped.
	test.That(t, len(occurrences), test.ShouldEqual, 2)
	test.That(t, occurrences["base"], test.ShouldNotBeNil)
	test.That(t, occurrences["wheel-1"], test.ShouldNotBeNil)
}

func TestInstancesKeyDeterminism(t *testing.T) {
	logger := logging.NewTestLogger(t)

	collect := func() []string {
		instances, occurrences, _, err := Instances(context.Background(), twoLevelAssembly(), 1, logger)
		test.That(t, err, test.ShouldBeNil)
		keys := make([]string, 0, len(instances)+len(occurrences))
		for k := range instances {
			keys = append(keys, "i:"+k)
		}
		for k := range occurrences {
			keys = append(keys, "o:"+k)
		}
		sort.Strings(keys)
		return keys
	}
	test.That(t, collect(), test.ShouldResemble, collect())
}

func TestSubAssembliesArticulated(t *testing.T) {
	logger := logging.NewTestLogger(t)
	asm := twoLevelAssembly()
	svc := &fakeService{}

	instances, _, names, err := Instances(context.Background(), asm, 1, logger)
	test.That(t, err, test.ShouldBeNil)

	subs, rigid, err := SubAssemblies(context.Background(), asm, svc, instances, names, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(rigid), test.ShouldEqual, 0)
	test.That(t, len(subs), test.ShouldEqual, 1)
	test.That(t, subs["leg-1"], test.ShouldEqual, asm.SubAssemblies[0])
}

func TestSubAssembliesRigid(t *testing.T) {
	logger := logging.NewTestLogger(t)
	asm := twoLevelAssembly()

	expansion := &assembly.RootAssembly{
		SubAssembly: assembly.SubAssembly{
			DocumentRef: asm.SubAssemblies[0].DocumentRef,
			Instances:   asm.SubAssemblies[0].Instances,
		},
		Occurrences: []*assembly.Occurrence{
			occurrence("idp1"),
			occurrence("idp2"),
		},
		MassProperty: &assembly.MassProperties{Mass: []float64{3, 3, 3}},
	}
	svc := &fakeService{rigidRoot: expansion}

	instances, _, names, err := Instances(context.Background(), asm, 0, logger)
	test.That(t, err, test.ShouldBeNil)

	subs, rigid, err := SubAssemblies(context.Background(), asm, svc, instances, names, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(subs), test.ShouldEqual, 0)
	test.That(t, rigid["leg-1"], test.ShouldEqual, expansion)

	// The expansion's instance names became translatable.
	test.That(t, names["idp1"], test.ShouldEqual, "p1")
	test.That(t, names["idp2"], test.ShouldEqual, "p2")
}

func TestPartsFetchesMass(t *testing.T) {
	logger := logging.NewTestLogger(t)
	asm := twoLevelAssembly()
	svc := &fakeService{massProps: map[string]*assembly.MassProperties{
		"B1": {Mass: []float64{1, 1, 1}},
		"W1": {Mass: []float64{2, 2, 2}},
		"P1": {Mass: []float64{0.5, 0.5, 0.5}},
		"P2": {Mass: []float64{0.5, 0.5, 0.5}},
	}}

	instances, _, names, err := Instances(context.Background(), asm, 1, logger)
	test.That(t, err, test.ShouldBeNil)
	_, rigid, err := SubAssemblies(context.Background(), asm, svc, instances, names, logger)
	test.That(t, err, test.ShouldBeNil)

	parts, err := Parts(context.Background(), asm, rigid, svc, instances, logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, parts["base"].MassProperty.TotalMass(), test.ShouldEqual, 1.0)
	test.That(t, parts["wheel-1"].MassProperty.TotalMass(), test.ShouldEqual, 2.0)
	test.That(t, parts["leg-1-SUB-p1"], test.ShouldNotBeNil)
	test.That(t, len(svc.massCalls), test.ShouldEqual, 4)
}

func TestPartsRigidStubAndSkippedFetch(t *testing.T) {
	logger := logging.NewTestLogger(t)
	asm := twoLevelAssembly()

	expansion := &assembly.RootAssembly{
		SubAssembly: assembly.SubAssembly{
			DocumentRef: asm.SubAssemblies[0].DocumentRef,
			Instances:   asm.SubAssemblies[0].Instances,
		},
		MassProperty: &assembly.MassProperties{Mass: []float64{3, 3, 3}},
	}
	svc := &fakeService{rigidRoot: expansion, massProps: map[string]*assembly.MassProperties{
		"B1": {Mass: []float64{1, 1, 1}},
		"W1": {Mass: []float64{2, 2, 2}},
	}}

	instances, _, names, err := Instances(context.Background(), asm, 0, logger)
	test.That(t, err, test.ShouldBeNil)
	_, rigid, err := SubAssemblies(context.Background(), asm, svc, instances, names, logger)
	test.That(t, err, test.ShouldBeNil)

	parts, err := Parts(context.Background(), asm, rigid, svc, instances, logger)
	test.That(t, err, test.ShouldBeNil)

	stub := parts["leg-1"]
	test.That(t, stub, test.ShouldNotBeNil)
	test.That(t, stub.IsRigidAssembly, test.ShouldBeTrue)
	test.That(t, stub.MassProperty.TotalMass(), test.ShouldEqual, 3.0)
	test.That(t, stub.RigidAssemblyToPartTF, test.ShouldNotBeNil)

	// Only the two root-level parts were fetched.
	test.That(t, len(svc.massCalls), test.ShouldEqual, 2)
}

func TestPartsToleratesMassFailure(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	asm := twoLevelAssembly()
	svc := &fakeService{massErr: onshape.ErrNotFound}

	instances, _, names, err := Instances(context.Background(), asm, 1, logger)
	test.That(t, err, test.ShouldBeNil)
	_, rigid, err := SubAssemblies(context.Background(), asm, svc, instances, names, logger)
	test.That(t, err, test.ShouldBeNil)

	parts, err := Parts(context.Background(), asm, rigid, svc, instances, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parts["base"].MassProperty, test.ShouldBeNil)
	test.That(t, logs.FilterMessageSnippet("failed to fetch mass properties").Len(), test.ShouldBeGreaterThan, 0)
}

func TestMatesAndRelations(t *testing.T) {
	logger := logging.NewTestLogger(t)
	asm := twoLevelAssembly()
	svc := &fakeService{}

	instances, _, names, err := Instances(context.Background(), asm, 1, logger)
	test.That(t, err, test.ShouldBeNil)
	subs, rigid, err := SubAssemblies(context.Background(), asm, svc, instances, names, logger)
	test.That(t, err, test.ShouldBeNil)
	parts, err := Parts(context.Background(), asm, rigid, svc, instances, logger)
	test.That(t, err, test.ShouldBeNil)

	mates, relations, err := MatesAndRelations(asm, subs, rigid, names, parts, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(relations), test.ShouldEqual, 0)

	// Root scope mate plus the prefixed sub-assembly scope mate.
	test.That(t, mates["base_to_wheel-1"], test.ShouldNotBeNil)
	test.That(t, mates["leg-1-SUB-p1_to_leg-1-SUB-p2"], test.ShouldNotBeNil)
}

func TestMatesRigidCollapse(t *testing.T) {
	logger := logging.NewTestLogger(t)
	asm := twoLevelAssembly()

	intraRigid, err := spatialmath.NewTransformFromSlice([]float64{
		0, -1, 0, 0.1,
		1, 0, 0, 0.2,
		0, 0, 1, 0.3,
		0, 0, 0, 1,
	})
	test.That(t, err, test.ShouldBeNil)

	expansion := &assembly.RootAssembly{
		SubAssembly: assembly.SubAssembly{
			DocumentRef: asm.SubAssemblies[0].DocumentRef,
			Instances:   asm.SubAssemblies[0].Instances,
		},
		Occurrences: []*assembly.Occurrence{
			{Transform: intraRigid, Path: []string{"idp1"}},
			occurrence("idp2"),
		},
		MassProperty: &assembly.MassProperties{Mass: []float64{3, 3, 3}},
	}
	svc := &fakeService{rigidRoot: expansion}

	// A root-scope mate reaching inside the rigid sub-assembly.
	asm.RootAssembly.Features = append(asm.RootAssembly.Features,
		mateFeature("m2", "leg joint", assembly.MateRevolute, []string{"idleg", "idp1"}, []string{"idbase"}))

	instances, _, names, err := Instances(context.Background(), asm, 0, logger)
	test.That(t, err, test.ShouldBeNil)
	subs, rigid, err := SubAssemblies(context.Background(), asm, svc, instances, names, logger)
	test.That(t, err, test.ShouldBeNil)
	parts, err := Parts(context.Background(), asm, rigid, svc, instances, logger)
	test.That(t, err, test.ShouldBeNil)

	mates, _, err := MatesAndRelations(asm, subs, rigid, names, parts, logger)
	test.That(t, err, test.ShouldBeNil)

	// The child occurrence collapsed to the rigid key.
	mate := mates["base_to_leg-1"]
	test.That(t, mate, test.ShouldNotBeNil)

	child := mate.MatedEntities[assembly.MateChild]
	test.That(t, child.ParentCS, test.ShouldNotBeNil)
	test.That(t, *child.ParentCS.PartTF, test.ShouldResemble, intraRigid)

	// The intra-rigid transform is cached on the rigid part stub.
	test.That(t, parts["leg-1"].RigidAssemblyToPartTF["p1"], test.ShouldResemble, intraRigid)

	// Rigid collapse equivalence: effective transform composes parentCS with
	// the mated CS.
	expected := intraRigid.Mul(child.MatedCS.PartToMateTF())
	test.That(t, child.PartToMateTF().ApproxEqual(expected, 1e-12), test.ShouldBeTrue)
}

func TestRelationChildSelection(t *testing.T) {
	logger := logging.NewTestLogger(t)
	asm := twoLevelAssembly()
	asm.RootAssembly.Features = append(asm.RootAssembly.Features,
		&assembly.Feature{
			ID:          "gear",
			FeatureType: assembly.FeatureTypeMateRelation,
			Relation: &assembly.MateRelationFeatureData{
				ID:           "gear",
				RelationType: assembly.RelationGear,
				Mates: []assembly.MateRelationMate{
					{FeatureID: "driver"}, {FeatureID: "driven"},
				},
				RelationRatio: 2,
			},
		},
		&assembly.Feature{
			ID:          "screw",
			FeatureType: assembly.FeatureTypeMateRelation,
			Relation: &assembly.MateRelationFeatureData{
				ID:           "screw",
				RelationType: assembly.RelationScrew,
				Mates:        []assembly.MateRelationMate{{FeatureID: "self"}},
			},
		},
	)

	instances, _, names, err := Instances(context.Background(), asm, 1, logger)
	test.That(t, err, test.ShouldBeNil)
	svc := &fakeService{}
	subs, rigid, err := SubAssemblies(context.Background(), asm, svc, instances, names, logger)
	test.That(t, err, test.ShouldBeNil)
	parts, err := Parts(context.Background(), asm, rigid, svc, instances, logger)
	test.That(t, err, test.ShouldBeNil)

	_, relations, err := MatesAndRelations(asm, subs, rigid, names, parts, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, relations["driven"], test.ShouldNotBeNil)
	test.That(t, relations["self"], test.ShouldNotBeNil)
	test.That(t, relations["driver"], test.ShouldBeNil)
}

func TestSuppressedFeaturesSkipped(t *testing.T) {
	logger := logging.NewTestLogger(t)
	asm := twoLevelAssembly()
	asm.RootAssembly.Features[0].Suppressed = true

	instances, _, names, err := Instances(context.Background(), asm, 1, logger)
	test.That(t, err, test.ShouldBeNil)
	svc := &fakeService{}
	subs, rigid, err := SubAssemblies(context.Background(), asm, svc, instances, names, logger)
	test.That(t, err, test.ShouldBeNil)
	parts, err := Parts(context.Background(), asm, rigid, svc, instances, logger)
	test.That(t, err, test.ShouldBeNil)

	mates, _, err := MatesAndRelations(asm, subs, rigid, names, parts, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mates["base_to_wheel-1"], test.ShouldBeNil)
	test.That(t, mates["leg-1-SUB-p1_to_leg-1-SUB-p2"], test.ShouldNotBeNil)
}
