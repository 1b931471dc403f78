package graph

import (
	"errors"
	"fmt"
	"testing"

	"go.viam.com/test"

	"github.com/onshape-robotics/toolkit/assembly"
	"github.com/onshape-robotics/toolkit/logging"
	"github.com/onshape-robotics/toolkit/parse"
	"github.com/onshape-robotics/toolkit/spatialmath"
)

type fixture struct {
	occurrences map[string]*assembly.Occurrence
	instances   map[string]assembly.Instance
	parts       map[string]*assembly.Part
	mates       map[string]*assembly.MateFeatureData
}

func newFixture() *fixture {
	return &fixture{
		occurrences: map[string]*assembly.Occurrence{},
		instances:   map[string]assembly.Instance{},
		parts:       map[string]*assembly.Part{},
		mates:       map[string]*assembly.MateFeatureData{},
	}
}

func (f *fixture) addPart(key string) *fixture {
	f.occurrences[key] = &assembly.Occurrence{Transform: spatialmath.NewTransform(), Path: []string{key}}
	f.instances[key] = &assembly.PartInstance{ID: key, Name: key, PartID: key}
	f.parts[key] = &assembly.Part{PartID: key}
	return f
}

func (f *fixture) addMate(parent, child string) *fixture {
	f.mates[parse.MateKey(parent, child)] = &assembly.MateFeatureData{
		ID:       fmt.Sprintf("%s-%s", parent, child),
		MateType: assembly.MateRevolute,
	}
	return f
}

func (f *fixture) build(t *testing.T, useUserRoot bool) (*Tree, error) {
	t.Helper()
	return New(f.occurrences, f.instances, f.parts, f.mates, useUserRoot, logging.NewTestLogger(t))
}

func TestStarElectsCenterRoot(t *testing.T) {
	f := newFixture().addPart("hub").addPart("a").addPart("b").addPart("c")
	f.addMate("hub", "a").addMate("hub", "b").addMate("hub", "c")

	tree, err := f.build(t, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.Root, test.ShouldEqual, "hub")
	test.That(t, len(tree.Edges()), test.ShouldEqual, 3)
	for _, edge := range tree.Edges() {
		test.That(t, edge.Parent, test.ShouldEqual, "hub")
	}
}

func TestUserDefinedRoot(t *testing.T) {
	f := newFixture().addPart("hub").addPart("a").addPart("b")
	f.addMate("hub", "a").addMate("hub", "b")
	f.occurrences["b"].Fixed = true

	tree, err := f.build(t, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.Root, test.ShouldEqual, "b")

	// Without the flag, centrality wins.
	tree, err = f.build(t, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.Root, test.ShouldEqual, "hub")
}

func TestRigidRootCollapse(t *testing.T) {
	f := newFixture().addPart("base")
	// A rigid sub-assembly link plus a fixed occurrence deep inside it.
	f.parts["leg"] = &assembly.Part{IsRigidAssembly: true}
	f.occurrences["leg-SUB-p1"] = &assembly.Occurrence{
		Fixed:     true,
		Transform: spatialmath.NewTransform(),
		Path:      []string{"leg", "p1"},
	}
	f.addMate("base", "leg")

	tree, err := f.build(t, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.Root, test.ShouldEqual, "leg")
	test.That(t, tree.Part("leg").IsRigidAssembly, test.ShouldBeTrue)
}

func TestDisconnectedDrop(t *testing.T) {
	// Components of size 5 and 2; the smaller one is dropped (S6).
	f := newFixture()
	for _, key := range []string{"a", "b", "c", "d", "e", "x", "y"} {
		f.addPart(key)
	}
	f.addMate("a", "b").addMate("b", "c").addMate("c", "d").addMate("d", "e")
	f.addMate("x", "y")

	logger, logs := logging.NewObservedTestLogger(t)
	tree, err := New(f.occurrences, f.instances, f.parts, f.mates, false, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(tree.Nodes()), test.ShouldEqual, 5)
	test.That(t, tree.Part("x"), test.ShouldBeNil)
	test.That(t, tree.Part("y"), test.ShouldBeNil)
	test.That(t, logs.FilterMessageSnippet("unconnected").Len(), test.ShouldBeGreaterThan, 0)
}

func TestNoEdges(t *testing.T) {
	f := newFixture().addPart("a").addPart("b")
	_, err := f.build(t, false)
	var disconnected *DisconnectedAssemblyError
	test.That(t, errors.As(err, &disconnected), test.ShouldBeTrue)
}

func TestMateSideMissing(t *testing.T) {
	f := newFixture().addPart("a").addPart("b")
	f.addMate("a", "ghost")
	_, err := f.build(t, false)
	var missing *MateSideMissingError
	test.That(t, errors.As(err, &missing), test.ShouldBeTrue)
	test.That(t, missing.Side, test.ShouldEqual, "ghost")
}

func TestHiddenOccurrencesExcluded(t *testing.T) {
	f := newFixture().addPart("a").addPart("b").addPart("c")
	f.addMate("a", "b").addMate("b", "c")
	f.occurrences["c"].Hidden = true

	_, err := f.build(t, false)
	// The hidden part's mate now dangles.
	var missing *MateSideMissingError
	test.That(t, errors.As(err, &missing), test.ShouldBeTrue)
}

// TestDirectedness checks the orientation invariants on a cyclic graph: a
// spanning tree from the root, no 2-cycles, and exactly one directed edge per
// mate.
func TestDirectedness(t *testing.T) {
	f := newFixture()
	for _, key := range []string{"a", "b", "c", "d"} {
		f.addPart(key)
	}
	// A 4-cycle: a-b, b-c, c-d, d-a.
	f.addMate("a", "b").addMate("b", "c").addMate("c", "d").addMate("d", "a")

	tree, err := f.build(t, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(tree.Edges()), test.ShouldEqual, 4)

	seen := map[[2]string]bool{}
	for _, edge := range tree.Edges() {
		seen[[2]string{edge.Parent, edge.Child}] = true
	}
	for pair := range seen {
		test.That(t, seen[[2]string{pair[1], pair[0]}], test.ShouldBeFalse)
	}

	// Every node except the root is some edge's child exactly once in the
	// spanning prefix.
	children := map[string]int{}
	for _, edge := range tree.Edges()[:3] {
		children[edge.Child]++
	}
	test.That(t, len(children), test.ShouldEqual, 3)
	_, rootIsChild := children[tree.Root]
	test.That(t, rootIsChild, test.ShouldBeFalse)
}

func TestDeterministicEdges(t *testing.T) {
	build := func() []Edge {
		f := newFixture()
		for _, key := range []string{"m", "n", "o", "p"} {
			f.addPart(key)
		}
		f.addMate("m", "n").addMate("m", "o").addMate("o", "p").addMate("n", "p")
		tree, err := f.build(t, false)
		test.That(t, err, test.ShouldBeNil)
		return tree.Edges()
	}
	test.That(t, build(), test.ShouldResemble, build())
}
