// Package graph builds the kinematic graph of an assembly: an undirected mate
// graph over visible part occurrences, reduced to its largest connected
// component and oriented into a directed tree away from an elected root.
package graph

import (
	"sort"

	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/onshape-robotics/toolkit/assembly"
	"github.com/onshape-robotics/toolkit/logging"
	"github.com/onshape-robotics/toolkit/parse"
)

// Edge is one directed kinematic edge, parent to child.
type Edge struct {
	Parent string
	Child  string
}

// Tree is the directed kinematic graph. Edges are ordered parents-first: BFS
// tree edges in discovery order, then the remaining oriented mate edges.
type Tree struct {
	Root  string
	nodes map[string]*assembly.Part
	edges []Edge
}

// Part returns the part record stored at a node.
func (t *Tree) Part(key string) *assembly.Part {
	return t.nodes[key]
}

// Nodes returns all node keys in sorted order.
func (t *Tree) Nodes() []string {
	keys := make([]string, 0, len(t.nodes))
	for key := range t.nodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Edges returns the directed edges, parents before children.
func (t *Tree) Edges() []Edge {
	return t.edges
}

type builder struct {
	keys   []string
	ids    map[string]int64
	g      *simple.UndirectedGraph
	logger logging.Logger
}

func (b *builder) key(id int64) string { return b.keys[id] }

// New builds the kinematic tree from the resolved maps. When
// useUserDefinedRoot is set and an occurrence is fixed, that occurrence is
// elected root; otherwise the node with maximum closeness centrality wins.
func New(
	occurrences map[string]*assembly.Occurrence,
	instances map[string]assembly.Instance,
	parts map[string]*assembly.Part,
	mates map[string]*assembly.MateFeatureData,
	useUserDefinedRoot bool,
	logger logging.Logger,
) (*Tree, error) {
	nodeKeys, userRoot := electNodes(occurrences, instances, parts, useUserDefinedRoot, logger)
	if len(nodeKeys) == 0 {
		return nil, &DisconnectedAssemblyError{}
	}

	b := &builder{
		ids:    make(map[string]int64, len(nodeKeys)),
		keys:   nodeKeys,
		g:      simple.NewUndirectedGraph(),
		logger: logger,
	}
	for i, key := range nodeKeys {
		b.ids[key] = int64(i)
		b.g.AddNode(simple.Node(int64(i)))
	}

	mateEdges, err := b.addMateEdges(mates)
	if err != nil {
		return nil, err
	}
	if len(mateEdges) == 0 && len(nodeKeys) > 1 {
		return nil, &DisconnectedAssemblyError{}
	}

	kept := b.reduceToLargestComponent()

	if userRoot != "" {
		// A fixed occurrence inside a rigid sub-assembly elects the rigid
		// link itself.
		head := parse.PathHead(userRoot)
		if part, ok := parts[head]; ok && part.IsRigidAssembly {
			userRoot = head
		}
	}

	return b.orient(kept, userRoot, parts, mateEdges)
}

// electNodes picks the graph nodes (non-hidden part occurrences plus rigid
// sub-assembly links) and the user-defined root, if any.
func electNodes(
	occurrences map[string]*assembly.Occurrence,
	instances map[string]assembly.Instance,
	parts map[string]*assembly.Part,
	useUserDefinedRoot bool,
	logger logging.Logger,
) ([]string, string) {
	keys := make([]string, 0, len(occurrences))
	for key := range occurrences {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var nodes []string
	var userRoot string
	seen := map[string]bool{}
	for _, key := range keys {
		occurrence := occurrences[key]
		if useUserDefinedRoot && userRoot == "" && occurrence.Fixed {
			userRoot = key
		}
		instance, ok := instances[key]
		if !ok || instance.Kind() != assembly.KindPart {
			continue
		}
		if occurrence.Hidden {
			continue
		}
		if _, ok := parts[key]; !ok {
			logger.Warnf("part %q not found, dropping from graph", key)
			continue
		}
		nodes = append(nodes, key)
		seen[key] = true
	}

	// Rigid sub-assemblies have no leaf occurrence of their own; they enter
	// the graph as synthesized part nodes.
	rigidKeys := make([]string, 0, len(parts))
	for key, part := range parts {
		if part.IsRigidAssembly && !seen[key] {
			rigidKeys = append(rigidKeys, key)
		}
	}
	sort.Strings(rigidKeys)
	return append(nodes, rigidKeys...), userRoot
}

// addMateEdges inserts one undirected edge per mate and returns the edge
// pairs in deterministic order.
func (b *builder) addMateEdges(mates map[string]*assembly.MateFeatureData) ([][2]string, error) {
	mateKeys := make([]string, 0, len(mates))
	for key := range mates {
		mateKeys = append(mateKeys, key)
	}
	sort.Strings(mateKeys)

	var edges [][2]string
	for _, mateKey := range mateKeys {
		parentKey, childKey, ok := parse.SplitMateKey(mateKey)
		if !ok {
			return nil, &MateSideMissingError{MateKey: mateKey, Side: mateKey}
		}
		parentID, parentOK := b.ids[parentKey]
		if !parentOK {
			return nil, &MateSideMissingError{MateKey: mateKey, Side: parentKey}
		}
		childID, childOK := b.ids[childKey]
		if !childOK {
			return nil, &MateSideMissingError{MateKey: mateKey, Side: childKey}
		}
		if parentID == childID {
			b.logger.Warnf("mate %q joins an occurrence to itself, skipping", mateKey)
			continue
		}
		if b.g.HasEdgeBetween(parentID, childID) {
			continue
		}
		b.g.SetEdge(b.g.NewEdge(simple.Node(parentID), simple.Node(childID)))
		edges = append(edges, [2]string{parentKey, childKey})
	}
	return edges, nil
}

// reduceToLargestComponent drops every connected component except the
// largest, returning the surviving node ids.
func (b *builder) reduceToLargestComponent() map[int64]bool {
	components := topo.ConnectedComponents(b.g)
	largest := components[0]
	for _, component := range components[1:] {
		if len(component) > len(largest) ||
			(len(component) == len(largest) && minKey(b, component) < minKey(b, largest)) {
			largest = component
		}
	}
	kept := make(map[int64]bool, len(largest))
	for _, node := range largest {
		kept[node.ID()] = true
	}
	if len(components) > 1 {
		dropped := 0
		for _, component := range components {
			if !kept[component[0].ID()] {
				dropped += len(component)
			}
		}
		b.logger.Warnf("assembly graph has %d unconnected sub-graphs, dropping %d of %d nodes",
			len(components), dropped, b.g.Nodes().Len())
		for _, id := range b.ids {
			if !kept[id] {
				b.g.RemoveNode(id)
			}
		}
	}
	return kept
}

func minKey(b *builder, nodes []gonumgraph.Node) string {
	min := b.key(nodes[0].ID())
	for _, node := range nodes[1:] {
		if key := b.key(node.ID()); key < min {
			min = key
		}
	}
	return min
}

// orient converts the undirected graph into a DAG by BFS from the root. Tree
// edges point away from the root; every other mate edge is directed from the
// side with higher closeness centrality.
func (b *builder) orient(
	kept map[int64]bool,
	userRoot string,
	parts map[string]*assembly.Part,
	mateEdges [][2]string,
) (*Tree, error) {
	centrality := network.Closeness(b.g, path.DijkstraAllPaths(b.g))

	var rootKey string
	if userRoot != "" {
		id, ok := b.ids[userRoot]
		if !ok || !kept[id] {
			return nil, &RootNotInGraphError{Root: userRoot}
		}
		rootKey = userRoot
	} else {
		for id, keep := range kept {
			if !keep {
				continue
			}
			key := b.key(id)
			if rootKey == "" {
				rootKey = key
				continue
			}
			cur, best := centrality[id], centrality[b.ids[rootKey]]
			if cur > best || (cur == best && key < rootKey) {
				rootKey = key
			}
		}
	}

	// BFS over sorted neighbors for deterministic discovery order.
	type pair struct{ parent, child string }
	visited := map[string]bool{rootKey: true}
	treeEdges := map[pair]bool{}
	var edges []Edge
	queue := []string{rootKey}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		var neighbors []string
		it := b.g.From(b.ids[current])
		for it.Next() {
			neighbors = append(neighbors, b.key(it.Node().ID()))
		}
		sort.Strings(neighbors)
		for _, neighbor := range neighbors {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			treeEdges[pair{current, neighbor}] = true
			edges = append(edges, Edge{Parent: current, Child: neighbor})
			queue = append(queue, neighbor)
		}
	}

	// Remaining mate edges pick their direction by centrality.
	for _, mateEdge := range mateEdges {
		u, v := mateEdge[0], mateEdge[1]
		if !kept[b.ids[u]] || !kept[b.ids[v]] {
			continue
		}
		if treeEdges[pair{u, v}] || treeEdges[pair{v, u}] {
			continue
		}
		if centrality[b.ids[u]] > centrality[b.ids[v]] {
			edges = append(edges, Edge{Parent: u, Child: v})
		} else {
			edges = append(edges, Edge{Parent: v, Child: u})
		}
	}

	nodes := make(map[string]*assembly.Part, len(kept))
	for key, id := range b.ids {
		if kept[id] {
			nodes[key] = parts[key]
		}
	}
	b.logger.Infof("kinematic graph has %d nodes and %d edges, root %q", len(nodes), len(edges), rootKey)
	return &Tree{Root: rootKey, nodes: nodes, edges: edges}, nil
}
