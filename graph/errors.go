package graph

import "fmt"

// DisconnectedAssemblyError reports an assembly whose parts share no mates.
type DisconnectedAssemblyError struct{}

func (e *DisconnectedAssemblyError) Error() string {
	return "assembly has no mated parts to build a kinematic graph from"
}

// RootNotInGraphError reports a user-defined root that is not a graph node.
type RootNotInGraphError struct {
	Root string
}

func (e *RootNotInGraphError) Error() string {
	return fmt.Sprintf("root %q is not part of the kinematic graph", e.Root)
}

// MateSideMissingError reports a mate whose occurrence is hidden or missing
// from the graph.
type MateSideMissingError struct {
	MateKey string
	Side    string
}

func (e *MateSideMissingError) Error() string {
	return fmt.Sprintf("mate %q references occurrence %q which is hidden or missing", e.MateKey, e.Side)
}
