package parse

import "fmt"

// UnknownInstanceRefError reports an occurrence path element that has no
// traversed instance behind it.
type UnknownInstanceRefError struct {
	Ref  string
	Path []string
}

func (e *UnknownInstanceRefError) Error() string {
	return fmt.Sprintf("occurrence path %v references unknown instance %q", e.Path, e.Ref)
}
