// Package onshape talks to the Onshape REST API. The compiler core depends
// only on the narrow Service interface; Client is the HMAC-signed HTTP
// implementation of it.
package onshape

import (
	"context"

	"github.com/onshape-robotics/toolkit/assembly"
)

// Service is the slice of the Onshape API the assembly compiler consumes.
type Service interface {
	// GetAssembly fetches a read-only assembly snapshot.
	GetAssembly(ctx context.Context, did string, wtype WorkspaceType, wid, eid, configuration string,
		withMeta bool) (*assembly.Assembly, error)

	// GetRootAssembly fetches a flattened root assembly, used to expand rigid
	// sub-assemblies. withMass attaches aggregate mass properties.
	GetRootAssembly(ctx context.Context, did string, wtype WorkspaceType, wid, eid string,
		withMass bool) (*assembly.RootAssembly, error)

	// GetMassProperty fetches the mass properties of a single part.
	GetMassProperty(ctx context.Context, did string, wtype WorkspaceType, wid, eid, partID string) (
		*assembly.MassProperties, error)

	// DownloadPartSTL downloads the binary STL of a part.
	DownloadPartSTL(ctx context.Context, did string, wtype WorkspaceType, wid, eid, partID string) ([]byte, error)

	// DownloadAssemblySTL translates an assembly to STL, polling the
	// translation job until it finishes, and downloads the result.
	DownloadAssemblySTL(ctx context.Context, did string, wtype WorkspaceType, wid, eid string) ([]byte, error)
}
