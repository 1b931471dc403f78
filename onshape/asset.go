package onshape

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/onshape-robotics/toolkit/mesh"
	"github.com/onshape-robotics/toolkit/spatialmath"
)

// MeshesDirectory is the sibling directory robot descriptions reference their
// mesh files from.
const MeshesDirectory = "meshes"

// Asset identifies one mesh file of a robot description and where to download
// it from. The mesh is re-expressed in the link frame before it is written.
type Asset struct {
	DID             string
	Wtype           WorkspaceType
	WID             string
	EID             string
	PartID          string
	FileName        string
	Transform       spatialmath.Transform
	IsRigidAssembly bool

	// FromFile marks assets referenced by an existing robot description;
	// they are never downloaded.
	FromFile bool

	svc Service
}

// NewAsset builds a downloadable asset.
func NewAsset(svc Service, did string, wtype WorkspaceType, wid, eid, partID, fileName string,
	transform spatialmath.Transform, isRigidAssembly bool,
) *Asset {
	return &Asset{
		DID:             did,
		Wtype:           wtype,
		WID:             wid,
		EID:             eid,
		PartID:          partID,
		FileName:        fileName,
		Transform:       transform,
		IsRigidAssembly: isRigidAssembly,
		svc:             svc,
	}
}

// AssetFromFile wraps a mesh file referenced by an existing description.
func AssetFromFile(fileName string) *Asset {
	return &Asset{FileName: filepath.Base(fileName), FromFile: true}
}

// RelativePath is the path the emitters reference the mesh by.
func (a *Asset) RelativePath() string {
	return filepath.Join(MeshesDirectory, a.FileName)
}

// Download fetches the STL, applies the asset transform, and writes the file
// under dir/meshes.
func (a *Asset) Download(ctx context.Context, dir string) error {
	if a.FromFile {
		return nil
	}
	var data []byte
	var err error
	if a.IsRigidAssembly {
		data, err = a.svc.DownloadAssemblySTL(ctx, a.DID, a.Wtype, a.WID, a.EID)
	} else {
		data, err = a.svc.DownloadPartSTL(ctx, a.DID, a.Wtype, a.WID, a.EID, a.PartID)
	}
	if err != nil {
		return errors.Wrapf(err, "downloading %s", a.FileName)
	}

	transformed, err := mesh.TransformSTL(data, a.Transform)
	if err != nil {
		return errors.Wrapf(err, "transforming %s", a.FileName)
	}

	meshDir := filepath.Join(dir, MeshesDirectory)
	if err := os.MkdirAll(meshDir, 0o755); err != nil {
		return errors.Wrap(err, "creating meshes directory")
	}
	return errors.Wrapf(os.WriteFile(filepath.Join(meshDir, a.FileName), transformed, 0o644),
		"writing %s", a.FileName)
}
