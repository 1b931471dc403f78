package parse

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/onshape-robotics/toolkit/assembly"
	"github.com/onshape-robotics/toolkit/logging"
	"github.com/onshape-robotics/toolkit/onshape"
	"github.com/onshape-robotics/toolkit/spatialmath"
)

// Parts pairs every part instance with its Part definition and fetches mass
// properties, one call per part concurrently. Parts nested inside rigid
// sub-assemblies skip the fetch: their mass is already accounted for by the
// rigid aggregate. A failed mass fetch keeps the part with zero inertia and
// logs a warning. Each rigid sub-assembly key additionally gets a synthesized
// Part stub carrying the aggregate mass.
func Parts(
	ctx context.Context,
	asm *assembly.Assembly,
	rigid map[string]*assembly.RootAssembly,
	svc onshape.Service,
	instances map[string]assembly.Instance,
	logger logging.Logger,
) (map[string]*assembly.Part, error) {
	instanceKeys := map[string][]string{}
	keys := make([]string, 0, len(instances))
	for key := range instances {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if instances[key].Kind() != assembly.KindPart {
			continue
		}
		uid := instances[key].UID()
		instanceKeys[uid] = append(instanceKeys[uid], key)
	}

	partMap := map[string]*assembly.Part{}
	group, ctx := errgroup.WithContext(ctx)

	for _, part := range asm.Parts {
		partInstances, ok := instanceKeys[part.UID()]
		if !ok {
			continue
		}
		needsMass := false
		for _, key := range partInstances {
			partMap[key] = part
			if _, inRigid := rigid[PathHead(key)]; !inRigid {
				needsMass = true
			}
		}
		if !needsMass || part.MassProperty != nil {
			continue
		}

		part := part
		group.Go(func() error {
			logger.Debugf("fetching mass properties for part %s %s", part.UID(), part.PartID)
			massProps, err := svc.GetMassProperty(
				ctx,
				part.DocumentID,
				onshape.WorkspaceTypeMicroversion,
				part.DocumentMicroversion,
				part.ElementID,
				part.PartID,
			)
			if err != nil {
				// A single part without mass data keeps zero inertia.
				logger.Warnf("failed to fetch mass properties for part %s: %v", part.PartID, err)
				return nil
			}
			part.MassProperty = massProps
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	rigidKeys := make([]string, 0, len(rigid))
	for key := range rigid {
		rigidKeys = append(rigidKeys, key)
	}
	sort.Strings(rigidKeys)
	for _, key := range rigidKeys {
		root := rigid[key]
		var workspaceID string
		if root.DocumentMetaData != nil {
			workspaceID = root.DocumentMetaData.DefaultWorkspace.ID
		}
		partMap[key] = &assembly.Part{
			DocumentRef:              root.DocumentRef,
			MassProperty:             root.MassProperty,
			IsRigidAssembly:          true,
			RigidAssemblyWorkspaceID: workspaceID,
			RigidAssemblyToPartTF:    map[string]spatialmath.Transform{},
		}
	}
	return partMap, nil
}
