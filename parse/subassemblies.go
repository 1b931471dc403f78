package parse

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/onshape-robotics/toolkit/assembly"
	"github.com/onshape-robotics/toolkit/logging"
	"github.com/onshape-robotics/toolkit/onshape"
)

// articulated reports whether a sub-assembly has any feature that moves, that
// is, anything besides mate groups.
func articulated(sub *assembly.SubAssembly) bool {
	for _, feature := range sub.Features {
		if feature.FeatureType != assembly.FeatureTypeMateGroup {
			return true
		}
	}
	return false
}

// SubAssemblies classifies every referenced sub-assembly instance as
// articulated or rigid. Rigid instances are expanded by fetching a flattened
// root assembly, with aggregate mass properties, at the sub-assembly's own
// document microversion; one fetch per rigid definition runs concurrently.
// Instance names discovered inside rigid expansions are added to idToName so
// mates reaching into a rigid sub-assembly can still be translated.
func SubAssemblies(
	ctx context.Context,
	asm *assembly.Assembly,
	svc onshape.Service,
	instances map[string]assembly.Instance,
	idToName map[string]string,
	logger logging.Logger,
) (map[string]*assembly.SubAssembly, map[string]*assembly.RootAssembly, error) {
	articulatedKeys := map[string][]string{}
	rigidKeys := map[string][]string{}

	keys := make([]string, 0, len(instances))
	for key := range instances {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		asmInstance, ok := instances[key].(*assembly.AssemblyInstance)
		if !ok {
			continue
		}
		uid := asmInstance.UID()
		if asmInstance.IsRigid {
			rigidKeys[uid] = append(rigidKeys[uid], key)
		} else {
			articulatedKeys[uid] = append(articulatedKeys[uid], key)
		}
	}

	subMap := map[string]*assembly.SubAssembly{}
	rigidMap := map[string]*assembly.RootAssembly{}

	type fetchTask struct {
		sub  *assembly.SubAssembly
		keys []string
		root *assembly.RootAssembly
	}
	var tasks []*fetchTask

	for _, sub := range asm.SubAssemblies {
		uid := sub.UID()
		var fetchKeys []string
		if instanceKeys, ok := articulatedKeys[uid]; ok {
			if articulated(sub) {
				for _, key := range instanceKeys {
					subMap[key] = sub
				}
			} else {
				// No articulating features: rigid regardless of depth.
				fetchKeys = append(fetchKeys, instanceKeys...)
			}
		}
		if instanceKeys, ok := rigidKeys[uid]; ok {
			fetchKeys = append(fetchKeys, instanceKeys...)
		}
		if len(fetchKeys) > 0 {
			tasks = append(tasks, &fetchTask{sub: sub, keys: fetchKeys})
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		group.Go(func() error {
			logger.Debugf("expanding rigid sub-assembly %v", task.keys)
			root, err := svc.GetRootAssembly(
				ctx,
				task.sub.DocumentID,
				onshape.WorkspaceTypeMicroversion,
				task.sub.DocumentMicroversion,
				task.sub.ElementID,
				true,
			)
			if err != nil {
				return err
			}
			task.root = root
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	for _, task := range tasks {
		for _, key := range task.keys {
			rigidMap[key] = task.root
		}
		for _, instance := range task.root.Instances {
			if _, ok := idToName[instance.InstanceID()]; !ok {
				idToName[instance.InstanceID()] = assembly.SanitizeName(instance.InstanceName())
			}
		}
	}
	return subMap, rigidMap, nil
}
