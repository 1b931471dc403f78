// Package parse turns an assembly snapshot into the keyed maps the graph and
// robot builders consume: instances, occurrences, sub-assemblies, parts,
// mates and relations. Keys are sanitized instance names joined by the
// sub-assembly joiner, so the same snapshot and options always produce the
// same keys.
package parse

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/onshape-robotics/toolkit/assembly"
	"github.com/onshape-robotics/toolkit/logging"
)

// SubAssemblyJoiner joins the path segments of instance and occurrence keys.
const SubAssemblyJoiner = "-SUB-"

// MateJoiner joins the parent and child sides of a mate key.
const MateJoiner = "_to_"

// MateKey builds the key a mate between two resolved occurrence keys is
// stored under.
func MateKey(parentKey, childKey string) string {
	return parentKey + MateJoiner + childKey
}

// SplitMateKey splits a mate key into its parent and child occurrence keys.
func SplitMateKey(key string) (parentKey, childKey string, ok bool) {
	parts := strings.SplitN(key, MateJoiner, 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// PathHead returns the first segment of an occurrence key.
func PathHead(key string) string {
	if i := strings.Index(key, SubAssemblyJoiner); i >= 0 {
		return key[:i]
	}
	return key
}

type branchMaps struct {
	instances map[string]assembly.Instance
	names     map[string]string
}

func newBranchMaps() *branchMaps {
	return &branchMaps{
		instances: map[string]assembly.Instance{},
		names:     map[string]string{},
	}
}

// merge unions a child branch into this one. Branch keys are disjoint by
// construction: every child key carries the child's unique prefix.
func (b *branchMaps) merge(other *branchMaps) {
	for k, v := range other.instances {
		b.instances[k] = v
	}
	for k, v := range other.names {
		b.names[k] = v
	}
}

func findSubAssembly(subs []*assembly.SubAssembly, uid string) *assembly.SubAssembly {
	for _, sub := range subs {
		if sub.UID() == uid {
			return sub
		}
	}
	return nil
}

// traverseInstances walks one assembly scope. Sub-assembly branches are
// walked concurrently; every branch returns owned maps and the parent merges
// after all branches complete.
func traverseInstances(
	ctx context.Context,
	scope *assembly.SubAssembly,
	prefix string,
	depth, maxDepth int,
	subs []*assembly.SubAssembly,
	logger logging.Logger,
) (*branchMaps, error) {
	out := newBranchMaps()

	group, ctx := errgroup.WithContext(ctx)
	branches := make([]*branchMaps, len(scope.Instances))

	for i, instance := range scope.Instances {
		name := assembly.SanitizeName(instance.InstanceName())
		key := name
		if prefix != "" {
			key = prefix + SubAssemblyJoiner + name
		}
		out.names[instance.InstanceID()] = name
		out.instances[key] = instance

		asmInstance, ok := instance.(*assembly.AssemblyInstance)
		if !ok {
			continue
		}
		if depth >= maxDepth {
			logger.Debugf("max depth %d reached at %q, treating sub-assembly as rigid", maxDepth, key)
			asmInstance.IsRigid = true
			continue
		}
		sub := findSubAssembly(subs, asmInstance.UID())
		if sub == nil {
			logger.Warnf("sub-assembly definition not found for instance %q", key)
			continue
		}

		i, key := i, key
		group.Go(func() error {
			branch, err := traverseInstances(ctx, sub, key, depth+1, maxDepth, subs, logger)
			if err != nil {
				return err
			}
			branches[i] = branch
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	for _, branch := range branches {
		if branch != nil {
			out.merge(branch)
		}
	}
	return out, nil
}

// Instances traverses the assembly down to maxDepth and returns the
// path-keyed instance map, the occurrence map, and the id-to-sanitized-name
// map. Assembly instances at or beyond maxDepth are marked rigid and not
// descended into.
func Instances(
	ctx context.Context,
	asm *assembly.Assembly,
	maxDepth int,
	logger logging.Logger,
) (map[string]assembly.Instance, map[string]*assembly.Occurrence, map[string]string, error) {
	maps, err := traverseInstances(ctx, &asm.RootAssembly.SubAssembly, "", 0, maxDepth, asm.SubAssemblies, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	occurrences, err := occurrenceMap(asm, maps.names, maxDepth)
	if err != nil {
		return nil, nil, nil, err
	}
	return maps.instances, occurrences, maps.names, nil
}

// occurrenceMap translates every leaf occurrence path through the name map,
// dropping occurrences deeper than the traversal went.
func occurrenceMap(
	asm *assembly.Assembly,
	names map[string]string,
	maxDepth int,
) (map[string]*assembly.Occurrence, error) {
	out := make(map[string]*assembly.Occurrence, len(asm.RootAssembly.Occurrences))
	for _, occurrence := range asm.RootAssembly.Occurrences {
		if len(occurrence.Path) > maxDepth+1 {
			continue
		}
		segments := make([]string, 0, len(occurrence.Path))
		for _, id := range occurrence.Path {
			name, ok := names[id]
			if !ok {
				return nil, &UnknownInstanceRefError{Ref: id, Path: occurrence.Path}
			}
			segments = append(segments, name)
		}
		out[strings.Join(segments, SubAssemblyJoiner)] = occurrence
	}
	return out, nil
}
