package parse

import (
	"sort"
	"strings"

	"github.com/onshape-robotics/toolkit/assembly"
	"github.com/onshape-robotics/toolkit/logging"
)

// occurrenceName joins a translated occurrence path under an optional
// sub-assembly prefix.
func occurrenceName(path []string, prefix string) string {
	joined := strings.Join(path, SubAssemblyJoiner)
	if prefix == "" {
		return joined
	}
	return prefix + SubAssemblyJoiner + joined
}

// joinMateOccurrences builds the parent-to-child mate key.
func joinMateOccurrences(parent, child []string, prefix string) string {
	return MateKey(occurrenceName(parent, prefix), occurrenceName(child, prefix))
}

// rigidOccurrenceMaps indexes every rigid expansion's occurrences by their
// translated path, keyed by the rigid instance key.
func rigidOccurrenceMaps(
	rigid map[string]*assembly.RootAssembly,
	idToName map[string]string,
	logger logging.Logger,
) map[string]map[string]*assembly.Occurrence {
	out := make(map[string]map[string]*assembly.Occurrence, len(rigid))
	for key, root := range rigid {
		occurrences := map[string]*assembly.Occurrence{}
		for _, occurrence := range root.Occurrences {
			segments := make([]string, 0, len(occurrence.Path))
			known := true
			for _, id := range occurrence.Path {
				name, ok := idToName[id]
				if !ok {
					logger.Warnf("occurrence path %v inside rigid sub-assembly %q not found", occurrence.Path, key)
					known = false
					break
				}
				segments = append(segments, name)
			}
			if known {
				occurrences[strings.Join(segments, SubAssemblyJoiner)] = occurrence
			}
		}
		out[key] = occurrences
	}
	return out
}

type mateResolver struct {
	rigid     map[string]*assembly.RootAssembly
	rigidOccs map[string]map[string]*assembly.Occurrence
	idToName  map[string]string
	parts     map[string]*assembly.Part
	mates     map[string]*assembly.MateFeatureData
	relations map[string]*assembly.MateRelationFeatureData
	logger    logging.Logger
}

func (r *mateResolver) translate(path []string) ([]string, error) {
	out := make([]string, 0, len(path))
	for _, id := range path {
		name, ok := r.idToName[id]
		if !ok {
			return nil, &UnknownInstanceRefError{Ref: id, Path: path}
		}
		out = append(out, name)
	}
	return out, nil
}

// collapseRigid rewrites one mate side that reaches inside a rigid
// sub-assembly: the intra-rigid transform becomes the entity's parentCS and is
// cached on the rigid part stub, and the occurrence collapses to the rigid
// key.
func (r *mateResolver) collapseRigid(path []string, entity *assembly.MatedEntity) []string {
	root, ok := r.rigid[path[0]]
	if !ok || root == nil {
		return path
	}
	if len(path) > 1 {
		tail := strings.Join(path[1:], SubAssemblyJoiner)
		if occurrence, ok := r.rigidOccs[path[0]][tail]; ok {
			parentCS := assembly.MatedCSFromTransform(occurrence.Transform)
			if part, ok := r.parts[path[0]]; ok {
				part.RigidAssemblyToPartTF[tail] = occurrence.Transform
			}
			entity.ParentCS = parentCS
		} else {
			r.logger.Warnf("occurrence %q not found inside rigid sub-assembly %q", tail, path[0])
		}
	}
	return path[:1]
}

func (r *mateResolver) processFeatures(features []*assembly.Feature, prefix string) error {
	for _, feature := range features {
		if feature.Suppressed {
			continue
		}
		switch feature.FeatureType {
		case assembly.FeatureTypeMate:
			mate := feature.Mate
			if mate == nil || len(mate.MatedEntities) < 2 {
				r.logger.Warnf("invalid mate feature %q", feature.ID)
				continue
			}
			childPath, err := r.translate(mate.MatedEntities[assembly.MateChild].MatedOccurrence)
			if err != nil {
				return err
			}
			parentPath, err := r.translate(mate.MatedEntities[assembly.MateParent].MatedOccurrence)
			if err != nil {
				return err
			}

			parentPath = r.collapseRigid(parentPath, mate.MatedEntities[assembly.MateParent])
			childPath = r.collapseRigid(childPath, mate.MatedEntities[assembly.MateChild])

			r.mates[joinMateOccurrences(parentPath, childPath, prefix)] = mate

		case assembly.FeatureTypeMateRelation:
			relation := feature.Relation
			if relation == nil {
				continue
			}
			drivingMate := relation.DrivingMateID()
			if drivingMate == "" {
				r.logger.Warnf("mate relation %q has no driven mate", feature.ID)
				continue
			}
			r.relations[drivingMate] = relation
		}
	}
	return nil
}

// MatesAndRelations walks the root assembly and every articulated
// sub-assembly scope and returns the parent-to-child keyed mate map and the
// driving-feature-id keyed relation map. Mated occurrences inside rigid
// sub-assemblies are rewritten to point at the rigid link.
func MatesAndRelations(
	asm *assembly.Assembly,
	subs map[string]*assembly.SubAssembly,
	rigid map[string]*assembly.RootAssembly,
	idToName map[string]string,
	parts map[string]*assembly.Part,
	logger logging.Logger,
) (map[string]*assembly.MateFeatureData, map[string]*assembly.MateRelationFeatureData, error) {
	resolver := &mateResolver{
		rigid:     rigid,
		rigidOccs: rigidOccurrenceMaps(rigid, idToName, logger),
		idToName:  idToName,
		parts:     parts,
		mates:     map[string]*assembly.MateFeatureData{},
		relations: map[string]*assembly.MateRelationFeatureData{},
		logger:    logger,
	}

	if err := resolver.processFeatures(asm.RootAssembly.Features, ""); err != nil {
		return nil, nil, err
	}

	subKeys := make([]string, 0, len(subs))
	for key := range subs {
		subKeys = append(subKeys, key)
	}
	sort.Strings(subKeys)
	for _, key := range subKeys {
		if err := resolver.processFeatures(subs[key].Features, key); err != nil {
			return nil, nil, err
		}
	}
	return resolver.mates, resolver.relations, nil
}
