// Package hierarchy organizes flat features into an epic/story/task forest.
//
// Containment is inferred deterministically from evidence-link overlap and
// name overlap, with no model calls: a parent must cover most of its child's
// evidence and always has strictly more evidence than the child. The strict
// scope ordering makes cycles impossible by construction, but the forest is
// still validated before anything is written.
package hierarchy

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/scopeline/scopeline/internal/namematch"
	"github.com/scopeline/scopeline/internal/types"
)

// MaxDepth is the deepest allowed level (epic=1, story=2, task=3).
const MaxDepth = 3

// DefaultContainmentThreshold is the fraction of a child's evidence a parent
// must share before containment is inferred.
const DefaultContainmentThreshold = 0.5

// Config holds hierarchy builder configuration
type Config struct {
	// ContainmentThreshold is the minimum fraction of the child's evidence
	// the parent must also link. Default: 0.5
	ContainmentThreshold float64
}

// DefaultConfig returns the default hierarchy configuration
func DefaultConfig() Config {
	return Config{ContainmentThreshold: DefaultContainmentThreshold}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.ContainmentThreshold <= 0.0 || c.ContainmentThreshold > 1.0 {
		return fmt.Errorf("containment_threshold must be in (0.0, 1.0] (got %.2f)", c.ContainmentThreshold)
	}
	return nil
}

// Store is the storage surface the builder needs.
type Store interface {
	ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error)
	GetLinkedEvidenceIDs(ctx context.Context, featureID string) ([]string, error)
	SetFeatureHierarchy(ctx context.Context, featureID string, parentID *string, featureType types.FeatureType) error
}

// Builder assigns parents and epic/story/task types.
type Builder struct {
	store  Store
	config Config
}

// NewBuilder creates a hierarchy builder.
func NewBuilder(store Store, config Config) (*Builder, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Builder{store: store, config: config}, nil
}

// Result summarizes one hierarchy build.
type Result struct {
	FeaturesProcessed int
	ParentsAssigned   int
	Roots             int
	MaxDepthSeen      int
	ProcessingTime    time.Duration
}

type node struct {
	feature  *types.Feature
	evidence map[string]bool
	parent   *node
	children int
	depth    int
}

// Rebuild recomputes the whole forest from current evidence links and
// persists it. The previous hierarchy is not consulted: merges and
// reprocessing invalidate it wholesale, and recomputing is cheap.
//
// Nothing is written unless the computed forest validates as acyclic and
// within the depth cap.
func (b *Builder) Rebuild(ctx context.Context) (*Result, error) {
	start := time.Now()

	features, err := b.store.ListFeatures(ctx, types.FeatureFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}

	nodes := make([]*node, 0, len(features))
	for _, f := range features {
		if f == nil || f.Status == types.StatusRejected {
			continue
		}
		ids, err := b.store.GetLinkedEvidenceIDs(ctx, f.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load evidence ids for %s: %w", f.ID, err)
		}
		evidence := make(map[string]bool, len(ids))
		for _, id := range ids {
			evidence[id] = true
		}
		nodes = append(nodes, &node{feature: f, evidence: evidence})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].feature.ID < nodes[j].feature.ID })

	for _, n := range nodes {
		n.parent = b.pickParent(n, nodes)
		if n.parent != nil {
			n.parent.children++
		}
	}

	if err := validateForest(nodes); err != nil {
		return nil, err
	}
	clampDepth(nodes)

	result := &Result{FeaturesProcessed: len(nodes)}
	for _, n := range nodes {
		if n.parent == nil {
			result.Roots++
		} else {
			result.ParentsAssigned++
		}
		if n.depth > result.MaxDepthSeen {
			result.MaxDepthSeen = n.depth
		}

		var parentID *string
		if n.parent != nil {
			id := n.parent.feature.ID
			parentID = &id
		}
		if err := b.store.SetFeatureHierarchy(ctx, n.feature.ID, parentID, typeForNode(n)); err != nil {
			return nil, fmt.Errorf("failed to persist hierarchy for %s: %w", n.feature.ID, err)
		}
	}

	result.ProcessingTime = time.Since(start)
	log.Printf("[HIERARCHY] Built forest: %d features, %d roots, %d with parents, depth %d (%.2fs)",
		result.FeaturesProcessed, result.Roots, result.ParentsAssigned, result.MaxDepthSeen,
		result.ProcessingTime.Seconds())
	return result, nil
}

// pickParent finds the best containing feature, or nil for roots.
//
// A parent must have strictly more evidence than the child and either cover
// the configured fraction of the child's evidence or subsume its name. Best
// coverage wins; ties break on the tightest containing scope, then smaller
// id, so rebuilds are deterministic and a task nests under its story rather
// than jumping straight to the epic.
func (b *Builder) pickParent(child *node, nodes []*node) *node {
	var best *node
	bestCoverage := -1.0

	for _, candidate := range nodes {
		if candidate == child {
			continue
		}
		if len(candidate.evidence) <= len(child.evidence) {
			continue
		}

		coverage := evidenceCoverage(child.evidence, candidate.evidence)
		contains := coverage >= b.config.ContainmentThreshold
		if !contains && len(child.evidence) > 0 {
			continue
		}
		if len(child.evidence) == 0 &&
			!namematch.AreNamesSimilar(child.feature.Name, candidate.feature.Name, namematch.DefaultThreshold) {
			continue
		}

		switch {
		case coverage > bestCoverage:
		case coverage == bestCoverage && best != nil && len(candidate.evidence) < len(best.evidence):
		case coverage == bestCoverage && best != nil &&
			len(candidate.evidence) == len(best.evidence) && candidate.feature.ID < best.feature.ID:
		default:
			continue
		}
		best = candidate
		bestCoverage = coverage
	}
	return best
}

// evidenceCoverage is the fraction of the child's evidence the parent links.
func evidenceCoverage(child, parent map[string]bool) float64 {
	if len(child) == 0 {
		return 0
	}
	shared := 0
	for id := range child {
		if parent[id] {
			shared++
		}
	}
	return float64(shared) / float64(len(child))
}

// validateForest walks every parent chain and fails on a cycle. The strict
// evidence-count ordering in pickParent should make this impossible;
// finding one means corrupted state, so the error is not retryable.
func validateForest(nodes []*node) error {
	for _, n := range nodes {
		seen := map[string]bool{n.feature.ID: true}
		for cur := n.parent; cur != nil; cur = cur.parent {
			if seen[cur.feature.ID] {
				return types.NewConsistencyError("hierarchy",
					"cycle detected through feature %s", cur.feature.ID)
			}
			seen[cur.feature.ID] = true
		}
	}
	return nil
}

// clampDepth computes depths and re-parents nodes that would sit below
// MaxDepth onto an ancestor at MaxDepth-1.
func clampDepth(nodes []*node) {
	var depthOf func(n *node) int
	depthOf = func(n *node) int {
		if n.parent == nil {
			return 1
		}
		return depthOf(n.parent) + 1
	}

	// Shallow nodes first, so every ancestor is already clamped by the time
	// its descendants are examined.
	ordered := make([]*node, len(nodes))
	copy(ordered, nodes)
	sort.SliceStable(ordered, func(i, j int) bool { return depthOf(ordered[i]) < depthOf(ordered[j]) })

	for _, n := range ordered {
		d := depthOf(n)
		if d > MaxDepth {
			ancestor := n.parent
			for depthOf(ancestor) > MaxDepth-1 {
				ancestor = ancestor.parent
			}
			n.parent.children--
			n.parent = ancestor
			ancestor.children++
			d = MaxDepth
		}
		n.depth = d
	}
}

// typeForNode maps forest position to a feature type: roots with children
// are epics, mid-level nodes are stories, leaves at the bottom and
// standalone features are tasks.
func typeForNode(n *node) types.FeatureType {
	switch n.depth {
	case 1:
		if n.children > 0 {
			return types.TypeEpic
		}
		return types.TypeTask
	case 2:
		return types.TypeStory
	default:
		return types.TypeTask
	}
}
