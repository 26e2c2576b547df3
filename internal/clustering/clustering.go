// Package clustering groups evidence items into semantic clusters using
// DBSCAN over cosine distance between embeddings.
//
// DBSCAN was chosen over k-means because the number of features in a corpus
// is unknown up front, and because evidence that belongs to no feature should
// stay noise instead of being forced into the nearest cluster.
package clustering

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/scopeline/scopeline/internal/types"
	"github.com/scopeline/scopeline/internal/vectormath"
)

// Default DBSCAN parameters, tuned for text-embedding cosine space where
// related requirement fragments typically sit within 0.3 of each other.
const (
	DefaultEpsilon   = 0.3
	DefaultMinPoints = 2
)

// Config holds clustering configuration
type Config struct {
	// Epsilon is the maximum cosine distance between two evidence items
	// for them to be considered neighbors.
	Epsilon float64

	// MinPoints is the minimum neighborhood size (including the point
	// itself) for a point to be a core point.
	MinPoints int
}

// DefaultConfig returns the default clustering configuration
func DefaultConfig() Config {
	return Config{
		Epsilon:   DefaultEpsilon,
		MinPoints: DefaultMinPoints,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Epsilon <= 0.0 || c.Epsilon > 2.0 {
		return fmt.Errorf("epsilon must be in (0.0, 2.0] (got %.2f)", c.Epsilon)
	}
	if c.MinPoints < 1 {
		return fmt.Errorf("min_points must be at least 1 (got %d)", c.MinPoints)
	}
	return nil
}

// Cluster is a group of evidence items that plausibly describe one feature.
type Cluster struct {
	ID       int
	Evidence []*types.Evidence
}

// Result holds the outcome of one clustering pass.
type Result struct {
	Clusters       []*Cluster
	Noise          []*types.Evidence
	SkippedCount   int // evidence without embeddings
	ProcessingTime time.Duration
}

// Engine runs DBSCAN over evidence embeddings.
type Engine struct {
	config Config
}

// NewEngine creates a clustering engine.
func NewEngine(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Engine{config: config}, nil
}

// ClusterEvidence partitions the evidence into clusters plus noise.
//
// Evidence without an embedding, and obsolete evidence, is skipped and
// counted in SkippedCount. Iteration is ordered by evidence ID so the same
// input always yields the same clusters with the same IDs.
func (e *Engine) ClusterEvidence(evidence []*types.Evidence) *Result {
	start := time.Now()
	result := &Result{}

	points := make([]*types.Evidence, 0, len(evidence))
	for _, ev := range evidence {
		if ev == nil {
			continue
		}
		if ev.Obsolete || !ev.HasEmbedding() {
			result.SkippedCount++
			continue
		}
		points = append(points, ev)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })

	const (
		unvisited = 0
		noise     = -1
	)
	// labels[i]: 0 = unvisited, -1 = noise, >0 = cluster id.
	labels := make([]int, len(points))

	nextCluster := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbors := e.regionQuery(points, i)
		if len(neighbors) < e.config.MinPoints {
			labels[i] = noise
			continue
		}

		nextCluster++
		labels[i] = nextCluster

		// Expand the cluster breadth-first. Noise points reachable from a
		// core point are reclaimed as border points.
		queue := append([]int(nil), neighbors...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == noise {
				labels[j] = nextCluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = nextCluster

			jNeighbors := e.regionQuery(points, j)
			if len(jNeighbors) >= e.config.MinPoints {
				queue = append(queue, jNeighbors...)
			}
		}
	}

	clusters := make(map[int]*Cluster)
	for i, ev := range points {
		switch {
		case labels[i] == noise:
			result.Noise = append(result.Noise, ev)
		default:
			c, ok := clusters[labels[i]]
			if !ok {
				c = &Cluster{ID: labels[i]}
				clusters[labels[i]] = c
			}
			c.Evidence = append(c.Evidence, ev)
		}
	}
	for id := 1; id <= nextCluster; id++ {
		if c, ok := clusters[id]; ok {
			result.Clusters = append(result.Clusters, c)
		}
	}

	result.ProcessingTime = time.Since(start)
	log.Printf("[CLUSTER] %d evidence items -> %d clusters, %d noise, %d skipped (%.2fs)",
		len(points), len(result.Clusters), len(result.Noise), result.SkippedCount,
		result.ProcessingTime.Seconds())
	return result
}

// regionQuery returns the indexes of all points within epsilon of point i,
// including i itself.
func (e *Engine) regionQuery(points []*types.Evidence, i int) []int {
	var neighbors []int
	for j := range points {
		if vectormath.CosineDistance(points[i].Embedding, points[j].Embedding) <= e.config.Epsilon {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}
