// Package duplicates finds functions that implement the same algorithm
// across the whole analyzed set. Fingerprints are collected per file into a
// Registry; Analyze runs once over the frozen registry.
package duplicates

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/panbanda/connascence/pkg/models"
)

// Analyzer clusters near-identical function bodies using MinHash with LSH
// for candidate filtering and exact shingle Jaccard for verification.
type Analyzer struct {
	config Config
}

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) {
		a.config = cfg
	}
}

// New creates a new duplicate analyzer with default config.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{config: DefaultConfig()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective configuration; registries feeding this
// analyzer should be built with it.
func (a *Analyzer) Config() Config { return a.config }

type clonePair struct {
	idxA       int
	idxB       int
	similarity float64
}

// Analyze clusters fragments and emits one DuplicateAlgorithm violation per
// cluster member after the primary. fragments must be in Registry.Freeze
// order; the primary of a cluster is its earliest member by file and line.
func (a *Analyzer) Analyze(fragments []Fragment) Result {
	pairs := a.findClonePairs(fragments)
	clusters := a.groupClones(fragments, pairs)

	var violations []models.Violation
	for _, c := range clusters {
		violations = append(violations, clusterViolations(c)...)
	}
	return Result{
		Clusters:   clusters,
		Violations: violations,
		Score:      Score(clusters),
	}
}

// findClonePairs returns every verified pair. Exact structural matches are
// paired directly; the rest go through LSH banding.
func (a *Analyzer) findClonePairs(fragments []Fragment) []clonePair {
	candidates := make(map[uint64]struct{})
	addPair := func(i, j int) {
		if i > j {
			i, j = j, i
		}
		candidates[uint64(i)<<32|uint64(j)] = struct{}{}
	}

	byHash := make(map[uint64][]int)
	for i, f := range fragments {
		byHash[f.Hash] = append(byHash[f.Hash], i)
	}
	for _, bucket := range byHash {
		for i := 1; i < len(bucket); i++ {
			addPair(bucket[0], bucket[i])
		}
	}

	bands, rows := a.config.NumBands, a.config.RowsPerBand
	lshBuckets := make([]map[uint64][]int, bands)
	for i := range lshBuckets {
		lshBuckets[i] = make(map[uint64][]int)
	}
	for idx, f := range fragments {
		if f.Signature == nil || len(f.Signature.Values) == 0 {
			continue
		}
		for band := 0; band < bands; band++ {
			start := band * rows
			end := min(start+rows, len(f.Signature.Values))
			if start >= end {
				continue
			}
			h := hashBand(f.Signature.Values[start:end], uint64(band))
			lshBuckets[band][h] = append(lshBuckets[band][h], idx)
		}
	}
	for _, bandBuckets := range lshBuckets {
		for _, bucket := range bandBuckets {
			for i := 0; i < len(bucket); i++ {
				for j := i + 1; j < len(bucket); j++ {
					addPair(bucket[i], bucket[j])
				}
			}
		}
	}

	keys := make([]uint64, 0, len(candidates))
	for k := range candidates {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var pairs []clonePair
	for _, key := range keys {
		idxA, idxB := int(key>>32), int(key&0xFFFFFFFF)
		fa, fb := fragments[idxA], fragments[idxB]
		if fa.Location.File == fb.Location.File &&
			fa.Location.Line <= fb.Location.EndLine && fb.Location.Line <= fa.Location.EndLine {
			// nested functions overlap their parent
			continue
		}
		sim := fa.Similarity(fb)
		if sim >= a.config.SimilarityThreshold {
			pairs = append(pairs, clonePair{idxA: idxA, idxB: idxB, similarity: sim})
		}
	}
	return pairs
}

// hashBand computes a hash for a band portion of the signature.
func hashBand(values []uint64, seed uint64) uint64 {
	const fnvPrime = 0x00000100000001B3
	h := seed ^ 0xcbf29ce484222325
	for _, v := range values {
		h ^= v
		h *= fnvPrime
	}
	return h
}

// groupClones groups clone pairs using union-find. Cluster similarity is the
// lowest verified pair similarity inside the cluster.
func (a *Analyzer) groupClones(fragments []Fragment, pairs []clonePair) []models.DuplicateCluster {
	if len(pairs) == 0 {
		return nil
	}

	parent := make([]int, len(fragments))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(x, y int) {
		px, py := find(x), find(y)
		if px == py {
			return
		}
		// the lower index stays root so roots follow canonical order
		if px < py {
			parent[py] = px
		} else {
			parent[px] = py
		}
	}

	for _, p := range pairs {
		union(p.idxA, p.idxB)
	}

	minSim := make(map[int]float64)
	for _, p := range pairs {
		root := find(p.idxA)
		if cur, ok := minSim[root]; !ok || p.similarity < cur {
			minSim[root] = p.similarity
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := range fragments {
		root := find(i)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], i)
	}

	minGroup := max(a.config.MinGroupSize, 2)
	var clusters []models.DuplicateCluster
	for _, root := range roots {
		idx := members[root]
		if len(idx) < minGroup {
			continue
		}
		c := models.DuplicateCluster{
			ID:         len(clusters) + 1,
			Similarity: math.Round(minSim[root]*1000) / 1000,
		}
		for _, i := range idx {
			c.Members = append(c.Members, fragments[i].Location)
		}
		clusters = append(clusters, c)
	}
	return clusters
}

func clusterViolations(c models.DuplicateCluster) []models.Violation {
	primary := c.Primary()
	locality := models.LocalitySameModule
	for _, m := range c.Members {
		if m.File != primary.File {
			locality = models.LocalityCrossModule
			break
		}
	}
	sev := models.SeverityMedium
	if c.Similarity >= 1.0 {
		sev = models.SeverityHigh
	}

	siblings := make([]string, len(c.Members))
	for i, m := range c.Members {
		siblings[i] = fmt.Sprintf("%s:%d", m.File, m.Line)
	}

	out := make([]models.Violation, 0, len(c.Members)-1)
	for _, m := range c.Members[1:] {
		out = append(out, models.NewViolation(models.RuleDuplicateAlgorithm, sev, m.File,
			models.Location{Line: m.Line, Column: 1, EndLine: m.EndLine}, locality,
			fmt.Sprintf("Function '%s' duplicates the algorithm of '%s' (%s:%d)",
				m.Function, primary.Function, primary.File, primary.Line),
			"Extract the shared algorithm into one function and call it from every site",
			map[string]any{
				"similarity_score": c.Similarity,
				"cluster_id":       c.ID,
				"cluster_size":     len(c.Members),
				"function":         m.Function,
				"primary":          siblings[0],
				"siblings":         strings.Join(siblings, ", "),
			}))
	}
	return out
}

// Score returns the duplication score in [0, 1]. Each cluster costs
// 0.05 × similarity × min(size/5, 2).
func Score(clusters []models.DuplicateCluster) float64 {
	penalty := 0.0
	for _, c := range clusters {
		penalty += 0.05 * c.Similarity * min(float64(len(c.Members))/5.0, 2.0)
	}
	return math.Max(0, 1-penalty)
}
