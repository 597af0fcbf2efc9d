package vectorindex

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/ragifylabs/ragify/internal/model"
)

// IVFIndex is an inverted-file approximate index: vectors are assigned
// to the nearest of nlist centroids at insert time, and Search probes
// the nprobe closest centroids' lists instead of the whole corpus,
// widening to further lists only when those hold fewer than K records.
// Centroids are seeded from the first inserted vectors and refined with
// a lightweight k-means pass whenever Rebuild is called; ragify does not
// rebuild automatically, matching the contract's "results may be stale
// until the next explicit rebuild" approximate-index allowance.
type IVFIndex struct {
	dim    int
	metric Metric
	nlist  int
	nprobe int

	mu        sync.RWMutex
	centroids [][]float32
	lists     [][]string // centroid index -> record IDs
	records   map[string]storedVector
	rng       *rand.Rand
}

type storedVector struct {
	rec      model.VectorRecord
	centroid int
}

// IVFConfig configures an IVFIndex.
type IVFConfig struct {
	Dim    int
	Metric Metric
	// NList is the number of coarse centroids (partitions).
	NList int
	// NProbe is how many of the closest centroids are scanned per search.
	NProbe int
}

// NewIVFIndex builds an empty IVFIndex. Centroids are populated lazily
// as records are inserted (the first NList inserts become the initial
// centroids); call Rebuild periodically to re-cluster as the corpus
// grows.
func NewIVFIndex(cfg IVFConfig) *IVFIndex {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.NList <= 0 {
		cfg.NList = 16
	}
	if cfg.NProbe <= 0 || cfg.NProbe > cfg.NList {
		cfg.NProbe = cfg.NList
	}
	return &IVFIndex{
		dim:     cfg.Dim,
		metric:  cfg.Metric,
		nlist:   cfg.NList,
		nprobe:  cfg.NProbe,
		lists:   make([][]string, cfg.NList),
		records: make(map[string]storedVector),
		rng:     rand.New(rand.NewSource(1)),
	}
}

func (idx *IVFIndex) nearestCentroid(v []float32) int {
	best, bestScore := -1, -1.0
	for i, c := range idx.centroids {
		s := dot(v, c)
		if s > bestScore {
			bestScore, best = s, i
		}
	}
	return best
}

func (idx *IVFIndex) Insert(ctx context.Context, rec model.VectorRecord) error {
	if len(rec.Embedding) != idx.dim {
		return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(rec.Embedding), idx.dim)
	}
	if idx.metric == MetricCosine {
		rec.Embedding = normalize(rec.Embedding)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	var centroid int
	if len(idx.centroids) < idx.nlist {
		centroid = len(idx.centroids)
		idx.centroids = append(idx.centroids, append([]float32(nil), rec.Embedding...))
	} else {
		centroid = idx.nearestCentroid(rec.Embedding)
	}

	idx.records[rec.ID] = storedVector{rec: rec, centroid: centroid}
	idx.lists[centroid] = append(idx.lists[centroid], rec.ID)
	return nil
}

func (idx *IVFIndex) Update(ctx context.Context, rec model.VectorRecord) error {
	if err := idx.Delete(ctx, rec.ID); err != nil {
		return err
	}
	return idx.Insert(ctx, rec)
}

func (idx *IVFIndex) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	sv, ok := idx.records[id]
	if !ok {
		return nil
	}
	delete(idx.records, id)
	list := idx.lists[sv.centroid]
	for i, rid := range list {
		if rid == id {
			idx.lists[sv.centroid] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (idx *IVFIndex) Get(ctx context.Context, id string) (model.VectorRecord, bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	sv, ok := idx.records[id]
	return sv.rec, ok, nil
}

// Search probes the nprobe centroids closest to the query and scores
// only the records assigned to them — an approximation of exhaustive
// search that trades recall for speed as the corpus grows. When those
// lists hold fewer than K candidates, the next-closest lists are probed
// in turn until K are found or every list has been scanned.
func (idx *IVFIndex) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if len(req.Query) != idx.dim {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(req.Query), idx.dim)
	}
	query := req.Query
	if idx.metric == MetricCosine {
		query = normalize(query)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type centroidDist struct {
		idx   int
		score float64
	}
	dists := make([]centroidDist, len(idx.centroids))
	for i, c := range idx.centroids {
		dists[i] = centroidDist{i, dot(query, c)}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].score > dists[j].score })

	probe := idx.nprobe
	if probe > len(dists) {
		probe = len(dists)
	}

	results := make([]SearchResult, 0)
	for i, cd := range dists {
		// Past the nprobe closest lists, keep probing only while fewer
		// than K candidates have been found.
		if i >= probe && (req.K <= 0 || len(results) >= req.K) {
			break
		}
		for _, id := range idx.lists[cd.idx] {
			sv := idx.records[id]
			score := idx.scoreVector(query, sv.rec.Embedding)
			if !PassesMinScore(req, score) {
				continue
			}
			results = append(results, SearchResult{Record: sv.rec, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})

	k := req.K
	if k <= 0 || k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (idx *IVFIndex) scoreVector(query, embedding []float32) float64 {
	switch idx.metric {
	case MetricEuclidean:
		return 1.0 / (1.0 + euclidean(query, embedding))
	case MetricDot:
		return dot(query, embedding)
	default:
		return dot(query, embedding)
	}
}

// Rebuild re-clusters all stored vectors from scratch using a small
// fixed number of k-means iterations, improving centroid quality after
// many inserts have skewed the original seed centroids.
func (idx *IVFIndex) Rebuild(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	all := make([]model.VectorRecord, 0, len(idx.records))
	for _, sv := range idx.records {
		all = append(all, sv.rec)
	}
	if len(all) == 0 {
		return nil
	}
	nlist := idx.nlist
	if nlist > len(all) {
		nlist = len(all)
	}

	centroids := make([][]float32, nlist)
	perm := idx.rng.Perm(len(all))
	for i := 0; i < nlist; i++ {
		centroids[i] = append([]float32(nil), all[perm[i]].Embedding...)
	}

	const iterations = 5
	assignment := make([]int, len(all))
	for iter := 0; iter < iterations; iter++ {
		for i, rec := range all {
			best, bestScore := 0, -1.0
			for c, centroid := range centroids {
				s := dot(rec.Embedding, centroid)
				if s > bestScore {
					bestScore, best = s, c
				}
			}
			assignment[i] = best
		}
		sums := make([][]float64, nlist)
		counts := make([]int, nlist)
		for c := range sums {
			sums[c] = make([]float64, idx.dim)
		}
		for i, rec := range all {
			c := assignment[i]
			counts[c]++
			for d, v := range rec.Embedding {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			updated := make([]float32, idx.dim)
			for d := range updated {
				updated[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = normalize(updated)
		}
	}

	newLists := make([][]string, nlist)
	newRecords := make(map[string]storedVector, len(all))
	for i, rec := range all {
		c := assignment[i]
		newLists[c] = append(newLists[c], rec.ID)
		newRecords[rec.ID] = storedVector{rec: rec, centroid: c}
	}

	idx.centroids = centroids
	idx.lists = newLists
	idx.records = newRecords
	idx.nlist = nlist
	if idx.nprobe > nlist {
		idx.nprobe = nlist
	}
	return nil
}

func (idx *IVFIndex) Stats(ctx context.Context) (map[string]any, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return map[string]any{
		"backend":    "ivf",
		"index_type": "ivf",
		"metric":     string(idx.metric),
		"dim":        idx.dim,
		"total":      len(idx.records),
		"count":      len(idx.records),
		"nlist":      len(idx.centroids),
		"nprobe":     idx.nprobe,
	}, nil
}

func (idx *IVFIndex) Close() error { return nil }
