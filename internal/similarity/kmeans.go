package similarity

import (
	"sort"

	"github.com/blueband-db/blueband/internal/storage"
)

// maxLloydIterations bounds the refinement loop; the index is rebuilt per
// query so a tight cap keeps the coarse pass cheap.
const maxLloydIterations = 10

// coarseIndex is the per-query k-means index: centroids plus the vector
// indices assigned to each cluster.
type coarseIndex struct {
	centroids [][]float32
	clusters  [][]int
	vectors   []storage.Vector
}

// buildIndex clusters the vectors into at most targetClusters groups using
// k-means++ seeding and Lloyd's iterations.
func buildIndex(vectors []storage.Vector, targetClusters int) *coarseIndex {
	if len(vectors) == 0 || targetClusters <= 0 {
		return &coarseIndex{vectors: vectors}
	}

	k := targetClusters
	if k > len(vectors) {
		k = len(vectors)
	}

	centroids := seedCentroids(vectors, k)
	assignments := make([]int, len(vectors))

	for iter := 0; iter < maxLloydIterations; iter++ {
		changed := false

		for i := range vectors {
			best := 0
			bestDist := float32(0)
			first := true
			for c := range centroids {
				dist := squaredEuclidean(vectors[i].Embedding, centroids[c])
				if first || dist < bestDist {
					first = false
					bestDist = dist
					best = c
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed {
			break
		}

		centroids = updateCentroids(vectors, assignments, centroids)
	}

	clusters := make([][]int, k)
	for i, c := range assignments {
		clusters[c] = append(clusters[c], i)
	}

	return &coarseIndex{
		centroids: centroids,
		clusters:  clusters,
		vectors:   vectors,
	}
}

// seedCentroids picks k centroids with the k-means++ farthest-first rule:
// start from the first vector, then repeatedly take the vector maximising
// the minimum distance to the chosen set.
func seedCentroids(vectors []storage.Vector, k int) [][]float32 {
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, cloneEmbedding(vectors[0].Embedding))

	for len(centroids) < k {
		bestIdx := 0
		var maxMinDist float32

		for i := range vectors {
			minDist := squaredEuclidean(vectors[i].Embedding, centroids[0])
			for _, c := range centroids[1:] {
				if d := squaredEuclidean(vectors[i].Embedding, c); d < minDist {
					minDist = d
				}
			}
			if minDist > maxMinDist {
				maxMinDist = minDist
				bestIdx = i
			}
		}

		centroids = append(centroids, cloneEmbedding(vectors[bestIdx].Embedding))
	}

	return centroids
}

// updateCentroids recomputes each centroid as the mean of its members;
// clusters with no members keep their previous centroid.
func updateCentroids(vectors []storage.Vector, assignments []int, previous [][]float32) [][]float32 {
	k := len(previous)
	dim := len(vectors[0].Embedding)

	sums := make([][]float32, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float32, dim)
	}

	for i := range vectors {
		c := assignments[i]
		emb := vectors[i].Embedding
		if len(emb) != dim {
			continue
		}
		for d, v := range emb {
			sums[c][d] += v
		}
		counts[c]++
	}

	centroids := make([][]float32, k)
	for c := range centroids {
		if counts[c] == 0 {
			centroids[c] = previous[c]
			continue
		}
		n := float32(counts[c])
		for d := range sums[c] {
			sums[c][d] /= n
		}
		centroids[c] = sums[c]
	}
	return centroids
}

// searchApproximate ranks centroids by cosine similarity to the query (the
// same metric as the final scoring), accumulates clusters until enough
// candidates are in play, then scores those candidates exactly.
func (idx *coarseIndex) searchApproximate(query []float32, cfg Config) ([]scored, error) {
	if len(idx.centroids) == 0 {
		return nil, nil
	}

	queryNorm, err := CalculateNorm(query)
	if err != nil {
		return nil, err
	}
	candidateCount := int(float32(cfg.MaxResults) * cfg.CandidateFactor)

	type clusterScore struct {
		score   float64
		cluster int
	}
	ranked := make([]clusterScore, 0, len(idx.centroids))
	for c, centroid := range idx.centroids {
		centroidNorm, err := CalculateNorm(centroid)
		if err != nil {
			continue
		}
		score, ok := CosineSimilarity(query, centroid, queryNorm, centroidNorm)
		if !ok {
			continue
		}
		ranked = append(ranked, clusterScore{score: score, cluster: c})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	var hits []scored
	total := 0
	for _, cs := range ranked {
		for _, vecIdx := range idx.clusters[cs.cluster] {
			v := &idx.vectors[vecIdx]
			if len(v.Embedding) != len(query) {
				continue
			}
			score, ok := CosineSimilarity(query, v.Embedding, queryNorm, v.Norm)
			if !ok {
				continue
			}
			if cfg.MinScore != nil && score < *cfg.MinScore {
				continue
			}
			hits = append(hits, scored{score: score, vector: v})
		}

		total += len(idx.clusters[cs.cluster])
		if total >= candidateCount {
			break
		}
	}

	sortHits(hits)
	if len(hits) > cfg.MaxResults {
		hits = hits[:cfg.MaxResults]
	}
	return hits, nil
}

func squaredEuclidean(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func cloneEmbedding(e []float32) []float32 {
	out := make([]float32, len(e))
	copy(out, e)
	return out
}
