// Package index provides ranking fusion shared by the search index
// implementations. Hybrid search merges a lexical and a vector ranking
// into one result list; callers of the Index interface never see the
// individual rankings.
package index

import (
	"sort"

	"ragpipe/internal/domain"
)

// rrfK dampens the contribution of lower ranks in reciprocal rank fusion.
const rrfK = 60

// Fuse merges rankings (each ordered best-first) with reciprocal rank
// fusion and returns at most topK results ordered by descending fused
// score. Ties break on chunk ID for determinism.
func Fuse(topK int, rankings ...[]domain.SearchResult) []domain.SearchResult {
	if topK <= 0 {
		topK = 5
	}
	scores := make(map[string]float64)
	chunks := make(map[string]domain.Chunk)
	for _, ranking := range rankings {
		for rank, r := range ranking {
			scores[r.Chunk.ID] += 1.0 / float64(rrfK+rank+1)
			chunks[r.Chunk.ID] = r.Chunk
		}
	}
	fused := make([]domain.SearchResult, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, domain.SearchResult{Chunk: chunks[id], Score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Chunk.ID < fused[j].Chunk.ID
	})
	if topK < len(fused) {
		fused = fused[:topK]
	}
	return fused
}
