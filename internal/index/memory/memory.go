// Package memory is an in-process search index used for tests and local
// runs without a Qdrant instance. Hybrid search fuses brute-force cosine
// similarity with token-overlap lexical matching.
package memory

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"ragpipe/internal/domain"
	"ragpipe/internal/index"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Index stores records in memory, keyed by chunk ID.
type Index struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]domain.Record
	order     []string
}

// New creates an empty in-memory index.
func New() *Index { return &Index{} }

// EnsureSchema sets the vector dimension. Calling it again with the same
// dimension is a no-op.
func (ix *Index) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.dimension != 0 && ix.dimension != dimension {
		return errors.New("index already created with a different dimension")
	}
	ix.dimension = dimension
	if ix.records == nil {
		ix.records = make(map[string]domain.Record)
	}
	return nil
}

// Upsert writes records, replacing any existing record with the same
// chunk ID.
func (ix *Index) Upsert(ctx context.Context, records []domain.Record) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.records == nil {
		ix.records = make(map[string]domain.Record)
	}
	for _, r := range records {
		if ix.dimension != 0 && len(r.Vector) != ix.dimension {
			return errors.New("vector dimension mismatch")
		}
		if _, exists := ix.records[r.Chunk.ID]; !exists {
			ix.order = append(ix.order, r.Chunk.ID)
		}
		ix.records[r.Chunk.ID] = r
	}
	return nil
}

// HybridSearch returns the fused lexical + vector ranking. An empty index
// yields an empty result, not an error.
func (ix *Index) HybridSearch(ctx context.Context, query string, vector []float32, topK int) ([]domain.SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.records) == 0 {
		return nil, nil
	}
	vecRank := ix.rankByVector(vector)
	lexRank := ix.rankByTokens(query)
	return index.Fuse(topK, vecRank, lexRank), nil
}

// DeleteByDocument removes all records derived from the given document.
func (ix *Index) DeleteByDocument(ctx context.Context, document string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	kept := ix.order[:0]
	for _, id := range ix.order {
		if ix.records[id].Chunk.Document == document {
			delete(ix.records, id)
			continue
		}
		kept = append(kept, id)
	}
	ix.order = kept
	return nil
}

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

func (ix *Index) rankByVector(vector []float32) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(ix.records))
	for _, id := range ix.order {
		r := ix.records[id]
		results = append(results, domain.SearchResult{Chunk: r.Chunk, Score: cosine(vector, r.Vector)})
	}
	sortDesc(results)
	return results
}

func (ix *Index) rankByTokens(query string) []domain.SearchResult {
	qset := tokenSet(query)
	if len(qset) == 0 {
		return nil
	}
	var results []domain.SearchResult
	for _, id := range ix.order {
		r := ix.records[id]
		score := ochiai(qset, r.Chunk.Text)
		if score > 0 {
			results = append(results, domain.SearchResult{Chunk: r.Chunk, Score: score})
		}
	}
	sortDesc(results)
	return results
}

func sortDesc(results []domain.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// ochiai is the token overlap coefficient |A∩B| / sqrt(|A||B|).
func ochiai(qset map[string]struct{}, text string) float64 {
	seen := tokenSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / (math.Sqrt(float64(len(qset))) * math.Sqrt(float64(len(seen))))
}
