// Package qdrant is a minimal REST client implementing the search index
// interface against a Qdrant collection. It assumes cosine distance and
// creates the collection and a full-text payload index on demand.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"ragpipe/internal/domain"
	"ragpipe/internal/index"
)

// Config configures the Qdrant client. The API key is read from the
// environment variable named by APIKeyEnv and may be empty for a local
// unauthenticated instance.
type Config struct {
	URL        string
	APIKeyEnv  string
	Collection string
	Timeout    time.Duration
}

// Index talks to one Qdrant collection.
type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// New creates a Qdrant-backed index.
func New(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Index{
		url:        cfg.URL,
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureSchema creates the collection and the full-text index on the text
// payload field if absent. Both calls are idempotent: Qdrant answers with
// a conflict for an existing collection, which is treated as success.
func (ix *Index) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	collection := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := ix.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", ix.url, ix.collection), collection, nil, true); err != nil {
		return err
	}
	textIndex := map[string]any{
		"field_name": "text",
		"field_schema": map[string]any{
			"type":      "text",
			"tokenizer": "word",
			"lowercase": true,
		},
	}
	return ix.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/index?wait=true", ix.url, ix.collection), textIndex, nil, true)
}

// Upsert writes records, replacing points with the same ID. Qdrant point
// IDs must be UUIDs, so the chunk ID is mapped to a deterministic
// SHA1-based UUID and carried verbatim in the payload.
func (ix *Index) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     pointID(r.Chunk.ID),
			"vector": r.Vector,
			"payload": map[string]any{
				"chunk_id": r.Chunk.ID,
				"document": r.Chunk.Document,
				"index":    r.Chunk.Index,
				"text":     r.Chunk.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return ix.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", ix.url, ix.collection), body, nil, false)
}

// HybridSearch runs a vector search and a full-text scroll, then fuses
// the two rankings with reciprocal rank fusion.
func (ix *Index) HybridSearch(ctx context.Context, query string, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	vecRank, err := ix.vectorSearch(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	lexRank, err := ix.textScroll(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if len(vecRank) == 0 && len(lexRank) == 0 {
		return nil, nil
	}
	return index.Fuse(topK, vecRank, lexRank), nil
}

// DeleteByDocument removes all points whose payload names the document.
func (ix *Index) DeleteByDocument(ctx context.Context, document string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document", "match": map[string]any{"value": document}},
			},
		},
	}
	return ix.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", ix.url, ix.collection), body, nil, false)
}

func (ix *Index) vectorSearch(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	err := ix.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", ix.url, ix.collection), req, &resp, false)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toResults(resp.Result), nil
}

func (ix *Index) textScroll(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	req := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "text", "match": map[string]any{"text": query}},
			},
		},
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	err := ix.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/scroll", ix.url, ix.collection), req, &resp, false)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toResults(resp.Result.Points), nil
}

type scoredPoint struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func toResults(points []scoredPoint) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(points))
	for _, p := range points {
		chunk := domain.Chunk{}
		if v, ok := p.Payload["chunk_id"].(string); ok {
			chunk.ID = v
		}
		if v, ok := p.Payload["document"].(string); ok {
			chunk.Document = v
		}
		if v, ok := p.Payload["index"].(float64); ok {
			chunk.Index = int(v)
		}
		if v, ok := p.Payload["text"].(string); ok {
			chunk.Text = v
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Score: p.Score})
	}
	return results
}

// pointID maps a chunk ID to a deterministic UUID accepted by Qdrant.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (ix *Index) do(ctx context.Context, method, url string, body, out any, conflictOK bool) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if ix.apiKey != "" {
		req.Header.Set("api-key", ix.apiKey)
	}
	resp, err := ix.client.Do(req)
	if err != nil {
		return &domain.TransientError{Op: "qdrant " + method, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		if conflictOK && resp.StatusCode == http.StatusConflict {
			return nil
		}
		return classify(method, url, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func classify(method, url string, status int) error {
	err := fmt.Errorf("qdrant %s %s failed: %d", method, url, status)
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return &domain.TransientError{Op: "qdrant " + method, Err: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.ConfigError{Key: "qdrant api key", Reason: err.Error()}
	case status == http.StatusNotFound:
		return fmt.Errorf("%v: %w", err, domain.ErrNotFound)
	}
	return err
}
