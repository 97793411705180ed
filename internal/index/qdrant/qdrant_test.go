package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) *Index {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL, Collection: "docs"})
}

func okResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": result})
}

func TestPointID(t *testing.T) {
	t.Run("is deterministic and a valid UUID", func(t *testing.T) {
		a := pointID("doc.txt:0")
		b := pointID("doc.txt:0")
		assert.Equal(t, a, b)
		_, err := uuid.Parse(a)
		assert.NoError(t, err)
	})

	t.Run("differs per chunk", func(t *testing.T) {
		assert.NotEqual(t, pointID("doc.txt:0"), pointID("doc.txt:1"))
	})
}

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("creates collection and text index", func(t *testing.T) {
		var paths []string
		ix := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.Method+" "+r.URL.Path)
			okResult(w, true)
		})
		require.NoError(t, ix.EnsureSchema(ctx, 1536))
		require.Len(t, paths, 2)
		assert.Equal(t, "PUT /collections/docs", paths[0])
		assert.Equal(t, "PUT /collections/docs/index", paths[1])
	})

	t.Run("an existing collection conflict is treated as success", func(t *testing.T) {
		ix := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})
		assert.NoError(t, ix.EnsureSchema(ctx, 1536))
	})

	t.Run("rejects non-positive dimension", func(t *testing.T) {
		ix := New(Config{URL: "http://127.0.0.1:1", Collection: "docs"})
		assert.Error(t, ix.EnsureSchema(ctx, 0))
	})
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("sends UUID point IDs with the chunk in the payload", func(t *testing.T) {
		var got struct {
			Points []struct {
				ID      string         `json:"id"`
				Vector  []float32      `json:"vector"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		}
		ix := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			okResult(w, true)
		})
		records := []domain.Record{{
			Chunk:  domain.Chunk{ID: "doc.txt:0", Document: "doc.txt", Text: "hello", Index: 0},
			Vector: []float32{1, 0},
		}}
		require.NoError(t, ix.Upsert(ctx, records))
		require.Len(t, got.Points, 1)
		assert.Equal(t, pointID("doc.txt:0"), got.Points[0].ID)
		assert.Equal(t, "doc.txt:0", got.Points[0].Payload["chunk_id"])
		assert.Equal(t, "doc.txt", got.Points[0].Payload["document"])
		assert.Equal(t, "hello", got.Points[0].Payload["text"])
	})

	t.Run("no records is a no-op without a request", func(t *testing.T) {
		ix := New(Config{URL: "http://127.0.0.1:1", Collection: "docs"})
		assert.NoError(t, ix.Upsert(ctx, nil))
	})
}

func TestHybridSearch(t *testing.T) {
	ctx := context.Background()

	point := func(chunkID, document, text string, score float64) map[string]any {
		return map[string]any{
			"score": score,
			"payload": map[string]any{
				"chunk_id": chunkID,
				"document": document,
				"index":    0,
				"text":     text,
			},
		}
	}

	t.Run("fuses vector and text rankings", func(t *testing.T) {
		ix := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/collections/docs/points/search":
				okResult(w, []any{
					point("a:0", "a", "alpha", 0.9),
					point("b:0", "b", "beta", 0.5),
				})
			case "/collections/docs/points/scroll":
				okResult(w, map[string]any{"points": []any{
					point("b:0", "b", "beta", 0),
				}})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		})
		results, err := ix.HybridSearch(ctx, "beta", []float32{1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "b:0", results[0].Chunk.ID)
	})

	t.Run("a missing collection yields an empty result", func(t *testing.T) {
		ix := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		results, err := ix.HybridSearch(ctx, "anything", []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("server errors are transient", func(t *testing.T) {
		ix := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := ix.HybridSearch(ctx, "anything", []float32{1, 0}, 5)
		require.Error(t, err)
		assert.True(t, domain.IsTransient(err))
	})

	t.Run("bad credentials are a fatal config error", func(t *testing.T) {
		ix := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := ix.HybridSearch(ctx, "anything", []float32{1, 0}, 5)
		require.Error(t, err)
		assert.True(t, domain.IsFatal(err))
	})
}

func TestDeleteByDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("filters on the document payload field", func(t *testing.T) {
		var got map[string]any
		ix := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/collections/docs/points/delete", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			okResult(w, true)
		})
		require.NoError(t, ix.DeleteByDocument(ctx, "doc.txt"))
		body, err := json.Marshal(got)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"value":"doc.txt"`)
	})
}

func TestAPIKeyHeader(t *testing.T) {
	t.Setenv("RAGPIPE_TEST_QDRANT_KEY", "qd-secret")
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		okResult(w, true)
	}))
	defer srv.Close()
	ix := New(Config{URL: srv.URL, APIKeyEnv: "RAGPIPE_TEST_QDRANT_KEY", Collection: "docs"})
	require.NoError(t, ix.DeleteByDocument(context.Background(), "doc.txt"))
	assert.Equal(t, "qd-secret", gotKey)
}
