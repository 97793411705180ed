package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
)

func result(id string, score float64) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{ID: id, Document: "doc", Text: id}, Score: score}
}

func TestFuse(t *testing.T) {
	t.Run("empty rankings fuse to empty", func(t *testing.T) {
		assert.Empty(t, Fuse(5))
		assert.Empty(t, Fuse(5, nil, nil))
	})

	t.Run("chunk present in both rankings outranks single-ranking chunks", func(t *testing.T) {
		vec := []domain.SearchResult{result("a", 0.9), result("b", 0.8)}
		lex := []domain.SearchResult{result("c", 3.0), result("b", 2.0)}
		fused := Fuse(5, vec, lex)
		require.Len(t, fused, 3)
		assert.Equal(t, "b", fused[0].Chunk.ID)
	})

	t.Run("scores are non-increasing", func(t *testing.T) {
		vec := []domain.SearchResult{result("a", 1), result("b", 0.5), result("c", 0.1)}
		lex := []domain.SearchResult{result("b", 2), result("d", 1)}
		fused := Fuse(10, vec, lex)
		for i := 1; i < len(fused); i++ {
			assert.GreaterOrEqual(t, fused[i-1].Score, fused[i].Score)
		}
	})

	t.Run("truncates to topK", func(t *testing.T) {
		vec := []domain.SearchResult{result("a", 1), result("b", 0.5), result("c", 0.1)}
		fused := Fuse(2, vec)
		assert.Len(t, fused, 2)
	})

	t.Run("ties break on chunk ID", func(t *testing.T) {
		// same rank in disjoint rankings yields equal fused scores
		r1 := []domain.SearchResult{result("z", 1)}
		r2 := []domain.SearchResult{result("a", 1)}
		fused := Fuse(5, r1, r2)
		require.Len(t, fused, 2)
		assert.Equal(t, "a", fused[0].Chunk.ID)
		assert.Equal(t, "z", fused[1].Chunk.ID)
	})
}
