package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vec []float32
	err error

	lastText string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.lastText = text

	return s.vec, s.err
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"empty", nil, nil, 0},
		{"mismatched dimensions", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestPadToTargetDimensions(t *testing.T) {
	t.Run("pads short vectors", func(t *testing.T) {
		padded := PadToTargetDimensions([]float32{1, 2}, 4)
		assert.Equal(t, []float32{1, 2, 0, 0}, padded)
	})

	t.Run("truncates long vectors", func(t *testing.T) {
		assert.Equal(t, []float32{1, 2}, PadToTargetDimensions([]float32{1, 2, 3}, 2))
	})

	t.Run("leaves exact vectors alone", func(t *testing.T) {
		vec := []float32{1, 2, 3}
		assert.Equal(t, vec, PadToTargetDimensions(vec, 3))
	})
}

func TestPaddingPreservesCosine(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{3, 2, 1}

	before := CosineSimilarity(a, b)
	after := CosineSimilarity(PadToTargetDimensions(a, 8), PadToTargetDimensions(b, 8))

	assert.InDelta(t, before, after, 1e-6)
}

func TestEmbedArticleJoinsTitleAndSummary(t *testing.T) {
	stub := &stubEmbedder{vec: []float32{1, 2}}
	svc := NewService(stub, 4, nil)

	vec := svc.EmbedArticle(context.Background(), "Title", "Summary")

	require.Equal(t, []float32{1, 2, 0, 0}, vec)
	assert.Equal(t, "Title Summary", stub.lastText)
}

func TestEmbedArticleDegradesToNil(t *testing.T) {
	stub := &stubEmbedder{err: errors.New("provider down")}
	svc := NewService(stub, 4, nil)

	assert.Nil(t, svc.EmbedArticle(context.Background(), "Title", "Summary"))
}

func TestEmbedArticleNoBackend(t *testing.T) {
	svc := NewService(nil, 4, nil)

	assert.Nil(t, svc.EmbedArticle(context.Background(), "Title", ""))
}
