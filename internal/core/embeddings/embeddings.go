package embeddings

import (
	"context"
	"math"

	"github.com/rs/zerolog"
)

// Embedder is the vector backend, satisfied by the LLM client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service turns article text into fixed-dimension vectors. Failures degrade
// to an empty vector; callers treat empty as "no signal" and fall through to
// the next cascade stage.
type Service struct {
	embedder   Embedder
	dimensions int
	logger     *zerolog.Logger
}

func NewService(embedder Embedder, dimensions int, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Service{
		embedder:   embedder,
		dimensions: dimensions,
		logger:     logger,
	}
}

// EmbedArticle embeds title and summary as one text, padded to the service
// dimension. Returns nil on failure or when no backend is configured.
func (s *Service) EmbedArticle(ctx context.Context, title, summary string) []float32 {
	if s.embedder == nil {
		return nil
	}

	text := title
	if summary != "" {
		text = title + " " + summary
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn().Err(err).Str("title", title).Msg("embedding failed")

		return nil
	}

	return PadToTargetDimensions(vec, s.dimensions)
}

// Dimensions returns the target vector dimension.
func (s *Service) Dimensions() int {
	return s.dimensions
}

// PadToTargetDimensions pads or truncates a vector to the target dimension.
// Zero-padding is safe for cosine similarity because zero components do not
// affect the angle between vectors.
func PadToTargetDimensions(vec []float32, target int) []float32 {
	if len(vec) == target {
		return vec
	}

	if len(vec) > target {
		return vec[:target]
	}

	padded := make([]float32, target)
	copy(padded, vec)

	return padded
}

// CosineSimilarity returns the cosine of the angle between a and b. Empty or
// mismatched vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
