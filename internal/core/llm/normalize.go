package llm

// normalizeBiasAnalysis clamps every score to its range and fills in
// articles the model skipped so callers always see a complete result.
func normalizeBiasAnalysis(analysis *BiasAnalysis, requested []ArticleInput) {
	seen := make(map[int64]bool, len(analysis.Articles))

	for i := range analysis.Articles {
		a := &analysis.Articles[i]
		a.BiasScore = clamp(a.BiasScore, 0, 10)
		a.LeftBias = clamp(a.LeftBias, 0, 10)
		a.RightBias = clamp(a.RightBias, 0, 10)
		a.Sensationalism = clamp(a.Sensationalism, 0, 10)
		seen[a.ArticleID] = true
	}

	for _, req := range requested {
		if seen[req.ID] {
			continue
		}

		analysis.Articles = append(analysis.Articles, ArticleBias{
			ArticleID: req.ID,
			BiasScore: 5,
			Reasoning: "not analysed",
		})
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
