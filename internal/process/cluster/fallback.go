package cluster

import (
	"regexp"
	"strings"

	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/platform/config"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9']+`)

// fallbackSimilarity is the textual stand-in for embedding cosine when no
// provider is configured. The weighted mode blends title and summary
// Jaccard; the title mode uses title Jaccard alone.
func fallbackSimilarity(a, b domain.Article, mode string) float64 {
	titleSim := tokenJaccard(a.Title, b.Title)

	if mode == config.FallbackSimilarityTitle {
		return titleSim
	}

	return 0.6*titleSim + 0.4*tokenJaccard(a.Summary, b.Summary)
}

func tokenJaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0

	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection

	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]bool {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)

	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}

	return set
}
