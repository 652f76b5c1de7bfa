// Package keywords derives topic, keyword and entity bags from article text
// and scores article pairs with a weighted Jaccard composite. It is the
// cheap first stage of the clustering cascade.
package keywords

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Composite weights and threshold.
const (
	weightKeywords = 0.3
	weightTopics   = 0.4
	weightEntities = 0.3

	partialEntityWeight = 0.5

	// DefaultThreshold is the minimum composite score for a candidate pair.
	DefaultThreshold = 0.3
)

var (
	quotedPhrasePattern = regexp.MustCompile(`"([^"]{3,80})"`)
	moneyPattern        = regexp.MustCompile(`\$[\d,]+(?:\.\d+)?\s*(?:million|billion|trillion)?`)
	datePattern         = regexp.MustCompile(`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}(?:,\s*\d{4})?\b`)
	capitalizedSpan     = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
	titledPersonPattern *regexp.Regexp
	wordPattern         = regexp.MustCompile(`[a-z']+`)

	// caseFolder handles the accented names and quotes wire feeds carry,
	// which ASCII lowercasing would leave unmatched.
	caseFolder = cases.Fold()
)

func init() {
	escaped := make([]string, len(personTitles))
	for i, title := range personTitles {
		escaped[i] = regexp.QuoteMeta(title)
	}

	// Case-insensitivity is scoped to the title so the name capture stays
	// case-sensitive and stops before the following lowercase word.
	titledPersonPattern = regexp.MustCompile(`\b(?i:` + strings.Join(escaped, "|") + `)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
}

// Profile is the extracted signature of one article.
type Profile struct {
	Topics   map[string]bool
	Keywords map[string]bool
	Entities map[string]bool
}

// Extract builds the profile for an article's title and summary.
func Extract(title, summary string) Profile {
	text := title + " " + summary
	folded := caseFolder.String(text)

	return Profile{
		Topics:   extractTopics(folded),
		Keywords: extractKeywords(folded),
		Entities: extractEntities(text, folded),
	}
}

func extractTopics(folded string) map[string]bool {
	topics := make(map[string]bool)

	for topic, vocabulary := range topicVocabulary {
		for _, kw := range vocabulary {
			if containsWord(folded, kw) {
				topics[topic] = true

				break
			}
		}
	}

	return topics
}

// extractKeywords collects matched vocabulary and event keywords, which
// anchor pairs to the same occurrence rather than the same beat.
func extractKeywords(folded string) map[string]bool {
	kws := make(map[string]bool)

	for _, vocabulary := range topicVocabulary {
		for _, kw := range vocabulary {
			if containsWord(folded, kw) {
				kws[kw] = true
			}
		}
	}

	for _, kw := range eventKeywords {
		if containsWord(folded, kw) {
			kws[kw] = true
		}
	}

	return kws
}

func extractEntities(text, folded string) map[string]bool {
	entities := make(map[string]bool)

	for _, org := range knownOrganizations {
		if containsWord(folded, org) {
			entities[org] = true
		}
	}

	for _, place := range knownPlaces {
		if containsWord(folded, place) {
			entities[place] = true
		}
	}

	for _, m := range titledPersonPattern.FindAllStringSubmatch(text, -1) {
		entities[strings.ToLower(m[1])] = true
	}

	for _, m := range quotedPhrasePattern.FindAllStringSubmatch(text, -1) {
		entities[strings.ToLower(m[1])] = true
	}

	for _, m := range moneyPattern.FindAllString(text, -1) {
		entities[strings.ToLower(strings.TrimSpace(m))] = true
	}

	for _, m := range datePattern.FindAllString(text, -1) {
		entities[strings.ToLower(m)] = true
	}

	for _, m := range capitalizedSpan.FindAllString(text, -1) {
		entities[strings.ToLower(m)] = true
	}

	return entities
}

// containsWord reports a whole-word (or whole-phrase) match.
func containsWord(folded, term string) bool {
	idx := 0

	for {
		pos := strings.Index(folded[idx:], term)
		if pos < 0 {
			return false
		}

		start := idx + pos
		end := start + len(term)

		beforeOK := start == 0 || !isWordChar(folded[start-1])
		afterOK := end == len(folded) || !isWordChar(folded[end])

		if beforeOK && afterOK {
			return true
		}

		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '\''
}

// CompositeScore scores a pair of profiles in [0,1]:
// 0.3*J(keywords) + 0.4*J(topics) + 0.3*entityScore, where entityScore is
// exact Jaccard plus half the partial-overlap Jaccard.
func CompositeScore(a, b Profile) float64 {
	score := weightKeywords*jaccard(a.Keywords, b.Keywords) +
		weightTopics*jaccard(a.Topics, b.Topics) +
		weightEntities*entityScore(a.Entities, b.Entities)

	if score > 1 {
		score = 1
	}

	return score
}

// Matches reports whether the pair clears the threshold.
func Matches(a, b Profile, threshold float64) bool {
	return CompositeScore(a, b) >= threshold
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0

	for k := range a {
		if b[k] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection

	return float64(intersection) / float64(union)
}

// entityScore rewards exact matches fully and token-level overlaps at half
// weight, so "President Smith" still counts against "John Smith".
func entityScore(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	exact := jaccard(a, b)

	partial := 0

	for ea := range a {
		if b[ea] {
			continue
		}

		for eb := range b {
			if a[eb] {
				continue
			}

			if sharesToken(ea, eb) {
				partial++

				break
			}
		}
	}

	union := len(a) + len(b)
	score := exact + partialEntityWeight*float64(partial)/float64(union)

	if score > 1 {
		score = 1
	}

	return score
}

func sharesToken(a, b string) bool {
	tokensA := wordPattern.FindAllString(a, -1)
	tokensB := wordPattern.FindAllString(b, -1)

	for _, ta := range tokensA {
		if len(ta) < 4 {
			continue
		}

		for _, tb := range tokensB {
			if ta == tb {
				return true
			}
		}
	}

	return false
}
