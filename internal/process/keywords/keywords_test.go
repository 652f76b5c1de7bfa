package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTopics(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "politics",
			text:     "The Senate passed a bill after the election",
			expected: []string{"politics"},
		},
		{
			name:     "multiple buckets",
			text:     "Congress debates climate change emissions targets",
			expected: []string{"politics", "climate"},
		},
		{
			name:     "sports",
			text:     "The team clinched the championship in the playoffs",
			expected: []string{"sports"},
		},
		{
			name:     "none",
			text:     "A quiet day in the village",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := Extract(tt.text, "")

			assert.Len(t, profile.Topics, len(tt.expected))

			for _, topic := range tt.expected {
				assert.True(t, profile.Topics[topic], "expected topic %q", topic)
			}
		})
	}
}

func TestExtractEntities(t *testing.T) {
	profile := Extract(
		`President Smith announces $2 billion plan for Ukraine`,
		`The White House confirmed the package on January 15, 2026. "A historic investment" said an official.`,
	)

	assert.True(t, profile.Entities["smith"], "titled person")
	assert.False(t, profile.Entities["smith announces"], "name capture stops at the lowercase verb")
	assert.True(t, profile.Entities["white house"], "known organisation")
	assert.True(t, profile.Entities["ukraine"], "known place")
	assert.True(t, profile.Entities["a historic investment"], "quoted phrase")
	assert.True(t, profile.Entities["$2 billion"], "monetary amount")
	assert.True(t, profile.Entities["january 15, 2026"], "date")
}

func TestContainsWordBoundaries(t *testing.T) {
	assert.True(t, containsWord("the ai race", "ai"))
	assert.False(t, containsWord("the maid said", "ai"))
	assert.True(t, containsWord("white house staff", "white house"))
}

func TestCompositeScoreSameEvent(t *testing.T) {
	a := Extract("President announces climate policy", "The president unveiled new emissions targets at the White House")
	b := Extract("President announces sweeping climate policy", "New emissions rules announced by the president")

	score := CompositeScore(a, b)

	assert.Greater(t, score, DefaultThreshold)
	assert.True(t, Matches(a, b, DefaultThreshold))
}

func TestCompositeScoreUnrelated(t *testing.T) {
	a := Extract("Team wins championship game in overtime", "A thrilling playoffs finish for the league")
	b := Extract("Federal Reserve raises interest rate", "Inflation pressures push the market lower")

	score := CompositeScore(a, b)

	assert.Less(t, score, DefaultThreshold)
	assert.False(t, Matches(a, b, DefaultThreshold))
}

func TestCompositeScoreBounds(t *testing.T) {
	a := Extract("Congress passes budget bill", "The Senate vote followed weeks of debate over the deficit")

	assert.InDelta(t, 1.0, CompositeScore(a, a), 0.01)
	assert.Equal(t, 0.0, CompositeScore(a, Profile{}))
}

func TestEntityScorePartialOverlap(t *testing.T) {
	a := map[string]bool{"president smith": true}
	b := map[string]bool{"john smith": true}

	score := entityScore(a, b)

	assert.Greater(t, score, 0.0, "shared surname should count partially")
	assert.Less(t, score, 1.0)
}
