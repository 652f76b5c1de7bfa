package llm

import (
	"fmt"
	"strings"
)

const biasAnalysisPreamble = `You are a media-bias analyst. You will be given a set of news articles that cover the same event, each from a different outlet with a known political leaning. Assess each article independently.

Respond with JSON only, in exactly this shape:
{
  "mostUnbiasedArticleId": <int>,
  "neutralSummary": "<a neutral 2-3 sentence summary of the event>",
  "biasSummary": "<1-2 sentences on how coverage differs across outlets>",
  "articles": [
    {"articleId": <int>, "biasScore": <0-10, 10 = perfectly neutral>, "leftBias": <0-10>, "rightBias": <0-10>, "sensationalism": <0-10>, "reasoning": "<one sentence on framing>"}
  ]
}

Score every article listed below. Do not add commentary outside the JSON.`

const similarityPreamble = `You are comparing two news articles to decide whether they report the same underlying event. Ignore outlet style and opinion; judge the event only.

Respond with JSON only:
{"similarity": <0.0-1.0>, "isMatch": <true|false>, "reasoning": "<one sentence>"}`

// buildBiasAnalysisPrompt renders the cluster's members for the analysis call.
func buildBiasAnalysisPrompt(articles []ArticleInput) string {
	var sb strings.Builder

	sb.WriteString(biasAnalysisPreamble)
	sb.WriteString("\n\nArticles:\n")

	for _, a := range articles {
		sb.WriteString(fmt.Sprintf("\n[articleId: %d] source: %s (leaning: %s)\ntitle: %s\nsummary: %s\n",
			a.ID, a.SourceName, a.SourceBias, a.Title, a.Summary))
	}

	return sb.String()
}

// buildSimilarityPrompt renders the pair for the similarity judgment call.
func buildSimilarityPrompt(a, b ArticleInput) string {
	var sb strings.Builder

	sb.WriteString(similarityPreamble)
	sb.WriteString("\n\nArticle A:\ntitle: ")
	sb.WriteString(a.Title)
	sb.WriteString("\nsummary: ")
	sb.WriteString(a.Summary)
	sb.WriteString("\n\nArticle B:\ntitle: ")
	sb.WriteString(b.Title)
	sb.WriteString("\nsummary: ")
	sb.WriteString(b.Summary)

	return sb.String()
}
