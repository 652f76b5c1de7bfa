// Package domain defines the shared entities of the aggregation pipeline:
// sources, articles, clusters, coverage records and blindspots.
package domain

import "time"

// Bias is the political-leaning label an operator assigns to a source.
type Bias string

// Bias labels. Sources tagged BiasUnknown are skipped by ingestion and
// clustering until an operator classifies them.
const (
	BiasUnknown Bias = "unknown"
	BiasLeft    Bias = "left"
	BiasCenter  Bias = "center"
	BiasRight   Bias = "right"
)

// ParseBias maps a string to a Bias label, defaulting to BiasUnknown.
func ParseBias(s string) Bias {
	switch Bias(s) {
	case BiasLeft, BiasCenter, BiasRight:
		return Bias(s)
	default:
		return BiasUnknown
	}
}

// Known returns true for left, center and right.
func (b Bias) Known() bool {
	return b == BiasLeft || b == BiasCenter || b == BiasRight
}

// Source is a news outlet polled for articles.
type Source struct {
	ID            int64
	Name          string
	URL           string
	FeedURL       string
	Bias          Bias
	LastFetchedAt *time.Time
}

// Article is one entry fetched from a source's feed. Bias is denormalized
// from the source at insertion time and rewritten only by the operator
// reseed path.
type Article struct {
	ID               int64
	SourceID         int64
	GroupID          *int64
	Title            string
	Link             string
	Summary          string
	PublishedAt      time.Time
	ImageURL         string
	Bias             Bias
	Indexed          bool
	BiasAnalyzed     bool
	PoliticalLeaning *float32
	Sensationalism   *float32
	FramingSummary   string

	// SourceName is populated on reads that join the source row.
	SourceName string
}

// Cluster is a group of articles judged to cover the same underlying event,
// drawn from distinct sources.
type Cluster struct {
	ID                    int64
	Name                  string
	MasterArticleID       int64
	MostUnbiasedArticleID *int64
	NeutralSummary        string
	BiasSummary           string
	AnalysisComplete      bool
	CreatedAt             time.Time
}

// User is a reader with blindspot tracking.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Rating is a per-user article rating.
type Rating struct {
	ID        string
	UserID    string
	ArticleID int64
	Rating    int
}

// AnalysisJob status values.
const (
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// AnalysisJob records one bias-analysis attempt for a cluster.
type AnalysisJob struct {
	ID         int64
	GroupID    int64
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}
