package domain

import "time"

// Coverage is the derived per-cluster coverage record. It is a pure function
// of cluster membership and source bias and is always recomputed whole.
type Coverage struct {
	GroupID         int64
	LeftCount       int
	CenterCount     int
	RightCount      int
	TotalCount      int
	CoverageScore   int
	FirstReportedAt time.Time
	LastUpdatedAt   time.Time
}

// BlindspotKind identifies which perspective a cluster is missing.
type BlindspotKind string

// Blindspot kinds.
const (
	BlindspotLeftMissing   BlindspotKind = "left_missing"
	BlindspotCenterMissing BlindspotKind = "center_missing"
	BlindspotRightMissing  BlindspotKind = "right_missing"
	BlindspotUnderreported BlindspotKind = "underreported"
)

// Severity grades a blindspot.
type Severity string

// Blindspot severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Blindspot is a per-user advisory that a cluster omits one or more bias
// perspectives.
type Blindspot struct {
	ID               string
	UserID           string
	GroupID          int64
	Kind             BlindspotKind
	Severity         Severity
	Description      string
	SuggestedSources []string
	Dismissed        bool
	CreatedAt        time.Time
}
