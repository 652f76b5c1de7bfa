// Package coverage derives per-cluster coverage records and per-user
// blindspot advisories from cluster membership.
package coverage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianews/meridian/internal/core/domain"
)

// Blindspot window and thresholds.
const (
	blindspotWindow     = 7 * 24 * time.Hour
	blindspotMinMembers = 2
)

type store interface {
	GetClusterArticles(ctx context.Context, groupID int64) ([]domain.Article, error)
	UpsertCoverage(ctx context.Context, cov domain.Coverage) error
	ListClusterIDs(ctx context.Context) ([]int64, error)
	GetCoverage(ctx context.Context, groupID int64) (domain.Coverage, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	ActiveBlindspotExists(ctx context.Context, userID string, groupID int64) (bool, error)
	InsertBlindspot(ctx context.Context, b domain.Blindspot) error
	SourcesByBias(ctx context.Context, bias domain.Bias) ([]string, error)
}

// Tracker owns coverage records and blindspot emission.
type Tracker struct {
	store  store
	logger *zerolog.Logger
}

func NewTracker(store store, logger *zerolog.Logger) *Tracker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Tracker{store: store, logger: logger}
}

// Recompute derives the whole coverage record for a cluster from its current
// membership and writes it. Coverage is never patched incrementally.
func (t *Tracker) Recompute(ctx context.Context, groupID int64) (domain.Coverage, error) {
	articles, err := t.store.GetClusterArticles(ctx, groupID)
	if err != nil {
		return domain.Coverage{}, err
	}

	cov := Derive(groupID, articles, time.Now())

	if err := t.store.UpsertCoverage(ctx, cov); err != nil {
		return domain.Coverage{}, err
	}

	return cov, nil
}

// Derive computes a coverage record from cluster members. Coverage score is
// round(0.7*biasScore + 0.3*sourceDiversity) where biasScore counts which of
// the three leaning buckets are present and sourceDiversity is the ratio of
// distinct sources to members.
func Derive(groupID int64, articles []domain.Article, now time.Time) domain.Coverage {
	cov := domain.Coverage{
		GroupID:       groupID,
		TotalCount:    len(articles),
		LastUpdatedAt: now,
	}

	sources := make(map[int64]bool)

	for _, a := range articles {
		switch a.Bias {
		case domain.BiasLeft:
			cov.LeftCount++
		case domain.BiasCenter:
			cov.CenterCount++
		case domain.BiasRight:
			cov.RightCount++
		}

		sources[a.SourceID] = true

		if cov.FirstReportedAt.IsZero() || a.PublishedAt.Before(cov.FirstReportedAt) {
			cov.FirstReportedAt = a.PublishedAt
		}
	}

	if cov.TotalCount == 0 {
		return cov
	}

	buckets := 0
	for _, count := range []int{cov.LeftCount, cov.CenterCount, cov.RightCount} {
		if count > 0 {
			buckets++
		}
	}

	biasScore := 100 * float64(buckets) / 3

	diversity := float64(len(sources)) / float64(cov.TotalCount)
	if diversity > 1 {
		diversity = 1
	}

	sourceDiversity := 100 * diversity

	score := int(math.Round(0.7*biasScore + 0.3*sourceDiversity))

	if score < 0 {
		score = 0
	}

	if score > 100 {
		score = 100
	}

	cov.CoverageScore = score

	return cov
}

// RecomputeAll refreshes coverage for every cluster.
func (t *Tracker) RecomputeAll(ctx context.Context) error {
	groupIDs, err := t.store.ListClusterIDs(ctx)
	if err != nil {
		return err
	}

	for _, groupID := range groupIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := t.Recompute(ctx, groupID); err != nil {
			t.logger.Error().Err(err).Int64("group", groupID).Msg("coverage recompute failed")
		}
	}

	return nil
}

// DetectBlindspots sweeps clusters updated within the last week and emits
// advisories for every user. One missing leaning bucket is a medium
// "{bucket}_missing"; two or more is a high "underreported". An active
// advisory for the same user and cluster is never duplicated.
func (t *Tracker) DetectBlindspots(ctx context.Context) (int, error) {
	userIDs, err := t.store.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	if len(userIDs) == 0 {
		return 0, nil
	}

	groupIDs, err := t.store.ListClusterIDs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-blindspotWindow)
	emitted := 0

	for _, groupID := range groupIDs {
		if ctx.Err() != nil {
			return emitted, ctx.Err()
		}

		cov, err := t.store.GetCoverage(ctx, groupID)
		if err != nil {
			continue
		}

		if cov.LastUpdatedAt.Before(cutoff) || cov.TotalCount < blindspotMinMembers {
			continue
		}

		kind, severity, missing := classify(cov)
		if kind == "" {
			continue
		}

		suggested := t.suggestedSources(ctx, missing)

		for _, userID := range userIDs {
			exists, err := t.store.ActiveBlindspotExists(ctx, userID, groupID)
			if err != nil || exists {
				continue
			}

			b := domain.Blindspot{
				UserID:           userID,
				GroupID:          groupID,
				Kind:             kind,
				Severity:         severity,
				Description:      describe(kind, missing),
				SuggestedSources: suggested,
			}

			if err := t.store.InsertBlindspot(ctx, b); err != nil {
				t.logger.Error().Err(err).Int64("group", groupID).Str("user", userID).Msg("insert blindspot failed")

				continue
			}

			emitted++
		}
	}

	return emitted, nil
}

// classify maps a coverage record to a blindspot kind. Empty kind means the
// cluster covers all three leanings.
func classify(cov domain.Coverage) (domain.BlindspotKind, domain.Severity, []domain.Bias) {
	var missing []domain.Bias

	if cov.LeftCount == 0 {
		missing = append(missing, domain.BiasLeft)
	}

	if cov.CenterCount == 0 {
		missing = append(missing, domain.BiasCenter)
	}

	if cov.RightCount == 0 {
		missing = append(missing, domain.BiasRight)
	}

	switch len(missing) {
	case 0:
		return "", "", nil
	case 1:
		return domain.BlindspotKind(string(missing[0]) + "_missing"), domain.SeverityMedium, missing
	default:
		return domain.BlindspotUnderreported, domain.SeverityHigh, missing
	}
}

func describe(kind domain.BlindspotKind, missing []domain.Bias) string {
	if kind == domain.BlindspotUnderreported {
		return "This story is covered from only one perspective."
	}

	return fmt.Sprintf("This story has no coverage from %s-leaning outlets.", missing[0])
}

// suggestedSources lists outlets carrying the missing leanings.
func (t *Tracker) suggestedSources(ctx context.Context, missing []domain.Bias) []string {
	var suggested []string

	for _, bias := range missing {
		names, err := t.store.SourcesByBias(ctx, bias)
		if err != nil {
			t.logger.Warn().Err(err).Str("bias", string(bias)).Msg("list sources by bias failed")

			continue
		}

		suggested = append(suggested, names...)
	}

	return suggested
}
