// Package bias runs per-cluster LLM analysis and writes article scores, the
// neutral summary and the most-neutral pick back in one transaction.
package bias

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/core/llm"
	"github.com/meridianews/meridian/internal/platform/observability"
	db "github.com/meridianews/meridian/internal/storage"
)

const (
	// Pacing between cluster analyses; batch sweeps double-pace to stay
	// clear of provider rate limits.
	singlePace = time.Second
	batchPace  = 2 * time.Second

	pendingBatchSize = 50
)

type store interface {
	GetClusterArticles(ctx context.Context, groupID int64) ([]domain.Article, error)
	ListPendingAnalysisClusters(ctx context.Context, limit int) ([]domain.Cluster, error)
	WriteBiasAnalysis(ctx context.Context, groupID int64, scores []db.ArticleBiasScore, neutralSummary, biasSummary string, mostNeutralID int64) error
	MarkAnalysisFailed(ctx context.Context, groupID int64, message string) error
	ResetFailedAnalyses(ctx context.Context) (int64, error)
	StartAnalysisJob(ctx context.Context, groupID int64) (int64, error)
	FinishAnalysisJob(ctx context.Context, jobID int64, status, jobErr string) error
}

type analyzer interface {
	AnalyzeClusterBias(ctx context.Context, articles []llm.ArticleInput) (llm.BiasAnalysis, error)
}

// Analyzer sweeps unanalyzed clusters.
type Analyzer struct {
	store  store
	llm    analyzer
	logger *zerolog.Logger

	singlePace   time.Duration
	batchPace    time.Duration
	lastAnalysis time.Time
}

func NewAnalyzer(store store, client analyzer, logger *zerolog.Logger) *Analyzer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Analyzer{
		store:      store,
		llm:        client,
		logger:     logger,
		singlePace: singlePace,
		batchPace:  batchPace,
	}
}

// Available reports whether a provider is wired in.
func (a *Analyzer) Available() bool {
	return a.llm != nil
}

// RunPending analyzes every cluster with analysis_complete=false, paced at
// two seconds apart. Returns the number analyzed successfully.
func (a *Analyzer) RunPending(ctx context.Context) (int, error) {
	clusters, err := a.store.ListPendingAnalysisClusters(ctx, pendingBatchSize)
	if err != nil {
		return 0, err
	}

	analyzed := 0

	for _, cluster := range clusters {
		if ctx.Err() != nil {
			return analyzed, ctx.Err()
		}

		if err := a.analyzeWithPace(ctx, cluster.ID, a.batchPace); err != nil {
			a.logger.Warn().Err(err).Int64("group", cluster.ID).Msg("cluster analysis failed")

			continue
		}

		analyzed++
	}

	return analyzed, nil
}

// AnalyzeCluster analyzes one cluster, paced at one second from the previous
// analysis. Used by the immediate enrichment hook.
func (a *Analyzer) AnalyzeCluster(ctx context.Context, groupID int64) error {
	return a.analyzeWithPace(ctx, groupID, a.singlePace)
}

func (a *Analyzer) analyzeWithPace(ctx context.Context, groupID int64, pace time.Duration) error {
	if a.llm == nil {
		return fmt.Errorf("analyze cluster %d: %w", groupID, llm.ErrNoProvider)
	}

	a.pace(ctx, pace)

	jobID, jobErr := a.store.StartAnalysisJob(ctx, groupID)
	if jobErr != nil {
		a.logger.Warn().Err(jobErr).Int64("group", groupID).Msg("record analysis job failed")
	}

	err := a.analyze(ctx, groupID)

	if jobErr == nil {
		status := domain.JobDone

		message := ""
		if err != nil {
			status = domain.JobFailed
			message = err.Error()
		}

		if finishErr := a.store.FinishAnalysisJob(ctx, jobID, status, message); finishErr != nil {
			a.logger.Warn().Err(finishErr).Int64("job", jobID).Msg("finish analysis job failed")
		}
	}

	if err != nil {
		observability.BiasAnalyses.WithLabelValues("failure").Inc()

		// Latch completion so the sweep does not spin on a broken cluster.
		// The reset-analysis sweep clears these.
		latchMsg := fmt.Sprintf("Analysis failed: %s", err)
		if latchErr := a.store.MarkAnalysisFailed(ctx, groupID, latchMsg); latchErr != nil {
			a.logger.Error().Err(latchErr).Int64("group", groupID).Msg("latch analysis failure failed")
		}

		return err
	}

	observability.BiasAnalyses.WithLabelValues("success").Inc()

	return nil
}

func (a *Analyzer) analyze(ctx context.Context, groupID int64) error {
	articles, err := a.store.GetClusterArticles(ctx, groupID)
	if err != nil {
		return err
	}

	if len(articles) == 0 {
		return fmt.Errorf("cluster %d has no members", groupID)
	}

	inputs := make([]llm.ArticleInput, len(articles))
	for i, art := range articles {
		inputs[i] = llm.ArticleInput{
			ID:         art.ID,
			Title:      art.Title,
			Summary:    art.Summary,
			SourceName: art.SourceName,
			SourceBias: string(art.Bias),
		}
	}

	analysis, err := a.llm.AnalyzeClusterBias(ctx, inputs)
	if err != nil {
		return err
	}

	scores := make([]db.ArticleBiasScore, len(analysis.Articles))
	for i, ab := range analysis.Articles {
		scores[i] = db.ArticleBiasScore{
			ArticleID:        ab.ArticleID,
			PoliticalLeaning: float32((ab.LeftBias - ab.RightBias) / 10),
			Sensationalism:   float32(ab.Sensationalism / 10),
			FramingSummary:   ab.Reasoning,
		}
	}

	mostNeutral := mostNeutralArticle(analysis.Articles)

	return a.store.WriteBiasAnalysis(ctx, groupID, scores, analysis.NeutralSummary, analysis.BiasSummary, mostNeutral)
}

// mostNeutralArticle is the argmax of biasScore; ties break toward the
// smallest article id.
func mostNeutralArticle(articles []llm.ArticleBias) int64 {
	best := articles[0]

	for _, a := range articles[1:] {
		if a.BiasScore > best.BiasScore || (a.BiasScore == best.BiasScore && a.ArticleID < best.ArticleID) {
			best = a
		}
	}

	return best.ArticleID
}

// pace sleeps out the remainder of the pacing interval since the previous
// analysis.
func (a *Analyzer) pace(ctx context.Context, interval time.Duration) {
	if !a.lastAnalysis.IsZero() {
		if wait := interval - time.Since(a.lastAnalysis); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
		}
	}

	a.lastAnalysis = time.Now()
}

// ResetFailed clears failure latches so those clusters are re-analyzed on
// the next sweep. This is the operator reset path.
func (a *Analyzer) ResetFailed(ctx context.Context) (int64, error) {
	return a.store.ResetFailedAnalyses(ctx)
}
