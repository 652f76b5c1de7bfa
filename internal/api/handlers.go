package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/core/index"
	db "github.com/meridianews/meridian/internal/storage"
)

var errBadRequest = errors.New("bad request")

type coverageDTO struct {
	LeftCount       int       `json:"leftCount"`
	CenterCount     int       `json:"centerCount"`
	RightCount      int       `json:"rightCount"`
	TotalCount      int       `json:"totalCount"`
	CoverageScore   int       `json:"coverageScore"`
	FirstReportedAt time.Time `json:"firstReportedAt"`
	LastUpdatedAt   time.Time `json:"lastUpdatedAt"`
}

func toCoverageDTO(c domain.Coverage) coverageDTO {
	return coverageDTO{
		LeftCount:       c.LeftCount,
		CenterCount:     c.CenterCount,
		RightCount:      c.RightCount,
		TotalCount:      c.TotalCount,
		CoverageScore:   c.CoverageScore,
		FirstReportedAt: c.FirstReportedAt,
		LastUpdatedAt:   c.LastUpdatedAt,
	}
}

type articleDTO struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Link             string    `json:"link"`
	Summary          string    `json:"summary,omitempty"`
	PublishedAt      time.Time `json:"publishedAt"`
	ImageURL         string    `json:"imageUrl,omitempty"`
	SourceName       string    `json:"sourceName"`
	SourceBias       string    `json:"sourceBias"`
	PoliticalLeaning *float32  `json:"politicalLeaning,omitempty"`
	Sensationalism   *float32  `json:"sensationalism,omitempty"`
	FramingSummary   string    `json:"framingSummary,omitempty"`
}

func toArticleDTO(a domain.Article) articleDTO {
	return articleDTO{
		ID:               a.ID,
		Title:            a.Title,
		Link:             a.Link,
		Summary:          a.Summary,
		PublishedAt:      a.PublishedAt,
		ImageURL:         a.ImageURL,
		SourceName:       a.SourceName,
		SourceBias:       string(a.Bias),
		PoliticalLeaning: a.PoliticalLeaning,
		Sensationalism:   a.Sensationalism,
		FramingSummary:   a.FramingSummary,
	}
}

type storySummaryDTO struct {
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	NeutralSummary   string      `json:"neutralSummary,omitempty"`
	BiasSummary      string      `json:"biasSummary,omitempty"`
	AnalysisComplete bool        `json:"analysisComplete"`
	CreatedAt        time.Time   `json:"createdAt"`
	Coverage         coverageDTO `json:"coverage"`
}

type trendingResponse struct {
	Stories []storySummaryDTO `json:"stories"`
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", int(defaultTrendingWindow.Hours()))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	minCoverage, err := queryInt(r, "minCoverage", 0)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	offset, limit, err := paging(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	trending, err := s.store.ListTrendingClusters(r.Context(), since, minCoverage, offset, limit)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	stories := make([]storySummaryDTO, len(trending))
	for i, t := range trending {
		stories[i] = storySummaryDTO{
			ID:               t.Cluster.ID,
			Name:             t.Cluster.Name,
			NeutralSummary:   t.Cluster.NeutralSummary,
			BiasSummary:      t.Cluster.BiasSummary,
			AnalysisComplete: t.Cluster.AnalysisComplete,
			CreatedAt:        t.Cluster.CreatedAt,
			Coverage:         toCoverageDTO(t.Coverage),
		}
	}

	s.writeJSON(w, http.StatusOK, trendingResponse{Stories: stories, Offset: offset, Limit: limit})
}

type storyDetailResponse struct {
	ID                    int64        `json:"id"`
	Name                  string       `json:"name"`
	NeutralSummary        string       `json:"neutralSummary,omitempty"`
	BiasSummary           string       `json:"biasSummary,omitempty"`
	AnalysisComplete      bool         `json:"analysisComplete"`
	MostUnbiasedArticleID *int64       `json:"mostUnbiasedArticleId,omitempty"`
	CreatedAt             time.Time    `json:"createdAt"`
	Coverage              *coverageDTO `json:"coverage,omitempty"`
	Articles              []articleDTO `json:"articles"`
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	cluster, err := s.store.GetCluster(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	articles, err := s.store.GetClusterArticles(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	resp := storyDetailResponse{
		ID:                    cluster.ID,
		Name:                  cluster.Name,
		NeutralSummary:        cluster.NeutralSummary,
		BiasSummary:           cluster.BiasSummary,
		AnalysisComplete:      cluster.AnalysisComplete,
		MostUnbiasedArticleID: cluster.MostUnbiasedArticleID,
		CreatedAt:             cluster.CreatedAt,
		Articles:              make([]articleDTO, len(articles)),
	}

	for i, a := range articles {
		resp.Articles[i] = toArticleDTO(a)
	}

	// A cluster freshly created by the engine may not have a coverage record
	// yet; the detail view tolerates that.
	if cov, covErr := s.store.GetCoverage(r.Context(), id); covErr == nil {
		dto := toCoverageDTO(cov)
		resp.Coverage = &dto
	} else if !errors.Is(covErr, db.ErrNotFound) {
		s.writeError(w, r, covErr)

		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

type searchResponse struct {
	Query    string       `json:"query"`
	Backend  string       `json:"backend"`
	Articles []articleDTO `json:"articles"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing query parameter q", errBadRequest))

		return
	}

	hours, err := queryInt(r, "hours", int(defaultSearchWindow.Hours()))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	minCoverage, err := queryInt(r, "minCoverage", 0)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	offset, limit, err := paging(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	if s.search != nil && s.search.Enabled() {
		result, searchErr := s.search.Search(r.Context(), query, offset, limit)
		if searchErr == nil {
			groups := docGroupIDs(result.Docs)
			dtos := docsToDTOs(filterDocs(result.Docs, since))
			dtos = s.filterByCoverage(r.Context(), dtos, groups, minCoverage)

			s.writeJSON(w, http.StatusOK, searchResponse{Query: query, Backend: "index", Articles: dtos})

			return
		}

		s.logger.Warn().Err(searchErr).Msg("index search failed, falling back to store")
	}

	articles, err := s.store.SearchArticles(r.Context(), query, since, limit)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	dtos := make([]articleDTO, len(articles))
	groups := make(map[int64]int64, len(articles))

	for i, a := range articles {
		dtos[i] = toArticleDTO(a)

		if a.GroupID != nil {
			groups[a.ID] = *a.GroupID
		}
	}

	dtos = s.filterByCoverage(r.Context(), dtos, groups, minCoverage)

	s.writeJSON(w, http.StatusOK, searchResponse{Query: query, Backend: "store", Articles: dtos})
}

// filterByCoverage drops hits whose cluster sits below the requested coverage
// score. Unclustered articles never clear a positive threshold.
func (s *Server) filterByCoverage(ctx context.Context, dtos []articleDTO, groups map[int64]int64, minCoverage int) []articleDTO {
	if minCoverage <= 0 {
		return dtos
	}

	scores := make(map[int64]int)
	kept := dtos[:0]

	for _, dto := range dtos {
		groupID, ok := groups[dto.ID]
		if !ok {
			continue
		}

		score, cached := scores[groupID]
		if !cached {
			cov, err := s.store.GetCoverage(ctx, groupID)
			if err != nil {
				continue
			}

			score = cov.CoverageScore
			scores[groupID] = score
		}

		if score >= minCoverage {
			kept = append(kept, dto)
		}
	}

	return kept
}

func filterDocs(docs []index.Document, since time.Time) []index.Document {
	kept := docs[:0]

	for _, d := range docs {
		if !d.Published.Before(since) {
			kept = append(kept, d)
		}
	}

	return kept
}

func docGroupIDs(docs []index.Document) map[int64]int64 {
	groups := make(map[int64]int64, len(docs))

	for _, d := range docs {
		if d.GroupID == 0 {
			continue
		}

		if id, err := strconv.ParseInt(d.ID, 10, 64); err == nil {
			groups[id] = d.GroupID
		}
	}

	return groups
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.store.GetAnalyticsOverview(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, struct {
		TotalClusters   int64   `json:"totalClusters"`
		AverageCoverage float64 `json:"averageCoverage"`
		BlindspotCount  int64   `json:"blindspotCount"`
	}{
		TotalClusters:   overview.TotalClusters,
		AverageCoverage: overview.AverageCoverage,
		BlindspotCount:  overview.BlindspotCount,
	})
}

func (s *Server) handleBiasDistribution(w http.ResponseWriter, r *http.Request) {
	histogram, err := s.store.BiasDistribution(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, struct {
		Buckets map[string]int64 `json:"buckets"`
	}{Buckets: histogram})
}

type blindspotDTO struct {
	ID               string    `json:"id"`
	GroupID          int64     `json:"storyId"`
	Kind             string    `json:"kind"`
	Severity         string    `json:"severity"`
	Description      string    `json:"description"`
	SuggestedSources []string  `json:"suggestedSources,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (s *Server) handleBlindspots(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	if _, err := s.store.GetUser(r.Context(), userID); err != nil {
		s.writeError(w, r, err)

		return
	}

	blindspots, err := s.store.ListUserBlindspots(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	dtos := make([]blindspotDTO, len(blindspots))
	for i, b := range blindspots {
		dtos[i] = blindspotDTO{
			ID:               b.ID,
			GroupID:          b.GroupID,
			Kind:             string(b.Kind),
			Severity:         string(b.Severity),
			Description:      b.Description,
			SuggestedSources: b.SuggestedSources,
			CreatedAt:        b.CreatedAt,
		}
	}

	s.writeJSON(w, http.StatusOK, struct {
		Blindspots []blindspotDTO `json:"blindspots"`
	}{Blindspots: dtos})
}

func (s *Server) handleDismissBlindspot(w http.ResponseWriter, r *http.Request) {
	blindspotID := chi.URLParam(r, "id")

	if err := s.store.DismissBlindspot(r.Context(), blindspotID); err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, struct {
		Dismissed bool `json:"dismissed"`
	}{Dismissed: true})
}

type ratingRequest struct {
	UserID    string `json:"userId"`
	ArticleID int64  `json:"articleId"`
	Rating    int    `json:"rating"`
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid body", errBadRequest))

		return
	}

	if req.UserID == "" || req.ArticleID == 0 {
		s.writeError(w, r, fmt.Errorf("%w: userId and articleId are required", errBadRequest))

		return
	}

	if req.Rating < 1 || req.Rating > 5 {
		s.writeError(w, r, fmt.Errorf("%w: rating must be between 1 and 5", errBadRequest))

		return
	}

	if _, err := s.store.GetUser(r.Context(), req.UserID); err != nil {
		s.writeError(w, r, err)

		return
	}

	err := s.store.UpsertRating(r.Context(), domain.Rating{
		UserID:    req.UserID,
		ArticleID: req.ArticleID,
		Rating:    req.Rating,
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, struct {
		Saved bool `json:"saved"`
	}{Saved: true})
}

func docsToDTOs(docs []index.Document) []articleDTO {
	dtos := make([]articleDTO, len(docs))

	for i, d := range docs {
		id, _ := strconv.ParseInt(d.ID, 10, 64) //nolint:errcheck // index ids are article ids

		dtos[i] = articleDTO{
			ID:          id,
			Title:       d.Title,
			Link:        d.Link,
			Summary:     d.Summary,
			PublishedAt: d.Published,
			ImageURL:    d.ImageURL,
			SourceName:  d.SourceName,
			SourceBias:  d.SourceBias,
		}

		if d.PoliticalLeaning != 0 {
			leaning := d.PoliticalLeaning
			dtos[i].PoliticalLeaning = &leaning
		}

		if d.Sensationalism != 0 {
			sens := d.Sensationalism
			dtos[i].Sensationalism = &sens
		}

		dtos[i].FramingSummary = d.FramingSummary
	}

	return dtos
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}

	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}

	return v, nil
}

func paging(r *http.Request) (offset, limit int, err error) {
	offset, err = queryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}

	limit, err = queryInt(r, "limit", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}

	if limit == 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	return offset, limit, nil
}
