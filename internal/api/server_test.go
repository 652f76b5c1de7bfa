package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianews/meridian/internal/core/domain"
	"github.com/meridianews/meridian/internal/core/index"
	db "github.com/meridianews/meridian/internal/storage"
)

type fakeStore struct {
	trending   []db.TrendingCluster
	clusters   map[int64]domain.Cluster
	members    map[int64][]domain.Article
	coverage   map[int64]domain.Coverage
	users      map[string]domain.User
	blindspots map[string][]domain.Blindspot
	dismissed  []string
	ratings    []domain.Rating
	searched   []domain.Article

	lastMinCoverage int
	lastSince       time.Time
}

func newStore() *fakeStore {
	return &fakeStore{
		clusters:   make(map[int64]domain.Cluster),
		members:    make(map[int64][]domain.Article),
		coverage:   make(map[int64]domain.Coverage),
		users:      make(map[string]domain.User),
		blindspots: make(map[string][]domain.Blindspot),
	}
}

func (s *fakeStore) ListTrendingClusters(_ context.Context, since time.Time, minCoverage, _, _ int) ([]db.TrendingCluster, error) {
	s.lastSince = since
	s.lastMinCoverage = minCoverage

	return s.trending, nil
}

func (s *fakeStore) GetCluster(_ context.Context, id int64) (domain.Cluster, error) {
	c, ok := s.clusters[id]
	if !ok {
		return domain.Cluster{}, db.ErrNotFound
	}

	return c, nil
}

func (s *fakeStore) GetClusterArticles(_ context.Context, groupID int64) ([]domain.Article, error) {
	return s.members[groupID], nil
}

func (s *fakeStore) GetCoverage(_ context.Context, groupID int64) (domain.Coverage, error) {
	cov, ok := s.coverage[groupID]
	if !ok {
		return domain.Coverage{}, db.ErrNotFound
	}

	return cov, nil
}

func (s *fakeStore) SearchArticles(_ context.Context, _ string, _ time.Time, _ int) ([]domain.Article, error) {
	return s.searched, nil
}

func (s *fakeStore) GetAnalyticsOverview(_ context.Context) (db.AnalyticsOverview, error) {
	return db.AnalyticsOverview{TotalClusters: 12, AverageCoverage: 61.5, BlindspotCount: 3}, nil
}

func (s *fakeStore) BiasDistribution(_ context.Context) (map[string]int64, error) {
	return map[string]int64{"-0.25..0.00": 4, "0.00..0.25": 6}, nil
}

func (s *fakeStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, db.ErrNotFound
	}

	return u, nil
}

func (s *fakeStore) ListUserBlindspots(_ context.Context, userID string) ([]domain.Blindspot, error) {
	return s.blindspots[userID], nil
}

func (s *fakeStore) DismissBlindspot(_ context.Context, blindspotID string) error {
	if blindspotID == "missing" {
		return db.ErrNotFound
	}

	s.dismissed = append(s.dismissed, blindspotID)

	return nil
}

func (s *fakeStore) UpsertRating(_ context.Context, r domain.Rating) error {
	s.ratings = append(s.ratings, r)

	return nil
}

type fakeSearch struct {
	enabled bool
	result  *index.SearchResult
	err     error
}

func (f *fakeSearch) Enabled() bool { return f.enabled }

func (f *fakeSearch) Search(_ context.Context, _ string, _, _ int) (*index.SearchResult, error) {
	return f.result, f.err
}

func newTestServer(store *fakeStore, search searcher) *httptest.Server {
	nop := zerolog.Nop()

	return httptest.NewServer(NewServer(store, search, &nop).Router())
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	resp.Body.Close()

	return v
}

func TestTrending(t *testing.T) {
	store := newStore()
	store.trending = []db.TrendingCluster{
		{
			Cluster:  domain.Cluster{ID: 1, Name: "Summit", NeutralSummary: "Leaders met.", AnalysisComplete: true},
			Coverage: domain.Coverage{GroupID: 1, LeftCount: 1, CenterCount: 1, RightCount: 1, TotalCount: 3, CoverageScore: 100},
		},
	}

	srv := newTestServer(store, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stories/trending?minCoverage=40&hours=24")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[trendingResponse](t, resp)

	require.Len(t, body.Stories, 1)
	assert.Equal(t, "Summit", body.Stories[0].Name)
	assert.Equal(t, 100, body.Stories[0].Coverage.CoverageScore)

	assert.Equal(t, 40, store.lastMinCoverage)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), store.lastSince, time.Minute)
}

func TestTrendingRejectsBadPaging(t *testing.T) {
	srv := newTestServer(newStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stories/trending?limit=nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStoryDetail(t *testing.T) {
	store := newStore()
	neutral := int64(2)
	store.clusters[7] = domain.Cluster{ID: 7, Name: "Verdict", MostUnbiasedArticleID: &neutral, AnalysisComplete: true}
	store.members[7] = []domain.Article{
		{ID: 1, Title: "Left take", Bias: domain.BiasLeft, SourceName: "Guardian"},
		{ID: 2, Title: "Center take", Bias: domain.BiasCenter, SourceName: "Reuters"},
	}
	store.coverage[7] = domain.Coverage{GroupID: 7, TotalCount: 2, CoverageScore: 67}

	srv := newTestServer(store, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stories/7")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[storyDetailResponse](t, resp)

	assert.Equal(t, "Verdict", body.Name)
	require.Len(t, body.Articles, 2)
	assert.Equal(t, "left", body.Articles[0].SourceBias)
	require.NotNil(t, body.Coverage)
	assert.Equal(t, 67, body.Coverage.CoverageScore)
	require.NotNil(t, body.MostUnbiasedArticleID)
	assert.Equal(t, int64(2), *body.MostUnbiasedArticleID)
}

func TestStoryDetailWithoutCoverage(t *testing.T) {
	store := newStore()
	store.clusters[7] = domain.Cluster{ID: 7, Name: "Fresh"}

	srv := newTestServer(store, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stories/7")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[storyDetailResponse](t, resp)

	assert.Nil(t, body.Coverage)
}

func TestStoryNotFound(t *testing.T) {
	srv := newTestServer(newStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stories/999")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStoryBadID(t *testing.T) {
	srv := newTestServer(newStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stories/abc")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchUsesIndex(t *testing.T) {
	search := &fakeSearch{
		enabled: true,
		result: &index.SearchResult{
			NumFound: 1,
			Docs:     []index.Document{{ID: "42", Title: "Climate deal", SourceName: "AP", SourceBias: "center", Published: time.Now()}},
		},
	}

	srv := newTestServer(newStore(), search)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search?q=climate")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[searchResponse](t, resp)

	assert.Equal(t, "index", body.Backend)
	require.Len(t, body.Articles, 1)
	assert.Equal(t, int64(42), body.Articles[0].ID)
	assert.Equal(t, "AP", body.Articles[0].SourceName)
}

func TestSearchFallsBackToStore(t *testing.T) {
	store := newStore()
	store.searched = []domain.Article{{ID: 5, Title: "Climate deal", Bias: domain.BiasCenter}}

	search := &fakeSearch{enabled: true, err: index.ErrServerError}

	srv := newTestServer(store, search)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search?q=climate")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[searchResponse](t, resp)

	assert.Equal(t, "store", body.Backend)
	require.Len(t, body.Articles, 1)
	assert.Equal(t, int64(5), body.Articles[0].ID)
}

func TestSearchCoverageFilter(t *testing.T) {
	store := newStore()
	store.coverage[7] = domain.Coverage{GroupID: 7, CoverageScore: 80}
	store.coverage[8] = domain.Coverage{GroupID: 8, CoverageScore: 20}

	wellCovered, thin := int64(7), int64(8)
	store.searched = []domain.Article{
		{ID: 1, Title: "Climate deal reached", GroupID: &wellCovered, PublishedAt: time.Now()},
		{ID: 2, Title: "Climate deal panned", GroupID: &thin, PublishedAt: time.Now()},
		{ID: 3, Title: "Climate deal oped", PublishedAt: time.Now()},
	}

	srv := newTestServer(store, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search?q=climate&minCoverage=50")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[searchResponse](t, resp)

	require.Len(t, body.Articles, 1, "thin and unclustered hits are filtered")
	assert.Equal(t, int64(1), body.Articles[0].ID)
}

func TestSearchIndexTimeframe(t *testing.T) {
	search := &fakeSearch{
		enabled: true,
		result: &index.SearchResult{
			NumFound: 2,
			Docs: []index.Document{
				{ID: "1", Title: "Fresh", Published: time.Now()},
				{ID: "2", Title: "Stale", Published: time.Now().Add(-72 * time.Hour)},
			},
		},
	}

	srv := newTestServer(newStore(), search)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search?q=news&hours=24")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[searchResponse](t, resp)

	require.Len(t, body.Articles, 1)
	assert.Equal(t, "Fresh", body.Articles[0].Title)
}

func TestSearchRequiresQuery(t *testing.T) {
	srv := newTestServer(newStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyticsOverview(t *testing.T) {
	srv := newTestServer(newStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/analytics/overview")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)

	assert.EqualValues(t, 12, body["totalClusters"])
	assert.EqualValues(t, 61.5, body["averageCoverage"])
}

func TestBiasDistribution(t *testing.T) {
	srv := newTestServer(newStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/analytics/bias-distribution")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Buckets map[string]int64 `json:"buckets"`
	}](t, resp)

	assert.EqualValues(t, 6, body.Buckets["0.00..0.25"])
}

func TestUserBlindspots(t *testing.T) {
	store := newStore()
	store.users["u1"] = domain.User{ID: "u1"}
	store.blindspots["u1"] = []domain.Blindspot{
		{ID: "b1", GroupID: 7, Kind: domain.BlindspotRightMissing, Severity: domain.SeverityMedium, SuggestedSources: []string{"Fox News"}},
	}

	srv := newTestServer(store, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/users/u1/blindspots")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Blindspots []blindspotDTO `json:"blindspots"`
	}](t, resp)

	require.Len(t, body.Blindspots, 1)
	assert.Equal(t, "right_missing", body.Blindspots[0].Kind)
	assert.Equal(t, int64(7), body.Blindspots[0].GroupID)
}

func TestBlindspotsUnknownUser(t *testing.T) {
	srv := newTestServer(newStore(), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/users/ghost/blindspots")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDismissBlindspot(t *testing.T) {
	store := newStore()

	srv := newTestServer(store, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/blindspots/b1/dismiss", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"b1"}, store.dismissed)
}

func TestDismissMissingBlindspot(t *testing.T) {
	srv := newTestServer(newStore(), nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/blindspots/missing/dismiss", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitRating(t *testing.T) {
	store := newStore()
	store.users["u1"] = domain.User{ID: "u1"}

	srv := newTestServer(store, nil)
	defer srv.Close()

	payload, err := json.Marshal(ratingRequest{UserID: "u1", ArticleID: 42, Rating: 4})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/ratings", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, store.ratings, 1)
	assert.Equal(t, 4, store.ratings[0].Rating)
}

func TestSubmitRatingValidation(t *testing.T) {
	store := newStore()
	store.users["u1"] = domain.User{ID: "u1"}

	srv := newTestServer(store, nil)
	defer srv.Close()

	tests := []struct {
		name string
		req  ratingRequest
		code int
	}{
		{name: "rating out of range", req: ratingRequest{UserID: "u1", ArticleID: 1, Rating: 9}, code: http.StatusBadRequest},
		{name: "missing user", req: ratingRequest{ArticleID: 1, Rating: 3}, code: http.StatusBadRequest},
		{name: "unknown user", req: ratingRequest{UserID: "ghost", ArticleID: 1, Rating: 3}, code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.req)
			require.NoError(t, err)

			resp, err := http.Post(srv.URL+"/api/ratings", "application/json", bytes.NewReader(payload))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}
