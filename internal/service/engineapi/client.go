// Package engineapi is the HTTP adapter to the external simulation engine:
// history and anchor dates, point-in-time state snapshots, agent comparison
// and policy recommendation.
package engineapi

import (
	"context"
	"fmt"
	"time"

	"PolEn/internal/domain/models"
	"PolEn/pkg/cache"
	phttp "PolEn/pkg/http"
	"PolEn/pkg/logger"
	"PolEn/pkg/util"
)

type Option func(*Service)

// WithCache enables response caching for snapshot and history fetches.
func WithCache(c cache.Service, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// Service talks JSON over HTTP to the engine's REST surface.
type Service struct {
	baseURL  string
	timeout  time.Duration
	client   *phttp.Client
	cache    cache.Service
	cacheTTL time.Duration
	log      *logger.Logger
}

func NewService(baseURL string, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		baseURL:  baseURL,
		timeout:  30 * time.Second,
		cacheTTL: 15 * time.Minute,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.client = phttp.NewClient(phttp.WithTimeout(s.timeout))
	return s
}

// historyPayload is the engine's history wire shape: parallel arrays keyed
// by date, with null entries where a metric has no value.
type historyPayload struct {
	Dates       []string   `json:"dates"`
	Stress      []*float64 `json:"stress"`
	Growth      []*float64 `json:"growth"`
	CrisisProb  []*float64 `json:"crisis_prob"`
	Regimes     []string   `json:"regimes"`
	AnchorDates []string   `json:"anchor_dates"`
}

// FetchHistory loads the historical macro series.
func (s *Service) FetchHistory(ctx context.Context) (*models.HistorySeries, error) {
	var payload historyPayload
	key := cache.Key("history")
	if s.cached(ctx, key, &payload) {
		return payload.toSeries()
	}

	err := s.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method: phttp.MethodGet,
		URL:    s.baseURL + "/api/history",
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	s.store(ctx, key, payload)
	return payload.toSeries()
}

func (p *historyPayload) toSeries() (*models.HistorySeries, error) {
	series := &models.HistorySeries{
		Points: make([]models.HistoricalPoint, 0, len(p.Dates)),
	}
	for i, raw := range p.Dates {
		date, ok := util.ParseDate(raw)
		if !ok {
			return nil, fmt.Errorf("history date %d: invalid %q", i, raw)
		}
		pt := models.HistoricalPoint{Date: date}
		if i < len(p.Stress) {
			pt.Stress = p.Stress[i]
		}
		if i < len(p.Growth) {
			pt.Growth = p.Growth[i]
		}
		if i < len(p.CrisisProb) {
			pt.CrisisProb = p.CrisisProb[i]
		}
		if i < len(p.Regimes) {
			pt.Regime = p.Regimes[i]
		}
		series.Points = append(series.Points, pt)
	}
	for _, raw := range p.AnchorDates {
		if date, ok := util.ParseDate(raw); ok {
			series.AnchorDates = append(series.AnchorDates, date)
		}
	}
	return series, nil
}

// Refresh tells the engine to reload its sources and returns the summary.
func (s *Service) Refresh(ctx context.Context) (*models.RefreshSummary, error) {
	var summary models.RefreshSummary
	err := s.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method: phttp.MethodPost,
		URL:    s.baseURL + "/api/state/refresh",
	}, &summary)
	if err != nil {
		return nil, fmt.Errorf("refresh state: %w", err)
	}
	if s.cache != nil {
		// Refreshed data invalidates cached reads.
		if err := s.cache.Delete(ctx, cache.Key("history")); err != nil {
			s.log.Warn("history cache invalidation failed", logger.Error(err))
		}
	}
	return &summary, nil
}

// SnapshotAt fetches the inferred state at a date. Snapshots for past dates
// never change, so they cache well.
func (s *Service) SnapshotAt(ctx context.Context, date time.Time) (*models.StateSnapshot, error) {
	var snap models.StateSnapshot
	key := cache.Key("snapshot", util.FormatDate(date))
	if s.cached(ctx, key, &snap) {
		return &snap, nil
	}

	err := s.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method:      phttp.MethodGet,
		URL:         s.baseURL + "/api/state/at",
		QueryParams: map[string]string{"date": util.FormatDate(date)},
	}, &snap)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot at %s: %w", util.FormatDate(date), err)
	}
	s.store(ctx, key, snap)
	return &snap, nil
}

// comparePayload matches the engine's agent simulation response: a map from
// agent id to result.
type comparePayload struct {
	StartDate string                                `json:"start_date"`
	Horizon   int                                   `json:"horizon"`
	PathCount int                                   `json:"path_count"`
	Agents    map[models.AgentID]models.AgentResult `json:"agents"`
}

// CompareAgents evaluates the requested agents over a common scenario.
func (s *Service) CompareAgents(ctx context.Context, req *models.CompareRequest) (*models.AgentComparison, error) {
	var payload comparePayload
	err := s.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method: phttp.MethodPost,
		URL:    s.baseURL + "/api/agents/simulate",
		Body:   req,
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("compare agents: %w", err)
	}

	cmp := &models.AgentComparison{
		StartDate: payload.StartDate,
		Horizon:   payload.Horizon,
		PathCount: payload.PathCount,
		Results:   make([]models.AgentResult, 0, len(payload.Agents)),
	}
	// Preserve the request order so the board's legend is stable.
	for _, id := range req.Agents {
		if r, ok := payload.Agents[id]; ok {
			r.Agent = id
			cmp.Results = append(cmp.Results, r)
		}
	}
	return cmp, nil
}

// Recommend asks for ranked policy advice under the given weights.
func (s *Service) Recommend(ctx context.Context, req *models.RecommendRequest) (*models.Recommendation, error) {
	var rec models.Recommendation
	err := s.client.SendAndParse(ctx, &phttp.RequestOptions{
		Method: phttp.MethodPost,
		URL:    s.baseURL + "/api/policy/recommend",
		Body:   req,
	}, &rec)
	if err != nil {
		return nil, fmt.Errorf("recommend policy: %w", err)
	}
	return &rec, nil
}

func (s *Service) cached(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if err != cache.ErrCacheMiss {
		s.log.Warn("cache read failed", logger.String("key", key), logger.Error(err))
	}
	return false
}

func (s *Service) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.log.Warn("cache write failed", logger.String("key", key), logger.Error(err))
	}
}
