package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"PolEn/internal/domain/models"
	"PolEn/internal/domain/repository"
	"PolEn/internal/merge"
	"PolEn/internal/series"
	"PolEn/internal/service/ratelimit"
	"PolEn/internal/stream"
	"PolEn/internal/usecase"
	"PolEn/pkg/logger"
	"PolEn/pkg/util"
)

type fakeEngine struct{}

func (fakeEngine) Refresh(context.Context) (*models.RefreshSummary, error) {
	return &models.RefreshSummary{LatestDate: "2024-06-30", DataPoints: 2}, nil
}

func (fakeEngine) SnapshotAt(_ context.Context, date time.Time) (*models.StateSnapshot, error) {
	return &models.StateSnapshot{LatestDate: util.FormatDate(date)}, nil
}

func (fakeEngine) CompareAgents(context.Context, *models.CompareRequest) (*models.AgentComparison, error) {
	return &models.AgentComparison{Horizon: 12}, nil
}

func (fakeEngine) Recommend(context.Context, *models.RecommendRequest) (*models.Recommendation, error) {
	return &models.Recommendation{RecommendedAgent: models.AgentHeuristic}, nil
}

type fakeHistory struct{}

func (fakeHistory) FetchHistory(context.Context) (*models.HistorySeries, error) {
	f := func(v float64) *float64 { return &v }
	d := func(s string) time.Time {
		t, _ := util.ParseDate(s)
		return t
	}
	return &models.HistorySeries{
		Points: []models.HistoricalPoint{
			{Date: d("2024-05-31"), Stress: f(1.0)},
			{Date: d("2024-06-30"), Stress: f(1.1)},
		},
	}, nil
}

type fakeSource struct {
	msgs chan models.StepMessage
	errs chan error
}

func (f *fakeSource) Send(context.Context, models.RunParams) error { return nil }
func (f *fakeSource) Read(context.Context) (<-chan models.StepMessage, <-chan error) {
	return f.msgs, f.errs
}
func (f *fakeSource) Close() error { return nil }

type fakeDialer struct{ mu sync.Mutex }

func (d *fakeDialer) Dial(context.Context) (repository.StepSource, error) {
	return &fakeSource{msgs: make(chan models.StepMessage, 1), errs: make(chan error, 1)}, nil
}

func (d *fakeDialer) Transport() string { return "fake" }

func newTestHandler(t *testing.T) (*echo.Echo, *logger.Journal) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	streams := stream.NewManager(&fakeDialer{}, nil, log)
	merger := merge.NewEngine(series.NewNormalizer(log, nil), nil)
	controller := usecase.NewBoardController(fakeEngine{}, fakeHistory{}, streams, merger, nil, log)
	journal := logger.NewJournal(50)

	h := NewBoardHandler(controller, journal, ratelimit.NewLimiter(100, 100), log)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, journal
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}


// envelopeStatus extracts the status code from the response envelope. The
// HTTP layer always answers 200; the application status lives in the body.
func envelopeStatus(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return resp.Status
}

func TestStatusBeforeRefresh(t *testing.T) {
	e, _ := newTestHandler(t)
	rec := do(e, http.MethodGet, "/api/board/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var resp struct {
		Data models.BoardStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.State != models.ViewNoData {
		t.Fatalf("state = %v, want no_data", resp.Data.State)
	}
}

func TestRunBeforeRefreshConflicts(t *testing.T) {
	e, _ := newTestHandler(t)
	rec := do(e, http.MethodPost, "/api/board/run", `{"horizon": 12}`)
	if got := envelopeStatus(t, rec); got != http.StatusConflict {
		t.Fatalf("status = %d, want 409", got)
	}
}

func TestRefreshThenRun(t *testing.T) {
	e, _ := newTestHandler(t)
	if rec := do(e, http.MethodPost, "/api/board/refresh", ""); envelopeStatus(t, rec) != http.StatusOK {
		t.Fatalf("refresh failed: %s", rec.Body.String())
	}
	rec := do(e, http.MethodPost, "/api/board/run", `{"horizon": 12}`)
	if got := envelopeStatus(t, rec); got != http.StatusAccepted {
		t.Fatalf("run status = %d, want 202: %s", got, rec.Body.String())
	}
}

func TestRunValidationRejectsOutOfRange(t *testing.T) {
	e, _ := newTestHandler(t)
	do(e, http.MethodPost, "/api/board/refresh", "")

	for _, body := range []string{
		`{"horizon": 100}`,
		`{"path_count": 10}`,
		`{"speed_ms": 5}`,
	} {
		rec := do(e, http.MethodPost, "/api/board/run", body)
		if got := envelopeStatus(t, rec); got != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, got)
		}
	}
}

func TestAnchorValidation(t *testing.T) {
	e, _ := newTestHandler(t)
	do(e, http.MethodPost, "/api/board/refresh", "")

	if rec := do(e, http.MethodPost, "/api/board/anchor", `{"date": "not-a-date"}`); envelopeStatus(t, rec) != http.StatusBadRequest {
		t.Fatalf("want 400: %s", rec.Body.String())
	}
	if rec := do(e, http.MethodPost, "/api/board/anchor", `{"date": "2024-05-31"}`); envelopeStatus(t, rec) != http.StatusOK {
		t.Fatalf("want 200: %s", rec.Body.String())
	}
}

func TestDeviationToggle(t *testing.T) {
	e, _ := newTestHandler(t)
	rec := do(e, http.MethodPost, "/api/board/deviation", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var resp struct {
		Data map[string]bool `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Data["deviation_mode"] {
		t.Fatal("first toggle should enable deviation mode")
	}
}

func TestFaultsEndpoint(t *testing.T) {
	e, journal := newTestHandler(t)
	journal.Record("warn", "protocol fault, frame dropped", nil)
	journal.Record("warn", "protocol fault, frame dropped", nil)

	rec := do(e, http.MethodGet, "/api/faults", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var resp struct {
		Data []logger.FaultEntry `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Count != 2 {
		t.Fatalf("entries = %+v, want one coalesced entry", resp.Data)
	}
}

func TestCompareValidatesAgents(t *testing.T) {
	e, _ := newTestHandler(t)
	do(e, http.MethodPost, "/api/board/refresh", "")

	if rec := do(e, http.MethodPost, "/api/agents/compare", `{"agents": ["quantum"]}`); envelopeStatus(t, rec) != http.StatusBadRequest {
		t.Fatalf("want 400: %s", rec.Body.String())
	}
	if rec := do(e, http.MethodPost, "/api/agents/compare", `{"agents": ["heuristic", "rl"]}`); envelopeStatus(t, rec) != http.StatusOK {
		t.Fatalf("want 200: %s", rec.Body.String())
	}
}

func TestRateLimiting(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	streams := stream.NewManager(&fakeDialer{}, nil, log)
	merger := merge.NewEngine(series.NewNormalizer(log, nil), nil)
	controller := usecase.NewBoardController(fakeEngine{}, fakeHistory{}, streams, merger, nil, log)

	h := NewBoardHandler(controller, logger.NewJournal(10), ratelimit.NewLimiter(1, 0.001), log)
	e := echo.New()
	h.RegisterRoutes(e)

	if rec := do(e, http.MethodPost, "/api/board/refresh", ""); envelopeStatus(t, rec) != http.StatusOK {
		t.Fatalf("first call failed: %s", rec.Body.String())
	}
	if rec := do(e, http.MethodPost, "/api/board/refresh", ""); envelopeStatus(t, rec) != http.StatusTooManyRequests {
		t.Fatalf("want 429: %s", rec.Body.String())
	}
}
