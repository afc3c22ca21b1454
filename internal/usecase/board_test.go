package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"PolEn/internal/domain/models"
	"PolEn/internal/domain/repository"
	"PolEn/internal/merge"
	"PolEn/internal/series"
	"PolEn/internal/stream"
	"PolEn/pkg/logger"
	"PolEn/pkg/util"
)

type fakeEngine struct {
	mu        sync.Mutex
	snapshots map[string]*models.StateSnapshot
	compare   *models.AgentComparison
}

func (f *fakeEngine) Refresh(context.Context) (*models.RefreshSummary, error) {
	return &models.RefreshSummary{LatestDate: "2024-06-30", RegimeLabel: "calm", DataPoints: 3}, nil
}

func (f *fakeEngine) SnapshotAt(_ context.Context, date time.Time) (*models.StateSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.snapshots[util.FormatDate(date)]; ok {
		return s, nil
	}
	return &models.StateSnapshot{LatestDate: util.FormatDate(date)}, nil
}

func (f *fakeEngine) CompareAgents(context.Context, *models.CompareRequest) (*models.AgentComparison, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compare, nil
}

func (f *fakeEngine) Recommend(context.Context, *models.RecommendRequest) (*models.Recommendation, error) {
	return &models.Recommendation{RecommendedAgent: models.AgentHeuristic, RecommendedBPS: -25}, nil
}

type fakeHistory struct {
	series *models.HistorySeries
}

func (f *fakeHistory) FetchHistory(context.Context) (*models.HistorySeries, error) {
	return f.series, nil
}

type fakeSource struct {
	mu   sync.Mutex
	msgs chan models.StepMessage
	errs chan error
	sent []models.RunParams
}

func (f *fakeSource) Send(_ context.Context, p models.RunParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeSource) Read(context.Context) (<-chan models.StepMessage, <-chan error) {
	return f.msgs, f.errs
}

func (f *fakeSource) Close() error { return nil }

type fakeDialer struct {
	mu      sync.Mutex
	sources []*fakeSource
}

func (d *fakeDialer) Dial(context.Context) (repository.StepSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	src := &fakeSource{msgs: make(chan models.StepMessage, 64), errs: make(chan error, 1)}
	d.sources = append(d.sources, src)
	return src, nil
}

func (d *fakeDialer) Transport() string { return "fake" }

func (d *fakeDialer) last() *fakeSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sources[len(d.sources)-1]
}

func mustDate(s string) time.Time {
	t, ok := util.ParseDate(s)
	if !ok {
		panic("bad test date: " + s)
	}
	return t
}

func fptr(v float64) *float64 { return &v }

func historyFixture() *models.HistorySeries {
	return &models.HistorySeries{
		Points: []models.HistoricalPoint{
			{Date: mustDate("2024-04-30"), Stress: fptr(0.9), Growth: fptr(0.2)},
			{Date: mustDate("2024-05-31"), Stress: fptr(1.0), Growth: fptr(0.1)},
			{Date: mustDate("2024-06-30"), Stress: fptr(1.1), Growth: fptr(0.0)},
		},
		AnchorDates: []time.Time{mustDate("2024-05-31"), mustDate("2024-06-30")},
	}
}

func stepFrame(i, horizon int) models.StepMessage {
	crisis := 0.1
	es := 1.5
	return models.StepMessage{
		Step:       &i,
		Horizon:    horizon,
		StressFan:  &models.FanBand{P5: 0.5, P25: 0.8, P50: 1.0, P75: 1.2, P95: 1.5},
		GrowthFan:  &models.FanBand{P5: -1.0, P25: -0.2, P50: 0.3, P75: 0.8, P95: 1.4},
		CrisisProb: &crisis,
		ES95Stress: &es,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func newTestController(t *testing.T) (*BoardController, *fakeDialer) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	dialer := &fakeDialer{}
	streams := stream.NewManager(dialer, nil, log)
	merger := merge.NewEngine(series.NewNormalizer(log, nil), nil)
	engine := &fakeEngine{}
	hist := &fakeHistory{series: historyFixture()}
	return NewBoardController(engine, hist, streams, merger, nil, log), dialer
}

func TestRefreshLoadsBoard(t *testing.T) {
	c, _ := newTestController(t)
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	st := c.Status()
	if st.State != models.ViewLoaded {
		t.Fatalf("state = %v, want loaded", st.State)
	}
	if st.AnchorDate != "2024-06-30" {
		t.Fatalf("anchor = %s, want latest date", st.AnchorDate)
	}
}

func TestRunRequiresHistory(t *testing.T) {
	c, _ := newTestController(t)
	req := &models.RunRequest{PathCount: 1000, Horizon: 12, SpeedMS: 50}
	if err := c.Run(context.Background(), req); err != ErrNoData {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestRunIsNoOpWhileRunning(t *testing.T) {
	c, d := newTestController(t)
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	req := &models.RunRequest{PathCount: 1000, Horizon: 12, SpeedMS: 50}
	if err := c.Run(context.Background(), req); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := c.Run(context.Background(), req); err != nil {
		t.Fatalf("second run: %v", err)
	}
	d.mu.Lock()
	n := len(d.sources)
	d.mu.Unlock()
	if n != 1 {
		t.Fatalf("dials = %d, want 1 (second run must be a no-op)", n)
	}
	// The run starts from the anchor by default.
	src := d.last()
	src.mu.Lock()
	sent := src.sent[0]
	src.mu.Unlock()
	if sent.StartDate != "2024-06-30" {
		t.Fatalf("start date = %s, want anchor", sent.StartDate)
	}
}

func TestResetMidStream(t *testing.T) {
	c, d := newTestController(t)
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := c.Run(context.Background(), &models.RunRequest{Horizon: 6}); err != nil {
		t.Fatalf("run: %v", err)
	}
	src := d.last()
	src.msgs <- stepFrame(1, 6)
	src.msgs <- stepFrame(2, 6)
	waitFor(t, func() bool { return c.Status().StepsReceived == 2 })

	c.Reset()
	st := c.Status()
	if st.StepsReceived != 0 {
		t.Fatalf("steps after reset = %d, want 0", st.StepsReceived)
	}
	if st.State != models.ViewLoaded {
		t.Fatalf("state = %v, want loaded", st.State)
	}

	// Frames from the superseded session must not resurface.
	src.msgs <- stepFrame(3, 6)
	time.Sleep(20 * time.Millisecond)
	if got := c.Status().StepsReceived; got != 0 {
		t.Fatalf("steps = %d, want 0", got)
	}
}

func TestPauseRetainsSteps(t *testing.T) {
	c, d := newTestController(t)
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := c.Run(context.Background(), &models.RunRequest{Horizon: 6}); err != nil {
		t.Fatalf("run: %v", err)
	}
	d.last().msgs <- stepFrame(1, 6)
	waitFor(t, func() bool { return c.Status().StepsReceived == 1 })

	c.Pause()
	st := c.Status()
	if st.State != models.ViewPaused {
		t.Fatalf("state = %v, want paused", st.State)
	}
	if st.StepsReceived != 1 {
		t.Fatalf("steps = %d, want 1", st.StepsReceived)
	}
}

func TestSessionCompletionReturnsToLoaded(t *testing.T) {
	c, d := newTestController(t)
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := c.Run(context.Background(), &models.RunRequest{Horizon: 6}); err != nil {
		t.Fatalf("run: %v", err)
	}
	src := d.last()
	src.msgs <- stepFrame(1, 6)
	src.msgs <- models.StepMessage{Done: true}

	waitFor(t, func() bool { return c.Status().State == models.ViewLoaded })
	if got := c.Status().SessionState; got != "completed" {
		t.Fatalf("session state = %s, want completed", got)
	}
}

func TestSetAnchorValidatesRange(t *testing.T) {
	c, _ := newTestController(t)
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := c.SetAnchor(context.Background(), "2030-01-31"); err == nil {
		t.Fatal("expected range error")
	}
	if err := c.SetAnchor(context.Background(), "2024-05-31"); err != nil {
		t.Fatalf("set anchor: %v", err)
	}
	if got := c.Status().AnchorDate; got != "2024-05-31" {
		t.Fatalf("anchor = %s", got)
	}
	snap := c.Board().Snapshot
	if snap == nil || snap.LatestDate != "2024-05-31" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestToggleDeviation(t *testing.T) {
	c, _ := newTestController(t)
	if on := c.ToggleDeviation(); !on {
		t.Fatal("first toggle should enable")
	}
	if on := c.ToggleDeviation(); on {
		t.Fatal("second toggle should disable")
	}
}

func TestCompareOverlaysAgents(t *testing.T) {
	c, _ := newTestController(t)
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	eng := &models.AgentComparison{
		StartDate: "2024-06-30",
		Horizon:   2,
		Results: []models.AgentResult{
			{Agent: models.AgentHeuristic, Label: "heuristic", StressPath: []float64{1.0, 1.1}},
		},
	}
	c.engine.(*fakeEngine).compare = eng

	cmp, err := c.Compare(context.Background(), &models.CompareRequest{
		Agents: []models.AgentID{models.AgentHeuristic},
	})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(cmp.Results) != 1 {
		t.Fatalf("results = %d", len(cmp.Results))
	}
	board := c.Board()
	if board.Comparison == nil {
		t.Fatal("comparison missing from board")
	}
	for _, tb := range board.Tables {
		if tb.Metric != models.MetricStress {
			continue
		}
		found := false
		for _, r := range tb.Rows {
			if _, ok := r.Agents["heuristic"]; ok {
				found = true
			}
		}
		if !found {
			t.Fatal("agent path missing from stress table")
		}
	}
}

func TestBoardSubscriptionSignalsOnChange(t *testing.T) {
	c, _ := newTestController(t)
	ch, cancel := c.Subscribe()
	defer cancel()

	c.ToggleDeviation()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after state change")
	}
}
