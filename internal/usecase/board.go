// Package usecase hosts the board controller: the single mutator of view
// state, sequencing history loads, live runs, agent comparisons and display
// flags on top of the stream manager and merge engine.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PolEn/internal/domain/models"
	"PolEn/internal/domain/repository"
	"PolEn/internal/merge"
	"PolEn/internal/stream"
	"PolEn/pkg/logger"
	"PolEn/pkg/util"
)

var (
	// ErrNoData rejects operations that need history before any load.
	ErrNoData = errors.New("no history loaded")

	// ErrUnknownAnchor rejects anchors outside the historical range.
	ErrUnknownAnchor = errors.New("anchor outside historical range")
)

// BoardController owns all mutable view state behind one mutex. Async
// completions (history fetches, snapshot fetches, comparisons) carry the
// version captured when they were issued; a completion whose version no
// longer matches is discarded, so a reset can never be overwritten by a
// stale response.
type BoardController struct {
	log     *logger.Logger
	metrics repository.Metrics
	engine  repository.EngineService
	history repository.HistorySource
	streams *stream.Manager
	merger  *merge.Engine

	mu             sync.Mutex
	state          models.ViewState
	version        uint64
	series         *models.HistorySeries
	anchor         time.Time
	deviation      bool
	snapshot       *models.StateSnapshot
	comparison     *models.AgentComparison
	recommendation *models.Recommendation
	fault          string

	subsMu sync.Mutex
	subs   map[uint64]chan struct{}
	subSeq uint64
}

func NewBoardController(
	engine repository.EngineService,
	history repository.HistorySource,
	streams *stream.Manager,
	merger *merge.Engine,
	metrics repository.Metrics,
	log *logger.Logger,
) *BoardController {
	c := &BoardController{
		log:     log,
		metrics: metrics,
		engine:  engine,
		history: history,
		streams: streams,
		merger:  merger,
		state:   models.ViewNoData,
		subs:    make(map[uint64]chan struct{}),
	}
	streams.SetNotify(c.onStreamEvent)
	return c
}

// Refresh reloads history and anchor dates from the engine. Everything
// derived from the previous load is discarded first.
func (c *BoardController) Refresh(ctx context.Context) (*models.RefreshSummary, error) {
	c.mu.Lock()
	c.version++
	v := c.version
	c.comparison = nil
	c.recommendation = nil
	c.snapshot = nil
	c.fault = ""
	c.mu.Unlock()
	c.streams.Reset()

	start := time.Now()
	summary, err := c.engine.Refresh(ctx)
	c.recordFetch("refresh", start, err)
	if err != nil {
		return nil, fmt.Errorf("engine refresh: %w", err)
	}
	start = time.Now()
	series, err := c.history.FetchHistory(ctx)
	c.recordFetch("history", start, err)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	c.mu.Lock()
	if c.version != v {
		c.mu.Unlock()
		return summary, nil
	}
	c.series = series
	c.anchor = series.LatestDate()
	if len(series.Points) > 0 {
		c.state = models.ViewLoaded
	} else {
		c.state = models.ViewNoData
	}
	c.mu.Unlock()

	c.log.Info("history refreshed",
		logger.Int("points", len(series.Points)),
		logger.Int("anchor_dates", len(series.AnchorDates)),
		logger.String("latest", summary.LatestDate))
	c.broadcast()
	return summary, nil
}

// Run starts a live simulation from the current anchor. A run already in
// flight makes this a no-op; a paused or idle board starts fresh.
func (c *BoardController) Run(ctx context.Context, req *models.RunRequest) error {
	c.mu.Lock()
	switch c.state {
	case models.ViewNoData:
		c.mu.Unlock()
		return ErrNoData
	case models.ViewRunning:
		c.mu.Unlock()
		return nil
	}
	params := req.Params()
	if params.StartDate == "" && !c.anchor.IsZero() {
		params.StartDate = util.FormatDate(c.anchor)
	}
	c.state = models.ViewRunning
	c.fault = ""
	c.mu.Unlock()

	if err := c.streams.Start(ctx, params); err != nil {
		c.mu.Lock()
		c.state = models.ViewLoaded
		c.fault = err.Error()
		c.mu.Unlock()
		c.broadcast()
		return fmt.Errorf("start run: %w", err)
	}
	c.broadcast()
	return nil
}

// Pause cancels the in-flight session but keeps the accumulated steps on
// the board.
func (c *BoardController) Pause() {
	c.mu.Lock()
	if c.state != models.ViewRunning {
		c.mu.Unlock()
		return
	}
	c.state = models.ViewPaused
	c.mu.Unlock()
	c.streams.Cancel()
	c.broadcast()
}

// Reset cancels any session and clears steps, comparison and
// recommendation. Loaded history and the anchor survive.
func (c *BoardController) Reset() {
	c.mu.Lock()
	c.version++
	c.comparison = nil
	c.recommendation = nil
	c.fault = ""
	if c.series != nil && len(c.series.Points) > 0 {
		c.state = models.ViewLoaded
	} else {
		c.state = models.ViewNoData
	}
	c.mu.Unlock()
	c.streams.Reset()
	c.broadcast()
}

// SetAnchor moves the simulation start date, clearing projections built on
// the previous anchor and fetching the inferred state at the new one.
func (c *BoardController) SetAnchor(ctx context.Context, date string) error {
	anchor, ok := util.ParseDate(date)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAnchor, date)
	}

	c.mu.Lock()
	if c.series == nil || len(c.series.Points) == 0 {
		c.mu.Unlock()
		return ErrNoData
	}
	first := c.series.Points[0].Date
	last := c.series.LatestDate()
	if anchor.Before(first) || anchor.After(last) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s not in [%s, %s]",
			ErrUnknownAnchor, date, util.FormatDate(first), util.FormatDate(last))
	}
	c.version++
	v := c.version
	c.anchor = anchor
	c.comparison = nil
	c.recommendation = nil
	c.snapshot = nil
	c.state = models.ViewLoaded
	c.fault = ""
	c.mu.Unlock()
	c.streams.Reset()
	c.broadcast()

	start := time.Now()
	snap, err := c.engine.SnapshotAt(ctx, anchor)
	c.recordFetch("snapshot", start, err)
	if err != nil {
		c.log.Warn("snapshot fetch failed, anchor kept",
			logger.String("date", date), logger.Error(err))
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	c.mu.Lock()
	if c.version == v {
		c.snapshot = snap
	}
	c.mu.Unlock()
	c.broadcast()
	return nil
}

// ToggleDeviation flips the display mode and returns the new value. Purely
// presentational: no fetches, no session changes.
func (c *BoardController) ToggleDeviation() bool {
	c.mu.Lock()
	c.deviation = !c.deviation
	on := c.deviation
	c.mu.Unlock()
	c.broadcast()
	return on
}

// Compare evaluates agents from the current anchor and overlays the results.
func (c *BoardController) Compare(ctx context.Context, req *models.CompareRequest) (*models.AgentComparison, error) {
	c.mu.Lock()
	if c.state == models.ViewNoData {
		c.mu.Unlock()
		return nil, ErrNoData
	}
	v := c.version
	if req.StartDate == "" && !c.anchor.IsZero() {
		req.StartDate = util.FormatDate(c.anchor)
	}
	c.mu.Unlock()

	start := time.Now()
	cmp, err := c.engine.CompareAgents(ctx, req)
	c.recordFetch("compare", start, err)
	if err != nil {
		return nil, fmt.Errorf("compare agents: %w", err)
	}
	for _, r := range cmp.Results {
		if r.Error != "" {
			c.log.Warn("agent evaluation failed",
				logger.String("agent", string(r.Agent)),
				logger.String("reason", r.Error))
		}
	}

	c.mu.Lock()
	if c.version == v {
		c.comparison = cmp
	}
	c.mu.Unlock()
	c.broadcast()
	return cmp, nil
}

// Recommend asks the engine for ranked policy advice under the given
// objective weights.
func (c *BoardController) Recommend(ctx context.Context, req *models.RecommendRequest) (*models.Recommendation, error) {
	c.mu.Lock()
	if c.state == models.ViewNoData {
		c.mu.Unlock()
		return nil, ErrNoData
	}
	v := c.version
	if req.StartDate == "" && !c.anchor.IsZero() {
		req.StartDate = util.FormatDate(c.anchor)
	}
	c.mu.Unlock()

	start := time.Now()
	rec, err := c.engine.Recommend(ctx, req)
	c.recordFetch("recommend", start, err)
	if err != nil {
		return nil, fmt.Errorf("recommend policy: %w", err)
	}

	c.mu.Lock()
	if c.version == v {
		c.recommendation = rec
	}
	c.mu.Unlock()
	c.broadcast()
	return rec, nil
}

// Board assembles the full render-ready snapshot.
func (c *BoardController) Board() *models.BoardSnapshot {
	c.mu.Lock()
	in := merge.Input{
		Anchor:    c.anchor,
		Deviation: c.deviation,
	}
	if c.series != nil {
		in.History = c.series.Points
	}
	if c.comparison != nil {
		in.Agents = c.comparison.Results
	}
	state := c.state
	fault := c.fault
	snapData := c.snapshot
	cmp := c.comparison
	anchorDates := c.anchorDatesLocked()
	anchorLabel := ""
	if !c.anchor.IsZero() {
		anchorLabel = util.FormatDate(c.anchor)
	}
	c.mu.Unlock()

	in.Steps = c.streams.Steps()
	in.Reference = c.streams.Reference()
	out := c.merger.Build(in)

	horizon := 0
	if len(in.Steps) > 0 {
		horizon = in.Steps[0].Horizon
	}
	return &models.BoardSnapshot{
		State:         state,
		SessionState:  c.streams.State().String(),
		AnchorDate:    anchorLabel,
		AnchorDates:   anchorDates,
		DeviationMode: in.Deviation,
		StepsReceived: len(in.Steps),
		Horizon:       horizon,
		Tables:        out.Tables,
		Spaghetti:     out.Spaghetti,
		AxisTicks:     out.AxisTicks,
		Snapshot:      snapData,
		Comparison:    cmp,
		Fault:         fault,
	}
}

// Status is the cheap polling view: no merge work.
func (c *BoardController) Status() *models.BoardStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	steps := c.streams.Steps()
	s := &models.BoardStatus{
		State:         c.state,
		SessionState:  c.streams.State().String(),
		DeviationMode: c.deviation,
		StepsReceived: len(steps),
	}
	if len(steps) > 0 {
		s.Horizon = steps[0].Horizon
	}
	if !c.anchor.IsZero() {
		s.AnchorDate = util.FormatDate(c.anchor)
	}
	if c.series != nil && len(c.series.Points) > 0 {
		s.LatestDate = util.FormatDate(c.series.LatestDate())
	}
	return s
}

// Recommendation returns the last stored recommendation, if any.
func (c *BoardController) Recommendation() *models.Recommendation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recommendation
}

// Subscribe registers for change notifications. The channel carries at most
// one pending signal; the returned func unsubscribes.
func (c *BoardController) Subscribe() (<-chan struct{}, func()) {
	c.subsMu.Lock()
	c.subSeq++
	id := c.subSeq
	ch := make(chan struct{}, 1)
	c.subs[id] = ch
	c.subsMu.Unlock()
	return ch, func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// onStreamEvent is the manager's notify hook: it reconciles the view state
// with the session outcome and fans the change out to subscribers.
func (c *BoardController) onStreamEvent() {
	c.mu.Lock()
	st := c.streams.State()
	if c.state == models.ViewRunning && st.Terminal() {
		c.state = models.ViewLoaded
		if err := c.streams.Err(); err != nil {
			c.fault = err.Error()
		}
	}
	c.mu.Unlock()
	c.broadcast()
}

func (c *BoardController) broadcast() {
	c.subsMu.Lock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	c.subsMu.Unlock()
}

func (c *BoardController) anchorDatesLocked() []string {
	if c.series == nil || len(c.series.AnchorDates) == 0 {
		return nil
	}
	out := make([]string, len(c.series.AnchorDates))
	for i, d := range c.series.AnchorDates {
		out[i] = util.FormatDate(d)
	}
	return out
}

func (c *BoardController) recordFetch(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordFetch(op, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordError(op)
	}
}
