// Package merge aligns history, live simulation steps and agent comparison
// series onto shared date-keyed tables, one per metric. Output rows are
// strictly ascending by date with no duplicates; a source that has no value
// at a date leaves its cell nil.
package merge

import (
	"sort"
	"time"

	"PolEn/internal/domain/models"
	"PolEn/internal/domain/repository"
	"PolEn/internal/series"
	"PolEn/pkg/util"
)

// Input is everything a rebuild consumes. The engine never mutates it.
type Input struct {
	History   []models.HistoricalPoint
	Anchor    time.Time
	Steps     []models.SimulationStep
	Reference []float64
	Agents    []models.AgentResult
	Deviation bool
}

// Output is the render-ready merged view.
type Output struct {
	Tables    []models.MetricTable
	Spaghetti []models.SpaghettiStep
	AxisTicks []string
}

// Engine rebuilds the merged tables from scratch on every call. Rebuilding
// is linear in the input and avoids any incremental-update bookkeeping.
type Engine struct {
	windowMonths int
	axisTicks    int
	spaghettiCap int
	norm         *series.Normalizer
	metrics      repository.Metrics
	now          func() time.Time
}

type Option func(*Engine)

func WithWindowMonths(n int) Option { return func(e *Engine) { e.windowMonths = n } }
func WithAxisTicks(n int) Option    { return func(e *Engine) { e.axisTicks = n } }
func WithSpaghettiCap(n int) Option { return func(e *Engine) { e.spaghettiCap = n } }

func NewEngine(norm *series.Normalizer, metrics repository.Metrics, opts ...Option) *Engine {
	e := &Engine{
		windowMonths: 120,
		axisTicks:    8,
		spaghettiCap: 30,
		norm:         norm,
		metrics:      metrics,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// table accumulates rows for one metric keyed by date. Lookup-or-create per
// date; ordering is restored once at the end.
type table struct {
	metric models.Metric
	rows   map[int64]*models.SeriesRow
}

func newTable(metric models.Metric) *table {
	return &table{metric: metric, rows: make(map[int64]*models.SeriesRow)}
}

func (t *table) row(date time.Time) *models.SeriesRow {
	key := date.Unix()
	if r, ok := t.rows[key]; ok {
		return r
	}
	r := &models.SeriesRow{Date: date, Label: util.FormatDate(date)}
	t.rows[key] = r
	return r
}

func (t *table) sorted() models.MetricTable {
	out := models.MetricTable{Metric: t.metric, Rows: make([]models.SeriesRow, 0, len(t.rows))}
	for _, r := range t.rows {
		out.Rows = append(out.Rows, *r)
	}
	sort.Slice(out.Rows, func(i, j int) bool { return out.Rows[i].Date.Before(out.Rows[j].Date) })
	return out
}

// Build produces the merged view for the current inputs.
func (e *Engine) Build(in Input) Output {
	start := e.now()

	stress := newTable(models.MetricStress)
	growth := newTable(models.MetricGrowth)
	crisis := newTable(models.MetricCrisis)
	es95 := newTable(models.MetricES95)

	stressRef, growthRef, haveRef := referenceLevels(in.Reference)
	deviate := in.Deviation && haveRef
	overlay := len(in.Steps) > 0 || len(in.Agents) > 0

	e.mergeHistory(stress, growth, crisis, in, overlay, deviate, stressRef, growthRef)
	e.mergeSteps(stress, growth, crisis, es95, in, deviate, stressRef, growthRef)
	e.mergeAgents(stress, growth, crisis, in, deviate, stressRef, growthRef)

	tables := []models.MetricTable{stress.sorted(), growth.sorted(), crisis.sorted(), es95.sorted()}

	out := Output{
		Tables:    tables,
		Spaghetti: e.spaghetti(in, deviate, stressRef),
		AxisTicks: e.ticks(tables),
	}
	if e.metrics != nil {
		e.metrics.RecordMergeDuration(e.now().Sub(start).Seconds())
	}
	return out
}

// mergeHistory places historical points, trimmed to the display window. When
// an overlay is active, history after the anchor is excluded so the realized
// past never overlaps the projection.
func (e *Engine) mergeHistory(stress, growth, crisis *table, in Input, overlay, deviate bool, stressRef, growthRef float64) {
	if len(in.History) == 0 {
		return
	}
	latest := in.History[len(in.History)-1].Date
	cutoff := latest.AddDate(0, -e.windowMonths, 0)
	for _, p := range in.History {
		if p.Date.Before(cutoff) {
			continue
		}
		if overlay && !in.Anchor.IsZero() && p.Date.After(in.Anchor) {
			continue
		}
		if p.Stress != nil {
			v := *p.Stress
			if deviate {
				v = series.ToDeviation(v, stressRef)
			}
			stress.row(p.Date).History = &v
		}
		if p.Growth != nil {
			v := *p.Growth
			if deviate {
				v = series.ToDeviation(v, growthRef)
			}
			growth.row(p.Date).History = &v
		}
		if p.CrisisProb != nil {
			v := *p.CrisisProb
			crisis.row(p.Date).History = &v
		}
	}
}

// mergeSteps places the live fan chart. Step i of a session anchored at date
// A lands on the end-of-month-clamped date A plus i calendar months.
func (e *Engine) mergeSteps(stress, growth, crisis, es95 *table, in Input, deviate bool, stressRef, growthRef float64) {
	for _, s := range in.Steps {
		date := util.AddCalendarMonths(in.Anchor, s.StepIndex)

		sb := e.norm.Decompose(s.StressFan.P5, s.StressFan.P25, s.StressFan.P75, s.StressFan.P95)
		gb := e.norm.Decompose(s.GrowthFan.P5, s.GrowthFan.P25, s.GrowthFan.P75, s.GrowthFan.P95)
		stressMedian := s.StressFan.P50
		growthMedian := s.GrowthFan.P50
		if deviate {
			sb = sb.Shift(stressRef)
			gb = gb.Shift(growthRef)
			stressMedian = series.ToDeviation(stressMedian, stressRef)
			growthMedian = series.ToDeviation(growthMedian, growthRef)
		}

		setBand(stress.row(date), sb, stressMedian)
		setBand(growth.row(date), gb, growthMedian)

		cp := s.CrisisProbability
		crisis.row(date).Median = &cp
		es := s.ExpectedShortfall
		es95.row(date).Median = &es
	}
}

// mergeAgents places per-agent trajectories. Agents that errored keep their
// slot in the comparison payload but contribute nothing here.
func (e *Engine) mergeAgents(stress, growth, crisis *table, in Input, deviate bool, stressRef, growthRef float64) {
	for _, a := range in.Agents {
		if a.Error != "" {
			continue
		}
		label := a.Label
		if label == "" {
			label = string(a.Agent)
		}
		placePath(stress, in.Anchor, label, a.StressPath, deviate, stressRef)
		placePath(growth, in.Anchor, label, a.GrowthPath, deviate, growthRef)
		placePath(crisis, in.Anchor, label, a.CrisisPath, false, 0)
	}
}

func placePath(t *table, anchor time.Time, label string, path []float64, deviate bool, ref float64) {
	for i, v := range path {
		if deviate {
			v = series.ToDeviation(v, ref)
		}
		r := t.row(util.AddCalendarMonths(anchor, i+1))
		if r.Agents == nil {
			r.Agents = make(map[string]float64)
		}
		r.Agents[label] = v
	}
}

func setBand(r *models.SeriesRow, b series.Band, median float64) {
	base, lower, iqr, upper := b.Base, b.LowerOuter, b.InterQuartile, b.UpperOuter
	r.Base = &base
	r.LowerOuter = &lower
	r.InterQuartile = &iqr
	r.UpperOuter = &upper
	r.Median = &median
}

func (e *Engine) spaghetti(in Input, deviate bool, stressRef float64) []models.SpaghettiStep {
	if len(in.Steps) == 0 {
		return nil
	}
	out := make([]models.SpaghettiStep, 0, len(in.Steps))
	for _, s := range in.Steps {
		if len(s.Spaghetti) == 0 {
			continue
		}
		points := s.Spaghetti
		if len(points) > e.spaghettiCap {
			points = points[:e.spaghettiCap]
		}
		step := models.SpaghettiStep{
			Label:  util.FormatDate(util.AddCalendarMonths(in.Anchor, s.StepIndex)),
			Points: make([]models.SpaghettiPoint, len(points)),
		}
		copy(step.Points, points)
		if deviate {
			for i := range step.Points {
				step.Points[i].Stress = series.ToDeviation(step.Points[i].Stress, stressRef)
			}
		}
		out = append(out, step)
	}
	return out
}

// ticks selects axis labels from the union of all table dates.
func (e *Engine) ticks(tables []models.MetricTable) []string {
	seen := make(map[int64]time.Time)
	for _, t := range tables {
		for _, r := range t.Rows {
			seen[r.Date.Unix()] = r.Date
		}
	}
	if len(seen) == 0 {
		return nil
	}
	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	picked := util.PickAxisTicks(dates, e.axisTicks)
	out := make([]string, len(picked))
	for i, d := range picked {
		out[i] = util.FormatDate(d)
	}
	return out
}

// referenceLevels extracts the stress and growth baselines from the latent
// state vector captured at the first step. Component 0 is stress, component
// 2 is growth.
func referenceLevels(ref []float64) (stressRef, growthRef float64, ok bool) {
	if len(ref) < 3 {
		return 0, 0, false
	}
	return ref[0], ref[2], true
}
