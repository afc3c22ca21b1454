package merge

import (
	"testing"
	"time"

	"PolEn/internal/domain/models"
	"PolEn/internal/series"
	"PolEn/pkg/util"
)

func date(s string) time.Time {
	t, ok := util.ParseDate(s)
	if !ok {
		panic("bad test date: " + s)
	}
	return t
}

func fptr(v float64) *float64 { return &v }

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(series.NewNormalizer(nil, nil), nil, opts...)
}

func band(p5, p25, p50, p75, p95 float64) models.FanBand {
	return models.FanBand{P5: p5, P25: p25, P50: p50, P75: p75, P95: p95}
}

func step(i int, stress models.FanBand) models.SimulationStep {
	return models.SimulationStep{
		StepIndex:         i,
		Horizon:           3,
		StressFan:         stress,
		GrowthFan:         band(-1, -0.5, 0, 0.5, 1),
		CrisisProbability: 0.2,
		ExpectedShortfall: 1.8,
	}
}

func tableFor(t *testing.T, out Output, metric models.Metric) models.MetricTable {
	t.Helper()
	for _, tb := range out.Tables {
		if tb.Metric == metric {
			return tb
		}
	}
	t.Fatalf("no table for metric %q", metric)
	return models.MetricTable{}
}

func TestStepDatesClampToMonthEnd(t *testing.T) {
	e := newTestEngine()
	out := e.Build(Input{
		Anchor: date("2024-06-30"),
		Steps: []models.SimulationStep{
			step(1, band(1, 2, 3, 4, 5)),
			step(2, band(1, 2, 3, 4, 5)),
			step(3, band(1, 2, 3, 4, 5)),
		},
	})

	tb := tableFor(t, out, models.MetricStress)
	want := []string{"2024-07-31", "2024-08-31", "2024-09-30"}
	if len(tb.Rows) != len(want) {
		t.Fatalf("rows = %d, want %d", len(tb.Rows), len(want))
	}
	for i, w := range want {
		if tb.Rows[i].Label != w {
			t.Fatalf("row %d date = %s, want %s", i, tb.Rows[i].Label, w)
		}
	}
}

func TestRowsAscendingAndDistinct(t *testing.T) {
	e := newTestEngine()
	history := []models.HistoricalPoint{
		{Date: date("2024-04-30"), Stress: fptr(0.9)},
		{Date: date("2024-05-31"), Stress: fptr(1.1)},
		{Date: date("2024-06-30"), Stress: fptr(1.0)},
	}
	out := e.Build(Input{
		History: history,
		Anchor:  date("2024-06-30"),
		Steps:   []models.SimulationStep{step(1, band(1, 2, 3, 4, 5))},
	})

	tb := tableFor(t, out, models.MetricStress)
	for i := 1; i < len(tb.Rows); i++ {
		if !tb.Rows[i-1].Date.Before(tb.Rows[i].Date) {
			t.Fatalf("rows not strictly ascending at %d: %s then %s",
				i, tb.Rows[i-1].Label, tb.Rows[i].Label)
		}
	}
	// History and live values occupy distinct columns on distinct dates.
	last := tb.Rows[len(tb.Rows)-1]
	if last.History != nil || last.Median == nil {
		t.Fatalf("projection row mixes sources: %+v", last)
	}
}

func TestHistoryAfterAnchorExcludedWhileOverlayActive(t *testing.T) {
	e := newTestEngine()
	history := []models.HistoricalPoint{
		{Date: date("2024-05-31"), Stress: fptr(1.0)},
		{Date: date("2024-06-30"), Stress: fptr(1.2)},
		{Date: date("2024-07-31"), Stress: fptr(1.4)},
	}

	// No overlay: the full history shows.
	out := e.Build(Input{History: history, Anchor: date("2024-06-30")})
	if rows := tableFor(t, out, models.MetricStress).Rows; len(rows) != 3 {
		t.Fatalf("rows without overlay = %d, want 3", len(rows))
	}

	// With a live overlay anchored at June, July history must disappear and
	// July's row belongs to the projection alone.
	out = e.Build(Input{
		History: history,
		Anchor:  date("2024-06-30"),
		Steps:   []models.SimulationStep{step(1, band(1, 2, 3, 4, 5))},
	})
	tb := tableFor(t, out, models.MetricStress)
	for _, r := range tb.Rows {
		if r.Label == "2024-07-31" {
			if r.History != nil {
				t.Fatal("post-anchor history leaked into overlay view")
			}
			if r.Median == nil {
				t.Fatal("projection missing at 2024-07-31")
			}
		}
	}
}

func TestHistoryWindowTrim(t *testing.T) {
	e := newTestEngine(WithWindowMonths(2))
	history := []models.HistoricalPoint{
		{Date: date("2024-01-31"), Stress: fptr(0.5)},
		{Date: date("2024-04-30"), Stress: fptr(0.8)},
		{Date: date("2024-05-31"), Stress: fptr(0.9)},
		{Date: date("2024-06-30"), Stress: fptr(1.0)},
	}
	out := e.Build(Input{History: history, Anchor: date("2024-06-30")})
	tb := tableFor(t, out, models.MetricStress)
	if len(tb.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 (window trims 2024-01-31)", len(tb.Rows))
	}
	if tb.Rows[0].Label != "2024-04-30" {
		t.Fatalf("first row = %s, want 2024-04-30", tb.Rows[0].Label)
	}
}

func TestAgentsMergedByDateAndErroredExcluded(t *testing.T) {
	e := newTestEngine()
	out := e.Build(Input{
		Anchor: date("2024-06-30"),
		Agents: []models.AgentResult{
			{Agent: models.AgentHeuristic, Label: "heuristic", StressPath: []float64{1.1, 1.2}},
			{Agent: models.AgentRL, Label: "rl", Error: "model unavailable", StressPath: []float64{9, 9}},
		},
	})
	tb := tableFor(t, out, models.MetricStress)
	if len(tb.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(tb.Rows))
	}
	r := tb.Rows[0]
	if r.Label != "2024-07-31" || r.Agents["heuristic"] != 1.1 {
		t.Fatalf("row 0 = %+v", r)
	}
	if _, ok := r.Agents["rl"]; ok {
		t.Fatal("errored agent leaked into merged rows")
	}
}

func TestDeviationShiftsStressAndGrowth(t *testing.T) {
	e := newTestEngine()
	in := Input{
		Anchor:    date("2024-06-30"),
		Reference: []float64{1.0, 0, 0.5, 0},
		Deviation: true,
		Steps:     []models.SimulationStep{step(1, band(1, 2, 3, 4, 5))},
	}
	out := e.Build(in)

	tb := tableFor(t, out, models.MetricStress)
	r := tb.Rows[0]
	if *r.Median != 2.0 { // 3.0 - reference 1.0
		t.Fatalf("deviated median = %v, want 2", *r.Median)
	}
	if *r.Base != 0.0 { // p5 1.0 - reference 1.0
		t.Fatalf("deviated base = %v, want 0", *r.Base)
	}
	// Stacked widths are shift-invariant.
	if *r.LowerOuter != 1 || *r.InterQuartile != 2 || *r.UpperOuter != 1 {
		t.Fatalf("widths changed under deviation: %+v", r)
	}

	// Crisis probability stays absolute.
	cr := tableFor(t, out, models.MetricCrisis).Rows[0]
	if *cr.Median != 0.2 {
		t.Fatalf("crisis median = %v, want 0.2", *cr.Median)
	}
}

func TestSpaghettiCapped(t *testing.T) {
	e := newTestEngine(WithSpaghettiCap(2))
	s := step(1, band(1, 2, 3, 4, 5))
	s.Spaghetti = []models.SpaghettiPoint{
		{PathID: 0, Stress: 1}, {PathID: 1, Stress: 2}, {PathID: 2, Stress: 3},
	}
	out := e.Build(Input{Anchor: date("2024-06-30"), Steps: []models.SimulationStep{s}})
	if len(out.Spaghetti) != 1 {
		t.Fatalf("spaghetti steps = %d, want 1", len(out.Spaghetti))
	}
	if got := len(out.Spaghetti[0].Points); got != 2 {
		t.Fatalf("points = %d, want 2", got)
	}
}

func TestAxisTicksCoverEndpoints(t *testing.T) {
	e := newTestEngine(WithAxisTicks(4))
	steps := make([]models.SimulationStep, 0, 24)
	for i := 1; i <= 24; i++ {
		steps = append(steps, step(i, band(1, 2, 3, 4, 5)))
	}
	out := e.Build(Input{Anchor: date("2024-06-30"), Steps: steps})
	if len(out.AxisTicks) == 0 {
		t.Fatal("no axis ticks")
	}
	if out.AxisTicks[0] != "2024-07-31" {
		t.Fatalf("first tick = %s", out.AxisTicks[0])
	}
	if out.AxisTicks[len(out.AxisTicks)-1] != "2026-06-30" {
		t.Fatalf("last tick = %s", out.AxisTicks[len(out.AxisTicks)-1])
	}
}
