package models

import "time"

// Metric identifies one of the board's plotted series families.
type Metric string

const (
	MetricStress Metric = "stress"
	MetricGrowth Metric = "growth"
	MetricCrisis Metric = "crisis_prob"
	MetricES95   Metric = "es95"
)

// SeriesRow is one calendar date of a merged metric table. Pointer fields
// distinguish "no value at this date" from zero so each source renders a gap
// where it has nothing. Band components are stacked: the rendered band is
// rebuilt as Base, Base+LowerOuter, Base+LowerOuter+InterQuartile and so on.
type SeriesRow struct {
	Date          time.Time          `json:"-"`
	Label         string             `json:"date"`
	History       *float64           `json:"history,omitempty"`
	Median        *float64           `json:"median,omitempty"`
	Base          *float64           `json:"base,omitempty"`
	LowerOuter    *float64           `json:"lower_outer,omitempty"`
	InterQuartile *float64           `json:"inter_quartile,omitempty"`
	UpperOuter    *float64           `json:"upper_outer,omitempty"`
	Agents        map[string]float64 `json:"agents,omitempty"`
}

// MetricTable is the merged, date-ascending series for one metric.
type MetricTable struct {
	Metric Metric      `json:"metric"`
	Rows   []SeriesRow `json:"rows"`
}

// SpaghettiStep is the capped set of sample-path values at one projected date.
type SpaghettiStep struct {
	Label  string           `json:"date"`
	Points []SpaghettiPoint `json:"points"`
}

// ViewState is the board's top-level presentation state.
type ViewState string

const (
	ViewNoData  ViewState = "no_data"
	ViewLoaded  ViewState = "loaded"
	ViewRunning ViewState = "running"
	ViewPaused  ViewState = "paused"
)

// BoardSnapshot is the complete render-ready board state handed to clients.
type BoardSnapshot struct {
	State         ViewState        `json:"state"`
	SessionState  string           `json:"session_state"`
	AnchorDate    string           `json:"anchor_date,omitempty"`
	AnchorDates   []string         `json:"anchor_dates,omitempty"`
	DeviationMode bool             `json:"deviation_mode"`
	StepsReceived int              `json:"steps_received"`
	Horizon       int              `json:"horizon,omitempty"`
	Tables        []MetricTable    `json:"tables"`
	Spaghetti     []SpaghettiStep  `json:"spaghetti,omitempty"`
	AxisTicks     []string         `json:"axis_ticks,omitempty"`
	Snapshot      *StateSnapshot   `json:"snapshot,omitempty"`
	Comparison    *AgentComparison `json:"comparison,omitempty"`
	Fault         string           `json:"fault,omitempty"`
}

// BoardStatus is the lightweight status view for polling clients.
type BoardStatus struct {
	State         ViewState `json:"state"`
	SessionState  string    `json:"session_state"`
	AnchorDate    string    `json:"anchor_date,omitempty"`
	DeviationMode bool      `json:"deviation_mode"`
	StepsReceived int       `json:"steps_received"`
	Horizon       int       `json:"horizon,omitempty"`
	LatestDate    string    `json:"latest_date,omitempty"`
}
