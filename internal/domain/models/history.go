package models

import "time"

// HistoricalPoint is one calendar date of the estimated macro series.
// Month-granularity semantics; immutable once loaded. A nil metric means the
// source had no value for that date and must render as a gap, never as zero.
type HistoricalPoint struct {
	Date       time.Time
	Stress     *float64
	Growth     *float64
	CrisisProb *float64
	Regime     string
}

// HistorySeries is the full historical record plus the dates a run or
// comparison may be anchored to.
type HistorySeries struct {
	Points      []HistoricalPoint
	AnchorDates []time.Time
}

// LatestDate returns the date of the last point, or zero when empty.
func (h *HistorySeries) LatestDate() time.Time {
	if h == nil || len(h.Points) == 0 {
		return time.Time{}
	}
	return h.Points[len(h.Points)-1].Date
}

// RefreshSummary is the engine's answer to a state refresh.
type RefreshSummary struct {
	LatestDate  string  `json:"latest_date"`
	RegimeLabel string  `json:"regime_label"`
	StressScore float64 `json:"stress_score"`
	DataPoints  int     `json:"data_points"`
	IsSynthetic bool    `json:"is_synthetic"`
}

// StateSnapshot is the point-in-time inferred state for an anchor date. The
// core consumes it opaquely; only the fields the board surfaces are typed.
type StateSnapshot struct {
	LatestDate        string      `json:"latest_date"`
	MuT               []float64   `json:"mu_T"`
	PT                [][]float64 `json:"P_T"`
	StressScore       float64     `json:"stress_score"`
	RegimeLabel       string      `json:"regime_label"`
	CrisisThreshold   float64     `json:"crisis_threshold"`
	InflationGap      float64     `json:"inflation_gap"`
	FedRate           float64     `json:"fed_rate"`
	CorrelationMatrix [][]float64 `json:"correlation_matrix,omitempty"`
	CorrelationLabels []string    `json:"correlation_labels,omitempty"`
}
