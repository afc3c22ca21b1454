package models

// FanBand carries the five percentile levels of one projected month.
type FanBand struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// SpaghettiPoint is a single sampled path's value at one step.
type SpaghettiPoint struct {
	PathID int     `json:"id"`
	Stress float64 `json:"stress"`
}

// SimulationStep is one fully validated incremental step of a live run.
// StepIndex is 1-based and strictly sequential within a session.
type SimulationStep struct {
	StepIndex          int
	Horizon            int
	StressFan          FanBand
	GrowthFan          FanBand
	CrisisProbability  float64
	ExpectedShortfall  float64
	Spaghetti          []SpaghettiPoint
	InitialLatentState []float64
}

// ShockSet is the exogenous shock configuration applied to a run.
type ShockSet struct {
	Credit float64 `json:"credit" validate:"gte=-5,lte=5"`
	Vol    float64 `json:"vol" validate:"gte=-5,lte=5"`
	Rate   float64 `json:"rate" validate:"gte=-5,lte=5"`
}

// RunParams is the validated, clamped parameter set sent to the engine when
// a streaming session opens.
type RunParams struct {
	ActionBPS       float64  `json:"action_bps"`
	PathCount       int      `json:"path_count"`
	Horizon         int      `json:"horizon"`
	SpeedMS         int      `json:"speed_ms"`
	Shocks          ShockSet `json:"shocks"`
	RegimeSwitching bool     `json:"regime_switching"`
	StartDate       string   `json:"start_date,omitempty"`
}

// StepMessage is the raw wire frame read off a step transport before the
// session manager validates it. Exactly one of the three shapes is set:
// a step payload (Step non-nil), a terminal done marker, or a terminal error.
type StepMessage struct {
	Step       *int             `json:"step,omitempty"`
	Horizon    int              `json:"H,omitempty"`
	StressFan  *FanBand         `json:"stress_fan,omitempty"`
	GrowthFan  *FanBand         `json:"growth_fan,omitempty"`
	CrisisProb *float64         `json:"crisis_prob,omitempty"`
	ES95Stress *float64         `json:"es95_stress,omitempty"`
	Spaghetti  []SpaghettiPoint `json:"spaghetti,omitempty"`
	InitialMu  []float64        `json:"initial_mu,omitempty"`
	Done       bool             `json:"done,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// IsTerminal reports whether the frame ends the stream.
func (m *StepMessage) IsTerminal() bool {
	return m.Done || m.Error != ""
}
