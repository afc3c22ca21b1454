package models

// RunRequest starts a live streaming simulation. Bounds follow the engine's
// accepted ranges; values outside them are rejected rather than silently
// clamped so the caller learns about the mistake.
type RunRequest struct {
	ActionBPS       float64  `json:"action_bps" validate:"gte=-500,lte=500"`
	PathCount       int      `json:"path_count" default:"5000" validate:"gte=500,lte=10000"`
	Horizon         int      `json:"horizon" default:"24" validate:"gte=6,lte=36"`
	SpeedMS         int      `json:"speed_ms" default:"120" validate:"gte=20,lte=2000"`
	Shocks          ShockSet `json:"shocks"`
	RegimeSwitching *bool    `json:"regime_switching" default:"true"`
	StartDate       string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// Params converts the request into the wire parameter set.
func (r *RunRequest) Params() RunParams {
	regime := true
	if r.RegimeSwitching != nil {
		regime = *r.RegimeSwitching
	}
	return RunParams{
		ActionBPS:       r.ActionBPS,
		PathCount:       r.PathCount,
		Horizon:         r.Horizon,
		SpeedMS:         r.SpeedMS,
		Shocks:          r.Shocks,
		RegimeSwitching: regime,
		StartDate:       r.StartDate,
	}
}

// CompareRequest evaluates a set of agents over a common scenario.
type CompareRequest struct {
	Agents          []AgentID        `json:"agents" validate:"required,min=1,max=4,dive,oneof=custom heuristic rl historical"`
	CustomBPS       float64          `json:"custom_bps" validate:"gte=-500,lte=500"`
	PathCount       int              `json:"path_count" default:"2000" validate:"gte=500,lte=10000"`
	Horizon         int              `json:"horizon" default:"24" validate:"gte=6,lte=36"`
	Shocks          ShockSet         `json:"shocks"`
	RegimeSwitching *bool            `json:"regime_switching" default:"true"`
	Weights         ObjectiveWeights `json:"weights"`
	StartDate       string           `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// RecommendRequest asks for a ranked policy recommendation.
type RecommendRequest struct {
	PathCount       int              `json:"path_count" default:"2000" validate:"gte=500,lte=10000"`
	Horizon         int              `json:"horizon" default:"24" validate:"gte=6,lte=36"`
	Shocks          ShockSet         `json:"shocks"`
	RegimeSwitching *bool            `json:"regime_switching" default:"true"`
	Weights         ObjectiveWeights `json:"weights"`
	StartDate       string           `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// AnchorRequest moves the simulation start date.
type AnchorRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}
