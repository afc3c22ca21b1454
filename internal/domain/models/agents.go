package models

// AgentID names one of the policy strategies the engine can evaluate.
type AgentID string

const (
	AgentCustom     AgentID = "custom"
	AgentHeuristic  AgentID = "heuristic"
	AgentRL         AgentID = "rl"
	AgentHistorical AgentID = "historical"
)

// ObjectiveWeights parameterize the scalar loss used to rank agents:
// alpha weighs mean stress, beta the growth penalty, gamma the tail
// shortfall and lambda the terminal crisis probability.
type ObjectiveWeights struct {
	Alpha  float64 `json:"alpha" default:"1" validate:"gte=0,lte=10"`
	Beta   float64 `json:"beta" default:"1" validate:"gte=0,lte=10"`
	Gamma  float64 `json:"gamma" default:"1" validate:"gte=0,lte=10"`
	Lambda float64 `json:"lambda" default:"1" validate:"gte=0,lte=10"`
}

// AgentMetrics are the aggregate outcome statistics of one evaluated agent.
type AgentMetrics struct {
	MeanStress        float64 `json:"mean_stress"`
	GrowthPenalty     float64 `json:"growth_penalty"`
	ExpectedShortfall float64 `json:"es95"`
	CrisisEnd         float64 `json:"crisis_end"`
	TotalLoss         float64 `json:"total_loss"`
}

// AgentResult is one agent's evaluated trajectory. When Error is non-empty
// the agent failed and every other field except identity is unreliable; a
// failed agent is excluded from merged output but keeps its slot in the
// comparison so the caller can surface the failure.
type AgentResult struct {
	Agent      AgentID      `json:"agent"`
	Label      string       `json:"label"`
	ActionBPS  float64      `json:"action_bps"`
	Error      string       `json:"error,omitempty"`
	Metrics    AgentMetrics `json:"metrics"`
	StressPath []float64    `json:"stress_path,omitempty"`
	GrowthPath []float64    `json:"growth_path,omitempty"`
	CrisisPath []float64    `json:"crisis_path,omitempty"`
	StressFan  []FanBand    `json:"stress_fan,omitempty"`
	GrowthFan  []FanBand    `json:"growth_fan,omitempty"`
}

// AgentComparison is the outcome of evaluating several agents over the same
// horizon from the same anchor.
type AgentComparison struct {
	StartDate string        `json:"start_date"`
	Horizon   int           `json:"horizon"`
	PathCount int           `json:"path_count"`
	Results   []AgentResult `json:"results"`
}

// RecommendationRow is one candidate action with its weighted loss.
type RecommendationRow struct {
	Agent   AgentID      `json:"agent"`
	Label   string       `json:"label"`
	Metrics AgentMetrics `json:"metrics"`
}

// Recommendation is the engine's ranked policy advice under a weight set.
type Recommendation struct {
	RecommendedAgent AgentID             `json:"recommended_agent"`
	RecommendedBPS   float64             `json:"recommended_bps"`
	Rationale        string              `json:"rationale,omitempty"`
	Weights          ObjectiveWeights    `json:"weights"`
	Ranking          []RecommendationRow `json:"ranking"`
}
