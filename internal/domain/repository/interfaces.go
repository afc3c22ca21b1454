package repository

import (
	"context"
	"time"

	"PolEn/internal/domain/models"
)

// StepSource is one live simulation stream. A source is single-use: dial it,
// send the run parameters, drain the channels, close it. Read's message
// channel is closed when the transport ends; the error channel reports
// transport-level failures (never protocol faults, which the session manager
// owns).
type StepSource interface {
	Send(ctx context.Context, params models.RunParams) error
	Read(ctx context.Context) (<-chan models.StepMessage, <-chan error)
	Close() error
}

// StreamDialer opens a fresh StepSource for each run.
type StreamDialer interface {
	Dial(ctx context.Context) (StepSource, error)
	Transport() string
}

// HistorySource loads the historical macro series and valid anchor dates.
type HistorySource interface {
	FetchHistory(ctx context.Context) (*models.HistorySeries, error)
}

// EngineService is the request/response surface of the external simulation
// engine.
type EngineService interface {
	Refresh(ctx context.Context) (*models.RefreshSummary, error)
	SnapshotAt(ctx context.Context, date time.Time) (*models.StateSnapshot, error)
	CompareAgents(ctx context.Context, req *models.CompareRequest) (*models.AgentComparison, error)
	Recommend(ctx context.Context, req *models.RecommendRequest) (*models.Recommendation, error)
}

// Metrics abstracts operational counters so domain packages stay decoupled
// from the concrete collector.
type Metrics interface {
	RecordStepReceived(transport string)
	RecordProtocolFault(kind string)
	RecordSessionEnded(state string)
	RecordBandClamp()
	SetSessionActive(active bool)
	RecordMergeDuration(seconds float64)
	RecordFetch(op string, seconds float64)
	RecordError(kind string)
}
