// Package stream owns the single live simulation session: opening the step
// transport, validating frame order, accumulating accepted steps and driving
// the session state machine. Exactly one session is active at a time; steps
// from superseded sessions are identified by session id and dropped.
package stream

import (
	"context"
	"fmt"
	"sync"

	"PolEn/internal/domain/models"
	"PolEn/internal/domain/repository"
	"PolEn/pkg/logger"
)

// Manager serializes all session mutation behind one mutex. The accumulated
// step list and the active session handle are the only shared state; the
// read loop of the current session is their only writer.
type Manager struct {
	dialer  repository.StreamDialer
	metrics repository.Metrics
	log     *logger.Logger

	mu        sync.Mutex
	seq       uint64
	active    *session
	source    repository.StepSource
	cancel    context.CancelFunc
	steps     []models.SimulationStep
	reference []float64
	notify    func()
}

func NewManager(dialer repository.StreamDialer, metrics repository.Metrics, log *logger.Logger) *Manager {
	return &Manager{dialer: dialer, metrics: metrics, log: log}
}

// SetNotify registers a callback invoked after every accepted step or
// session state change. It runs outside the manager lock.
func (m *Manager) SetNotify(fn func()) {
	m.mu.Lock()
	m.notify = fn
	m.mu.Unlock()
}

// Start opens a new session, terminating any session still in flight. The
// accumulated steps of the previous session are discarded.
func (m *Manager) Start(ctx context.Context, params models.RunParams) error {
	m.mu.Lock()
	m.terminateLocked(StateCancelled, nil)
	m.seq++
	id := m.seq
	m.active = &session{id: id, state: StateConnecting}
	m.steps = nil
	m.reference = nil
	m.mu.Unlock()

	src, err := m.dialer.Dial(ctx)
	if err != nil {
		m.fail(id, fmt.Errorf("dial step source: %w", err))
		return err
	}

	m.mu.Lock()
	if m.active == nil || m.active.id != id {
		// Superseded while dialing.
		m.mu.Unlock()
		src.Close()
		return nil
	}
	m.source = src
	m.mu.Unlock()

	if err := src.Send(ctx, params); err != nil {
		m.fail(id, fmt.Errorf("send run parameters: %w", err))
		src.Close()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.active == nil || m.active.id != id {
		m.mu.Unlock()
		cancel()
		src.Close()
		return nil
	}
	m.cancel = cancel
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetSessionActive(true)
	}
	m.log.Info("streaming session started",
		logger.Uint64("session_id", id),
		logger.String("transport", m.dialer.Transport()),
		logger.Int("horizon", params.Horizon),
		logger.Int("paths", params.PathCount))

	go m.readLoop(loopCtx, id, src)
	return nil
}

// Cancel terminates the active session if it is still in flight. Accepted
// steps are retained so a partial fan chart stays on the board.
func (m *Manager) Cancel() {
	m.mu.Lock()
	m.terminateLocked(StateCancelled, nil)
	notify := m.notify
	m.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Reset cancels any in-flight session and drops all accumulated steps.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.terminateLocked(StateCancelled, nil)
	m.steps = nil
	m.reference = nil
	m.active = nil
	notify := m.notify
	m.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Steps returns a copy of the accepted steps, in order.
func (m *Manager) Steps() []models.SimulationStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SimulationStep, len(m.steps))
	copy(out, m.steps)
	return out
}

// Reference is the latent state vector captured from the first step of the
// current accumulation, used as the deviation-mode baseline.
func (m *Manager) Reference() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.reference))
	copy(out, m.reference)
	return out
}

// State reports the active session's state, StateIdle when none exists.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return StateIdle
	}
	return m.active.state
}

// Err returns the failure cause of the active session, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	return m.active.err
}

func (m *Manager) readLoop(ctx context.Context, id uint64, src repository.StepSource) {
	defer src.Close()
	msgs, errs := src.Read(ctx)
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				// A clean channel close counts as normal completion even when
				// the engine skipped the done frame.
				m.complete(id)
				return
			}
			if m.handleMessage(id, msg) {
				return
			}
		case err, ok := <-errs:
			if ok && err != nil {
				m.fail(id, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage applies one frame to the session. It returns true when the
// read loop should stop: terminal frame, escalated fault, or the message
// belongs to a superseded session.
func (m *Manager) handleMessage(id uint64, msg models.StepMessage) bool {
	m.mu.Lock()
	if m.active == nil || m.active.id != id || m.active.state.Terminal() {
		m.mu.Unlock()
		return true
	}
	s := m.active

	if msg.Error != "" {
		m.endLocked(s, StateFailed, fmt.Errorf("engine error: %s", msg.Error))
		notify := m.notify
		m.mu.Unlock()
		if notify != nil {
			notify()
		}
		return true
	}
	if msg.Done {
		m.endLocked(s, StateCompleted, nil)
		notify := m.notify
		m.mu.Unlock()
		if notify != nil {
			notify()
		}
		return true
	}

	if fault := m.validateLocked(s, msg); fault != "" {
		s.faults++
		if m.metrics != nil {
			m.metrics.RecordProtocolFault(fault)
		}
		m.log.Warn("protocol fault, frame dropped",
			logger.Uint64("session_id", s.id),
			logger.String("kind", fault),
			logger.Int("fault_count", s.faults))
		if s.faults >= faultLimit {
			m.endLocked(s, StateFailed, ErrTooManyFaults)
			notify := m.notify
			m.mu.Unlock()
			if notify != nil {
				notify()
			}
			return true
		}
		m.mu.Unlock()
		return false
	}

	step := models.SimulationStep{
		StepIndex:         *msg.Step,
		Horizon:           msg.Horizon,
		StressFan:         *msg.StressFan,
		GrowthFan:         *msg.GrowthFan,
		CrisisProbability: *msg.CrisisProb,
		ExpectedShortfall: *msg.ES95Stress,
		Spaghetti:         msg.Spaghetti,
	}
	if len(m.steps) == 0 {
		s.state = StateStreaming
		step.InitialLatentState = msg.InitialMu
		m.reference = msg.InitialMu
	}
	m.steps = append(m.steps, step)
	notify := m.notify
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordStepReceived(m.dialer.Transport())
	}
	if notify != nil {
		notify()
	}
	return false
}

// validateLocked checks one step frame against the protocol: complete
// payload, strictly sequential 1-based index, stable horizon. It returns the
// fault kind, or empty when the frame is acceptable.
func (m *Manager) validateLocked(s *session, msg models.StepMessage) string {
	if msg.Step == nil || msg.StressFan == nil || msg.GrowthFan == nil ||
		msg.CrisisProb == nil || msg.ES95Stress == nil {
		return "malformed"
	}
	if *msg.Step != len(m.steps)+1 {
		return "out_of_order"
	}
	if len(m.steps) > 0 && msg.Horizon != m.steps[0].Horizon {
		return "horizon_changed"
	}
	return ""
}

// complete marks the session completed if it is still the active one.
func (m *Manager) complete(id uint64) {
	m.mu.Lock()
	if m.active == nil || m.active.id != id || m.active.state.Terminal() {
		m.mu.Unlock()
		return
	}
	m.endLocked(m.active, StateCompleted, nil)
	notify := m.notify
	m.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// fail marks the session failed if it is still the active one.
func (m *Manager) fail(id uint64, err error) {
	m.mu.Lock()
	if m.active == nil || m.active.id != id || m.active.state.Terminal() {
		m.mu.Unlock()
		return
	}
	m.endLocked(m.active, StateFailed, err)
	notify := m.notify
	m.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// endLocked finalizes the session and releases its transport resources.
func (m *Manager) endLocked(s *session, state State, err error) {
	s.state = state
	s.err = err
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.source != nil {
		m.source.Close()
		m.source = nil
	}
	if m.metrics != nil {
		m.metrics.SetSessionActive(false)
		m.metrics.RecordSessionEnded(state.String())
	}
	if err != nil {
		m.log.Error("streaming session ended",
			logger.Error(err),
			logger.Uint64("session_id", s.id),
			logger.String("state", state.String()),
			logger.Int("steps", len(m.steps)))
		return
	}
	m.log.Info("streaming session ended",
		logger.Uint64("session_id", s.id),
		logger.String("state", state.String()),
		logger.Int("steps", len(m.steps)))
}

// terminateLocked ends an in-flight session without clearing steps.
func (m *Manager) terminateLocked(state State, err error) {
	if m.active == nil || m.active.state.Terminal() {
		return
	}
	m.endLocked(m.active, state, err)
}
