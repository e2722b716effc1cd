// Package tracker owns the monitor state: it records each cycle's consensus,
// detects transitions, enforces the alert cooldown and tracks checker health.
package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

// Config controls alerting policy.
type Config struct {
	AlertCooldown    time.Duration
	FailureThreshold int
}

// Decision is what Record concluded for one cycle.
type Decision struct {
	Result     monitor.ConsensusResult
	State      monitor.MonitorState
	Transition *monitor.Transition
	// Alert is set when a CAPPED to AVAILABLE transition passed the cooldown.
	Alert *monitor.AlertEvent
	// Health is set when the failure streak reached the threshold or recovered from it.
	Health *monitor.HealthNotice
}

// Tracker is the single writer of monitor.MonitorState.
type Tracker struct {
	cfg    Config
	store  monitor.Store
	clock  monitor.Clock
	ids    monitor.IDGenerator
	logger *zap.Logger

	mu    sync.Mutex
	state atomic.Pointer[monitor.MonitorState]
}

// New builds a Tracker with an unset verdict. Call Load to restore persisted state.
func New(cfg Config, store monitor.Store, clock monitor.Clock, ids monitor.IDGenerator, logger *zap.Logger) *Tracker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{cfg: cfg, store: store, clock: clock, ids: ids, logger: logger}
	t.state.Store(&monitor.MonitorState{})
	return t
}

// Load seeds the in-memory state from the store.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, err := t.store.LoadLastState(ctx)
	if err != nil {
		return &monitor.PersistenceError{Op: "load state", Cause: err}
	}
	t.state.Store(&st)
	t.logger.Info("monitor state restored",
		zap.String("verdict", string(st.CurrentVerdict)),
		zap.Int("consecutive_failures", st.ConsecutiveFailures),
	)
	return nil
}

// Snapshot returns a copy of the current state. It never observes a partial update.
func (t *Tracker) Snapshot() monitor.MonitorState {
	return t.state.Load().Clone()
}

// Record applies one consensus result. The history entry and the new state
// are persisted before the in-memory state is replaced; on a persistence
// failure the state is left untouched and no alert is produced.
func (t *Tracker) Record(ctx context.Context, result monitor.ConsensusResult) (Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := result.CycleTimestamp
	if now.IsZero() {
		now = t.clock.Now()
		result.CycleTimestamp = now
	}
	if result.ID == "" {
		id, err := t.ids.NewID()
		if err != nil {
			return Decision{}, fmt.Errorf("cycle id: %w", err)
		}
		result.ID = id
	}

	prev := t.state.Load()
	next := prev.Clone()
	next.LastCycleAt = &now
	updateLastErrors(&next, result)

	decision := Decision{Result: result}

	if !result.Verdict.Known() {
		next.ConsecutiveFailures++
		if next.ConsecutiveFailures == t.cfg.FailureThreshold {
			decision.Health = &monitor.HealthNotice{
				DetectedAt:          now,
				ConsecutiveFailures: next.ConsecutiveFailures,
				LastError:           summarizeErrors(next.LastErrors),
			}
		}
	} else {
		if prev.ConsecutiveFailures >= t.cfg.FailureThreshold {
			decision.Health = &monitor.HealthNotice{
				DetectedAt:          now,
				ConsecutiveFailures: prev.ConsecutiveFailures,
				Recovered:           true,
			}
		}
		next.ConsecutiveFailures = 0

		if result.Verdict != prev.CurrentVerdict {
			decision.Transition = &monitor.Transition{From: prev.CurrentVerdict, To: result.Verdict}
			next.CurrentVerdict = result.Verdict
			next.LastTransitionAt = &now

			if t.shouldAlert(*decision.Transition, prev.LastAlertAt, now) {
				id, err := t.ids.NewID()
				if err != nil {
					return Decision{}, fmt.Errorf("alert id: %w", err)
				}
				decision.Alert = &monitor.AlertEvent{
					ID:         id,
					Transition: *decision.Transition,
					DetectedAt: now,
				}
				next.LastAlertAt = &now
			}
		}
	}

	if err := t.store.AppendHistory(ctx, result); err != nil {
		return Decision{}, &monitor.PersistenceError{Op: "append history", Cause: err}
	}
	if err := t.store.SaveState(ctx, next); err != nil {
		return Decision{}, &monitor.PersistenceError{Op: "save state", Cause: err}
	}
	t.state.Store(&next)

	decision.State = next.Clone()
	t.log(decision)
	return decision, nil
}

func (t *Tracker) shouldAlert(tr monitor.Transition, lastAlert *time.Time, now time.Time) bool {
	if tr.From != monitor.VerdictCapped || tr.To != monitor.VerdictAvailable {
		return false
	}
	return lastAlert == nil || now.Sub(*lastAlert) >= t.cfg.AlertCooldown
}

func (t *Tracker) log(d Decision) {
	fields := []zap.Field{
		zap.String("cycle_id", d.Result.ID),
		zap.String("verdict", string(d.Result.Verdict)),
		zap.Bool("agreement", d.Result.Agreement),
		zap.Int("consecutive_failures", d.State.ConsecutiveFailures),
	}
	switch {
	case d.Alert != nil:
		t.logger.Info("liquidity transition, alert requested", append(fields, zap.String("from", string(d.Transition.From)))...)
	case d.Transition != nil:
		t.logger.Info("verdict transition recorded", append(fields, zap.String("from", string(d.Transition.From)))...)
	case !d.Result.Verdict.Known():
		t.logger.Warn("cycle produced no usable observation", fields...)
	default:
		t.logger.Debug("cycle recorded", fields...)
	}
}

// updateLastErrors keeps the most recent error reason per method; a method
// that produced a usable observation clears its entry.
func updateLastErrors(state *monitor.MonitorState, result monitor.ConsensusResult) {
	for _, obs := range result.Observations {
		if obs.Error != "" {
			if state.LastErrors == nil {
				state.LastErrors = make(map[monitor.Method]string)
			}
			state.LastErrors[obs.Method] = obs.Error
			continue
		}
		delete(state.LastErrors, obs.Method)
	}
	if len(state.LastErrors) == 0 {
		state.LastErrors = nil
	}
}

func summarizeErrors(errs map[monitor.Method]string) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for method, msg := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", method, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
