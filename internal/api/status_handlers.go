package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	statsWindow         = 500
	statusHistoryLimit  = 10
)

// Stats aggregates recent cycle outcomes.
type Stats struct {
	Window          int `json:"window"`
	TotalChecks     int `json:"total_checks"`
	FailedChecks    int `json:"failed_checks"`
	Disagreements   int `json:"disagreements"`
	CappedChecks    int `json:"capped_checks"`
	AvailableChecks int `json:"available_checks"`
}

// StatusResponse is the payload of GET /api/status.
type StatusResponse struct {
	URL                 string                    `json:"url"`
	CurrentVerdict      monitor.Verdict           `json:"current_verdict"`
	LastTransitionAt    *time.Time                `json:"last_transition_at"`
	LastAlertAt         *time.Time                `json:"last_alert_at"`
	LastCycleAt         *time.Time                `json:"last_cycle_at"`
	ConsecutiveFailures int                       `json:"consecutive_failures"`
	LastErrors          map[monitor.Method]string `json:"last_errors,omitempty"`
	Healthy             bool                      `json:"healthy"`
	Channels            []string                  `json:"channels"`
	Stats               Stats                     `json:"stats"`
	RecentHistory       []monitor.ConsensusResult `json:"recent_history"`
}

// getStatus handles GET /api/status. The state itself comes from the
// in-memory snapshot; history and stats degrade to empty when the store fails.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	state := s.status.Snapshot()
	resp := StatusResponse{
		URL:                 s.cfg.URL,
		CurrentVerdict:      state.CurrentVerdict,
		LastTransitionAt:    state.LastTransitionAt,
		LastAlertAt:         state.LastAlertAt,
		LastCycleAt:         state.LastCycleAt,
		ConsecutiveFailures: state.ConsecutiveFailures,
		LastErrors:          state.LastErrors,
		Healthy:             s.healthy(state),
		Channels:            s.cfg.Channels,
		RecentHistory:       []monitor.ConsensusResult{},
	}
	if resp.CurrentVerdict == "" {
		resp.CurrentVerdict = monitor.VerdictUnknown
	}

	if s.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		history, err := s.history.RecentHistory(ctx, statsWindow)
		if err != nil {
			s.logger.Error("load history for status failed", zap.Error(err))
		} else {
			resp.Stats = summarize(history)
			if len(history) > statusHistoryLimit {
				history = history[:statusHistoryLimit]
			}
			resp.RecentHistory = history
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// listHistory handles GET /api/history?limit=.
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store unavailable")
		return
	}
	limit, err := parseLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	history, err := s.history.RecentHistory(ctx, limit)
	if err != nil {
		s.logger.Error("list history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// listAlerts handles GET /api/alerts?limit=.
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store unavailable")
		return
	}
	limit, err := parseLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	alerts, err := s.history.RecentAlerts(ctx, limit)
	if err != nil {
		s.logger.Error("list alerts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func summarize(history []monitor.ConsensusResult) Stats {
	st := Stats{Window: statsWindow, TotalChecks: len(history)}
	for _, r := range history {
		switch r.Verdict {
		case monitor.VerdictCapped:
			st.CappedChecks++
		case monitor.VerdictAvailable:
			st.AvailableChecks++
		default:
			st.FailedChecks++
		}
		if !r.Agreement {
			st.Disagreements++
		}
	}
	return st
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}
