// Package monitor defines the core types shared across the liquidity monitor subsystems.
package monitor

import (
	"net/http"
	"time"
)

// Method identifies how a page observation was retrieved.
type Method string

// Supported retrieval methods.
const (
	MethodHTTP     Method = "HTTP"
	MethodRendered Method = "RENDERED"
)

// Verdict is the liquidity state derived from one or more observations.
type Verdict string

// Verdict values.
const (
	VerdictCapped    Verdict = "CAPPED"
	VerdictAvailable Verdict = "AVAILABLE"
	VerdictUnknown   Verdict = "UNKNOWN"
)

// Known reports whether the verdict carries information about the page.
func (v Verdict) Known() bool {
	return v == VerdictCapped || v == VerdictAvailable
}

// FetchRequest captures everything needed to fetch the target page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Screenshot []byte
	Duration   time.Duration
	Method     Method
}

// IndicatorResult is the outcome of one indicator check.
type IndicatorResult struct {
	Name string `json:"name"`
	Hit  bool   `json:"hit"`
}

// Observation is the verdict produced from a single fetch attempt. Failed
// attempts still produce an Observation with VerdictUnknown and Error set.
type Observation struct {
	Method         Method            `json:"method"`
	Timestamp      time.Time         `json:"timestamp"`
	IndicatorHits  int               `json:"indicator_hits"`
	IndicatorTotal int               `json:"indicator_total"`
	Indicators     []IndicatorResult `json:"indicators,omitempty"`
	RawSnippet     string            `json:"raw_snippet,omitempty"`
	ContentHash    string            `json:"content_hash,omitempty"`
	Verdict        Verdict           `json:"verdict"`
	Error          string            `json:"error,omitempty"`
	// Source and Screenshot are retained for diagnostics within the cycle only.
	Source     []byte `json:"-"`
	Screenshot []byte `json:"-"`
}

// ConsensusResult is the authoritative outcome of one polling cycle.
type ConsensusResult struct {
	ID             string        `json:"id"`
	CycleTimestamp time.Time     `json:"cycle_timestamp"`
	Verdict        Verdict       `json:"verdict"`
	Agreement      bool          `json:"agreement"`
	Observations   []Observation `json:"observations"`
}

// Observation returns the observation recorded for method, if any.
func (r ConsensusResult) Observation(method Method) (Observation, bool) {
	for _, obs := range r.Observations {
		if obs.Method == method {
			return obs, true
		}
	}
	return Observation{}, false
}

// MonitorState is the persisted, process-wide view of the monitored page.
type MonitorState struct {
	CurrentVerdict      Verdict           `json:"current_verdict"`
	LastTransitionAt    *time.Time        `json:"last_transition_at,omitempty"`
	LastAlertAt         *time.Time        `json:"last_alert_at,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastCycleAt         *time.Time        `json:"last_cycle_at,omitempty"`
	LastErrors          map[Method]string `json:"last_errors,omitempty"`
}

// Clone returns a deep copy so callers never share the LastErrors map.
func (s MonitorState) Clone() MonitorState {
	cp := s
	cp.LastTransitionAt = cloneTime(s.LastTransitionAt)
	cp.LastAlertAt = cloneTime(s.LastAlertAt)
	cp.LastCycleAt = cloneTime(s.LastCycleAt)
	if s.LastErrors != nil {
		cp.LastErrors = make(map[Method]string, len(s.LastErrors))
		for k, v := range s.LastErrors {
			cp.LastErrors[k] = v
		}
	}
	return cp
}

// Transition describes a verdict change that triggered an alert.
type Transition struct {
	From Verdict `json:"from"`
	To   Verdict `json:"to"`
}

// ChannelResult records the outcome of a single channel send.
type ChannelResult struct {
	Channel  string        `json:"channel"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// AlertEvent is created for every qualifying CAPPED→AVAILABLE transition.
type AlertEvent struct {
	ID               string                   `json:"id"`
	Transition       Transition               `json:"transition"`
	DetectedAt       time.Time                `json:"detected_at"`
	ChannelsNotified []string                 `json:"channels_notified"`
	ChannelResults   map[string]ChannelResult `json:"channel_results"`
}

// HealthNotice reports that the checker itself is failing, or has recovered.
type HealthNotice struct {
	DetectedAt          time.Time `json:"detected_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	Recovered           bool      `json:"recovered"`
}

// DebugArtifactKind labels a diagnostics artifact.
type DebugArtifactKind string

// Artifact kinds written on method disagreement.
const (
	ArtifactAnalysis   DebugArtifactKind = "analysis"
	ArtifactSource     DebugArtifactKind = "source"
	ArtifactScreenshot DebugArtifactKind = "screenshot"
)

// DebugArtifact is raw content captured when methods disagree.
type DebugArtifact struct {
	Kind      DebugArtifactKind
	Method    Method
	Timestamp time.Time
	Data      []byte
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
