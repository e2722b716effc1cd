// Package consensus reconciles per-method observations into one verdict per cycle.
package consensus

import (
	"time"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

// Resolve combines the observations of one cycle.
//
// UNKNOWN observations are excluded. With nothing left the cycle is UNKNOWN.
// A single usable observation is authoritative. When the HTTP and rendered
// methods disagree the HTTP verdict wins and Agreement is false, which is the
// caller's cue to capture diagnostics.
func Resolve(at time.Time, observations ...monitor.Observation) monitor.ConsensusResult {
	result := monitor.ConsensusResult{
		CycleTimestamp: at,
		Verdict:        monitor.VerdictUnknown,
		Agreement:      true,
		Observations:   append([]monitor.Observation(nil), observations...),
	}

	var usable []monitor.Observation
	for _, obs := range observations {
		if obs.Verdict.Known() {
			usable = append(usable, obs)
		}
	}
	if len(usable) == 0 {
		return result
	}

	result.Verdict = usable[0].Verdict
	for _, obs := range usable[1:] {
		if obs.Verdict != result.Verdict {
			result.Agreement = false
		}
	}
	if result.Agreement {
		return result
	}
	for _, obs := range usable {
		if obs.Method == monitor.MethodHTTP {
			result.Verdict = obs.Verdict
			break
		}
	}
	return result
}
