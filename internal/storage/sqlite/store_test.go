package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "monitor.db")
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), "")
	require.Error(t, err)
}

func TestLoadLastStateEmpty(t *testing.T) {
	t.Parallel()
	store, _ := openTemp(t)

	state, err := store.LoadLastState(context.Background())
	require.NoError(t, err)
	require.Equal(t, monitor.MonitorState{}, state)
}

func TestStateSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, path := openTemp(t)

	at := time.Unix(1700000100, 0).UTC()
	want := monitor.MonitorState{
		CurrentVerdict:      monitor.VerdictAvailable,
		LastTransitionAt:    &at,
		LastAlertAt:         &at,
		LastCycleAt:         &at,
		ConsecutiveFailures: 0,
	}
	require.NoError(t, store.SaveState(ctx, monitor.MonitorState{CurrentVerdict: monitor.VerdictCapped}))
	require.NoError(t, store.SaveState(ctx, want))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.LoadLastState(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestHistoryNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := openTemp(t)

	base := time.Unix(1700000000, 0).UTC()
	for i, verdict := range []monitor.Verdict{monitor.VerdictCapped, monitor.VerdictUnknown, monitor.VerdictAvailable} {
		require.NoError(t, store.AppendHistory(ctx, monitor.ConsensusResult{
			ID:             string(rune('a' + i)),
			CycleTimestamp: base.Add(time.Duration(i) * 15 * time.Second),
			Verdict:        verdict,
			Agreement:      true,
			Observations: []monitor.Observation{{
				Method:  monitor.MethodHTTP,
				Verdict: verdict,
			}},
		}))
	}

	got, err := store.RecentHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].ID)
	require.Equal(t, monitor.VerdictAvailable, got[0].Verdict)
	require.Equal(t, "b", got[1].ID)
	require.Len(t, got[0].Observations, 1)

	all, err := store.RecentHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestAlertsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := openTemp(t)

	event := monitor.AlertEvent{
		ID:               "alert-1",
		Transition:       monitor.Transition{From: monitor.VerdictCapped, To: monitor.VerdictAvailable},
		DetectedAt:       time.Unix(1700000100, 0).UTC(),
		ChannelsNotified: []string{"discord"},
		ChannelResults: map[string]monitor.ChannelResult{
			"discord": {Channel: "discord", OK: true},
			"email":   {Channel: "email", Error: "send email: dial tcp: refused"},
		},
	}
	require.NoError(t, store.AppendAlert(ctx, event))

	got, err := store.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []monitor.AlertEvent{event}, got)
}
