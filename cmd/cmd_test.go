package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/liquidity-monitor/internal/config"
	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
	"github.com/JakeFAU/liquidity-monitor/internal/storage/sqlite"
)

func TestRenderCycle(t *testing.T) {
	out := renderCycle(monitor.ConsensusResult{
		ID:             "cycle-1",
		CycleTimestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Verdict:        monitor.VerdictCapped,
		Agreement:      true,
		Observations: []monitor.Observation{
			{Method: monitor.MethodHTTP, Verdict: monitor.VerdictCapped, IndicatorHits: 8, IndicatorTotal: 8},
			{Method: monitor.MethodRendered, Verdict: monitor.VerdictUnknown, Error: "fetch RENDERED: navigation timeout"},
		},
	})
	require.Contains(t, out, "cycle-1")
	require.Contains(t, out, "CAPPED")
	require.Contains(t, out, "8/8 indicators")
	require.Contains(t, out, "navigation timeout")
}

func TestRenderStatusEmpty(t *testing.T) {
	out := renderStatus("https://example.com", monitor.MonitorState{}, nil, nil)
	require.Contains(t, out, "UNKNOWN")
	require.Contains(t, out, "never")
	require.NotContains(t, out, "Recent alerts")
}

func TestStatusCommandReadsPersistedState(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "monitor.db")
	ctx := context.Background()

	store, err := sqlite.Open(ctx, dbPath)
	require.NoError(t, err)
	at := time.Date(2025, 1, 1, 0, 2, 30, 0, time.UTC)
	require.NoError(t, store.SaveState(ctx, monitor.MonitorState{
		CurrentVerdict:   monitor.VerdictAvailable,
		LastTransitionAt: &at,
		LastAlertAt:      &at,
		LastCycleAt:      &at,
	}))
	require.NoError(t, store.AppendAlert(ctx, monitor.AlertEvent{
		ID:               "alert-1",
		Transition:       monitor.Transition{From: monitor.VerdictCapped, To: monitor.VerdictAvailable},
		DetectedAt:       at,
		ChannelsNotified: []string{"discord", "pushover"},
	}))
	require.NoError(t, store.Close())

	original := loadConfig
	t.Cleanup(func() { loadConfig = original })
	loadConfig = func(string) (config.Config, error) {
		return config.Config{
			Monitor: config.MonitorConfig{URL: "https://example.com/liquidity"},
			Storage: config.StorageConfig{Driver: "sqlite", SQLitePath: dbPath},
		}, nil
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"status", "--limit", "5"})
	require.NoError(t, root.ExecuteContext(ctx))

	text := out.String()
	require.Contains(t, text, "AVAILABLE")
	require.Contains(t, text, "2025-01-01T00:02:30Z")
	require.Contains(t, text, "discord, pushover")
}

func TestResolveRuntimeMissing(t *testing.T) {
	_, err := resolveRuntime(context.Background())
	require.Error(t, err)
}
