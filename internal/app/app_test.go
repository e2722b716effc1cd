package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/liquidity-monitor/internal/config"
	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

const cappedPage = `<html><body><main>
<button disabled="" class="w-full cursor-not-allowed bg-[#636363] text-[#a0a0a0] opacity-50 pointer-events-none" aria-disabled="true">Liquidity Currently Capped</button>
</main></body></html>`

func testConfig(pageURL, webhookURL string) config.Config {
	return config.Config{
		Monitor: config.MonitorConfig{
			URL:                  pageURL,
			CheckIntervalSeconds: 15,
			TimeoutSeconds:       5,
			AlertCooldownSeconds: 180,
			FailureThreshold:     3,
		},
		Detector: config.DetectorConfig{
			MarkerText:        "Liquidity Currently Capped",
			HTTPThreshold:     0.5,
			RenderedThreshold: 0.75,
			SnippetBytes:      1000,
		},
		HTTP:      config.HTTPConfig{UserAgent: "liquidity-monitor-test"},
		Alerts:    config.AlertsConfig{SendTimeoutSeconds: 2, DiscordWebhook: webhookURL},
		Storage:   config.StorageConfig{Driver: "memory"},
		Artifacts: config.ArtifactsConfig{Driver: "memory"},
	}
}

func TestNewWiresHTTPOnlyPipeline(t *testing.T) {
	t.Parallel()

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "liquidity-monitor-test", r.UserAgent())
		_, _ = io.WriteString(w, cappedPage)
	}))
	defer page.Close()

	var webhooks atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		webhooks.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	a, err := New(context.Background(), testConfig(page.URL, hook.URL), nil)
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, []string{"discord"}, a.Dispatcher.Channels())

	res, err := a.Scheduler.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, monitor.VerdictCapped, res.Verdict)
	require.Len(t, res.Observations, 1)
	require.Equal(t, monitor.VerdictCapped, a.Tracker.Snapshot().CurrentVerdict)
	require.Zero(t, webhooks.Load())

	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://example.com", "https://discord.example/hook")
	cfg.Storage.Driver = "etcd"
	_, err := OpenStore(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown storage driver")
}

func TestOpenStoreSQLite(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://example.com", "https://discord.example/hook")
	cfg.Storage = config.StorageConfig{Driver: "sqlite", SQLitePath: t.TempDir() + "/monitor.db"}
	a, err := OpenStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	state, err := a.Store.LoadLastState(context.Background())
	require.NoError(t, err)
	require.Equal(t, monitor.MonitorState{}, state)
}

func TestDefaultHeaders(t *testing.T) {
	t.Parallel()
	h := DefaultHeaders()
	require.Contains(t, h.Get("Accept"), "text/html")
	require.NotEmpty(t, h.Get("Accept-Language"))
}
