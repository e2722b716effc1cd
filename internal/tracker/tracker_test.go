package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
	"github.com/JakeFAU/liquidity-monitor/internal/storage/memory"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

type failingStore struct {
	*memory.Store
	failHistory bool
	failSave    bool
}

func (f *failingStore) AppendHistory(ctx context.Context, r monitor.ConsensusResult) error {
	if f.failHistory {
		return errors.New("disk full")
	}
	return f.Store.AppendHistory(ctx, r)
}

func (f *failingStore) SaveState(ctx context.Context, s monitor.MonitorState) error {
	if f.failSave {
		return errors.New("database is locked")
	}
	return f.Store.SaveState(ctx, s)
}

func newTracker(t *testing.T, store monitor.Store) *Tracker {
	t.Helper()
	return New(Config{AlertCooldown: 180 * time.Second, FailureThreshold: 3}, store, fixedClock{now: epoch}, &seqIDs{}, nil)
}

func cycle(sec int, verdict monitor.Verdict) monitor.ConsensusResult {
	at := epoch.Add(time.Duration(sec) * time.Second)
	obs := monitor.Observation{Method: monitor.MethodHTTP, Timestamp: at, Verdict: verdict}
	if verdict == monitor.VerdictUnknown {
		obs.Error = "fetch HTTP: timeout"
	}
	return monitor.ConsensusResult{CycleTimestamp: at, Verdict: verdict, Agreement: true, Observations: []monitor.Observation{obs}}
}

func TestRecordScenarioCooldownRequiresTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	tr := newTracker(t, store)

	d, err := tr.Record(ctx, cycle(0, monitor.VerdictCapped))
	require.NoError(t, err)
	require.Nil(t, d.Alert)
	require.NotNil(t, d.Transition)
	require.Equal(t, monitor.Verdict(""), d.Transition.From)
	require.Equal(t, monitor.VerdictCapped, tr.Snapshot().CurrentVerdict)

	d, err = tr.Record(ctx, cycle(100, monitor.VerdictAvailable))
	require.NoError(t, err)
	require.NotNil(t, d.Alert)
	require.Equal(t, monitor.Transition{From: monitor.VerdictCapped, To: monitor.VerdictAvailable}, d.Alert.Transition)
	require.Equal(t, epoch.Add(100*time.Second), *tr.Snapshot().LastAlertAt)

	d, err = tr.Record(ctx, cycle(150, monitor.VerdictAvailable))
	require.NoError(t, err)
	require.Nil(t, d.Alert)
	require.Nil(t, d.Transition)

	d, err = tr.Record(ctx, cycle(300, monitor.VerdictAvailable))
	require.NoError(t, err)
	require.Nil(t, d.Alert, "elapsed cooldown alone must not alert")

	st := tr.Snapshot()
	require.Equal(t, epoch.Add(100*time.Second), *st.LastTransitionAt)
	require.Equal(t, epoch.Add(100*time.Second), *st.LastAlertAt)

	history, err := store.RecentHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
}

func TestRecordAlertIffTransitionAndCooldown(t *testing.T) {
	t.Parallel()

	type step struct {
		sec       int
		verdict   monitor.Verdict
		wantAlert bool
	}
	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "flapping inside cooldown alerts once",
			steps: []step{
				{0, monitor.VerdictCapped, false},
				{10, monitor.VerdictAvailable, true},
				{20, monitor.VerdictCapped, false},
				{30, monitor.VerdictAvailable, false},
				{40, monitor.VerdictCapped, false},
				{200, monitor.VerdictAvailable, true},
			},
		},
		{
			name: "cooldown boundary is inclusive",
			steps: []step{
				{0, monitor.VerdictCapped, false},
				{10, monitor.VerdictAvailable, true},
				{100, monitor.VerdictCapped, false},
				{190, monitor.VerdictAvailable, true},
			},
		},
		{
			name: "available from unset never alerts",
			steps: []step{
				{0, monitor.VerdictAvailable, false},
				{15, monitor.VerdictAvailable, false},
			},
		},
		{
			name: "unknown between capped and available keeps the transition",
			steps: []step{
				{0, monitor.VerdictCapped, false},
				{15, monitor.VerdictUnknown, false},
				{30, monitor.VerdictAvailable, true},
			},
		},
		{
			name: "available to capped never alerts",
			steps: []step{
				{0, monitor.VerdictAvailable, false},
				{15, monitor.VerdictCapped, false},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := newTracker(t, memory.NewStore())
			for _, s := range tt.steps {
				d, err := tr.Record(context.Background(), cycle(s.sec, s.verdict))
				require.NoError(t, err)
				require.Equal(t, s.wantAlert, d.Alert != nil, "t=%d verdict=%s", s.sec, s.verdict)
			}
		})
	}
}

func TestRecordIdempotentUnderRepeatedAvailable(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, memory.NewStore())
	ctx := context.Background()
	_, err := tr.Record(ctx, cycle(0, monitor.VerdictCapped))
	require.NoError(t, err)

	alerts := 0
	for i := 1; i <= 100; i++ {
		d, err := tr.Record(ctx, cycle(i*60, monitor.VerdictAvailable))
		require.NoError(t, err)
		if d.Alert != nil {
			alerts++
		}
	}
	require.Equal(t, 1, alerts)
}

func TestRecordUnknownLeavesVerdictAndRaisesHealthOnce(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, memory.NewStore())
	ctx := context.Background()
	_, err := tr.Record(ctx, cycle(0, monitor.VerdictCapped))
	require.NoError(t, err)

	var notices []*monitor.HealthNotice
	for i := 1; i <= 5; i++ {
		d, err := tr.Record(ctx, cycle(i*15, monitor.VerdictUnknown))
		require.NoError(t, err)
		require.Nil(t, d.Transition)
		if d.Health != nil {
			notices = append(notices, d.Health)
		}
	}
	st := tr.Snapshot()
	require.Equal(t, monitor.VerdictCapped, st.CurrentVerdict)
	require.Equal(t, 5, st.ConsecutiveFailures)
	require.Equal(t, "fetch HTTP: timeout", st.LastErrors[monitor.MethodHTTP])
	require.Len(t, notices, 1)
	require.Equal(t, 3, notices[0].ConsecutiveFailures)
	require.False(t, notices[0].Recovered)
	require.Contains(t, notices[0].LastError, "HTTP: fetch HTTP: timeout")

	d, err := tr.Record(ctx, cycle(120, monitor.VerdictCapped))
	require.NoError(t, err)
	require.NotNil(t, d.Health)
	require.True(t, d.Health.Recovered)
	require.Zero(t, tr.Snapshot().ConsecutiveFailures)
	require.Nil(t, tr.Snapshot().LastErrors)
}

func TestRecordPersistenceFailureDoesNotAdvanceState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &failingStore{Store: memory.NewStore()}
	tr := newTracker(t, store)
	_, err := tr.Record(ctx, cycle(0, monitor.VerdictCapped))
	require.NoError(t, err)

	store.failSave = true
	d, err := tr.Record(ctx, cycle(100, monitor.VerdictAvailable))
	var perr *monitor.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "save state", perr.Op)
	require.Nil(t, d.Alert)
	require.Equal(t, monitor.VerdictCapped, tr.Snapshot().CurrentVerdict)
	require.Nil(t, tr.Snapshot().LastAlertAt)

	store.failSave = false
	store.failHistory = true
	_, err = tr.Record(ctx, cycle(115, monitor.VerdictAvailable))
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "append history", perr.Op)

	// The next healthy cycle retries the transition and alerts.
	store.failHistory = false
	d, err = tr.Record(ctx, cycle(130, monitor.VerdictAvailable))
	require.NoError(t, err)
	require.NotNil(t, d.Alert)

	persisted, err := store.LoadLastState(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.VerdictAvailable, persisted.CurrentVerdict)
}

func TestLoadRestoresPersistedState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	last := epoch.Add(-time.Minute)
	require.NoError(t, store.SaveState(ctx, monitor.MonitorState{CurrentVerdict: monitor.VerdictCapped, LastAlertAt: &last}))

	tr := newTracker(t, store)
	require.NoError(t, tr.Load(ctx))
	require.Equal(t, monitor.VerdictCapped, tr.Snapshot().CurrentVerdict)

	// The restored alert time still gates the cooldown after a restart.
	d, err := tr.Record(ctx, cycle(60, monitor.VerdictAvailable))
	require.NoError(t, err)
	require.Nil(t, d.Alert)
	require.NotNil(t, d.Transition)
}

func TestRecordAssignsIDsAndTimestamp(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	tr := newTracker(t, store)
	d, err := tr.Record(context.Background(), monitor.ConsensusResult{Verdict: monitor.VerdictCapped})
	require.NoError(t, err)
	require.Equal(t, "id-1", d.Result.ID)
	require.Equal(t, epoch, d.Result.CycleTimestamp)
	require.Equal(t, epoch, *d.State.LastCycleAt)
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, memory.NewStore())
	_, err := tr.Record(context.Background(), cycle(0, monitor.VerdictUnknown))
	require.NoError(t, err)

	snap := tr.Snapshot()
	snap.LastErrors[monitor.MethodHTTP] = "changed"
	require.Equal(t, "fetch HTTP: timeout", tr.Snapshot().LastErrors[monitor.MethodHTTP])
}
