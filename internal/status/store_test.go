package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/docflow/internal/log"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func openStore(t *testing.T, dir string, ids []string, clock *fakeClock) *Store {
	t.Helper()
	opts := Options{Logger: log.Nop()}
	if clock != nil {
		opts.Now = clock.Now
	}
	s, err := Open(dir, ids, opts)
	require.NoError(t, err)
	return s
}

// advance walks id through the given states.
func advance(t *testing.T, s *Store, id string, states ...State) {
	t.Helper()
	for _, st := range states {
		_, err := s.Transition(id, st, Meta{})
		require.NoError(t, err, "%s -> %s", id, st)
	}
}

func TestOpenDefaultsToNotStarted(t *testing.T) {
	s := openStore(t, t.TempDir(), []string{"a", "b"}, nil)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, NotStarted, snap.State("a"))
	assert.Equal(t, NotStarted, snap.State("b"))
	assert.Equal(t, 2, snap.Count(NotStarted))
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open("", nil, Options{Logger: log.Nop()})
	assert.Error(t, err)
}

func TestTransitionPersists(t *testing.T) {
	dir := t.TempDir()
	clock := newClock()
	s := openStore(t, dir, []string{"a"}, clock)

	advance(t, s, "a", Ready, Running)
	clock.Advance(2 * time.Minute)
	us, err := s.Transition("a", Succeeded, Meta{Reason: "done"})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, us.State)
	require.NotNil(t, us.StartedAt)
	require.NotNil(t, us.FinishedAt)
	assert.Equal(t, 2*time.Minute, us.FinishedAt.Sub(*us.StartedAt))

	reopened := openStore(t, dir, []string{"a"}, nil)
	got, ok := reopened.Get("a")
	require.True(t, ok)
	assert.Equal(t, Succeeded, got.State)
	assert.Equal(t, us.StartedAt.UTC(), got.StartedAt.UTC())
}

func TestTransitionRejectsIllegalMoves(t *testing.T) {
	s := openStore(t, t.TempDir(), []string{"a"}, nil)
	advance(t, s, "a", Ready, Running, Succeeded)

	_, err := s.Transition("a", Running, Meta{})
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, Succeeded, te.From)
	assert.Equal(t, Running, te.To)
	assert.False(t, te.Unknown)

	got, _ := s.Get("a")
	assert.Equal(t, Succeeded, got.State, "state unchanged after rejected transition")

	_, err = s.Transition("ghost", Ready, Meta{})
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Unknown)
}

func TestFailedRecordsErrorAndRetryCount(t *testing.T) {
	s := openStore(t, t.TempDir(), []string{"a"}, nil)
	advance(t, s, "a", Ready, Running)

	us, err := s.Transition("a", Failed, Meta{Error: "provider returned 500"})
	require.NoError(t, err)
	assert.Equal(t, "provider returned 500", us.LastError)

	require.NoError(t, s.Reset("a", "retry"))
	got, _ := s.Get("a")
	assert.Equal(t, NotStarted, got.State)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.LastError)
}

func TestReset(t *testing.T) {
	s := openStore(t, t.TempDir(), []string{"a", "b"}, nil)

	require.NoError(t, s.Reset("a", "noop"), "resetting a not-started unit is a no-op")

	advance(t, s, "b", Ready, Running)
	var te *TransitionError
	assert.True(t, errors.As(s.Reset("b", "x"), &te), "running units cannot be reset")

	assert.True(t, errors.As(s.Reset("ghost", "x"), &te))
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := openStore(t, t.TempDir(), []string{"a"}, nil)
	snap := s.Snapshot()

	advance(t, s, "a", Ready)
	assert.Equal(t, NotStarted, snap.State("a"))
	assert.Equal(t, Ready, s.Snapshot().State("a"))
}

func TestLoadToleratesCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	record := `{
  "version": 1,
  "units": {
    "good":    {"state": "succeeded", "retry_count": 2},
    "badjson": "not an object",
    "badstate": {"state": "completed"},
    "gone":    {"state": "failed", "last_error": "x"}
  }
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, recordFile), []byte(record), 0o644))

	s := openStore(t, dir, []string{"good", "badjson", "badstate", "missing"}, nil)
	snap := s.Snapshot()

	assert.Equal(t, Succeeded, snap.State("good"))
	got, _ := snap.Get("good")
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, NotStarted, snap.State("badjson"))
	assert.Equal(t, NotStarted, snap.State("badstate"))
	assert.Equal(t, NotStarted, snap.State("missing"))
	_, tracked := snap.Get("gone")
	assert.False(t, tracked, "entries outside the registry are not exposed")

	// entries outside the registry survive the next write
	advance(t, s, "missing", Ready)
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var rec persistedRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Contains(t, rec.Units, "gone")
}

func TestLoadToleratesUnreadableRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, recordFile), []byte(`{"units": {`), 0o644))

	s := openStore(t, dir, []string{"a"}, nil)
	assert.Equal(t, NotStarted, s.Snapshot().State("a"))
}

func TestCrashBeforeRenameKeepsOldRecord(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, []string{"a", "b"}, nil)
	advance(t, s, "a", Ready, Running, Succeeded)

	s.beforeRename = func(string) error { return fmt.Errorf("simulated crash") }
	_, err := s.Transition("b", Ready, Meta{})
	require.Error(t, err)

	assert.Equal(t, NotStarted, s.Snapshot().State("b"), "in-memory state rolled back")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp.", "temp file cleaned up")
	}

	reopened := openStore(t, dir, []string{"a", "b"}, nil)
	assert.Equal(t, Succeeded, reopened.Snapshot().State("a"))
	assert.Equal(t, NotStarted, reopened.Snapshot().State("b"))
}

func TestKilledWriterLeavesRecordParseable(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, []string{"a"}, nil)
	advance(t, s, "a", Ready, Running, Succeeded)

	// A process killed mid-write leaves only a truncated temp file behind.
	partial := filepath.Join(dir, recordFile+".tmp.123456")
	require.NoError(t, os.WriteFile(partial, []byte(`{"version":1,"units":{"a":{"sta`), 0o644))

	reopened := openStore(t, dir, []string{"a"}, nil)
	got, _ := reopened.Get("a")
	assert.Equal(t, Succeeded, got.State)
}

func TestAuditLog(t *testing.T) {
	s := openStore(t, t.TempDir(), []string{"a"}, nil)
	s.SetRunID("run-1")
	advance(t, s, "a", Ready, Running)
	_, err := s.Transition("a", Failed, Meta{Error: "boom", Reason: "executor"})
	require.NoError(t, err)

	_, err = s.Transition("a", Running, Meta{})
	require.Error(t, err)

	events, err := ReadAudit(s.AuditPath())
	require.NoError(t, err)
	require.Len(t, events, 3, "rejected transitions are not audited")
	assert.Equal(t, NotStarted, events[0].From)
	assert.Equal(t, Ready, events[0].To)
	assert.Equal(t, Failed, events[2].To)
	assert.Equal(t, "boom", events[2].Error)
	assert.Equal(t, "executor", events[2].Reason)
	assert.Equal(t, "run-1", events[2].RunID)
}

func TestReadAuditMissingFile(t *testing.T) {
	events, err := ReadAudit(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

type recordingObserver struct {
	events []Event
}

func (r *recordingObserver) ObserveTransition(ev Event) {
	r.events = append(r.events, ev)
}

func TestSubscribeAndObservers(t *testing.T) {
	obs := &recordingObserver{}
	s, err := Open(t.TempDir(), []string{"a"}, Options{Logger: log.Nop(), Observers: []Observer{obs}})
	require.NoError(t, err)

	ch, cancel := s.Subscribe(8)
	advance(t, s, "a", Ready, Running)

	ev := <-ch
	assert.Equal(t, "a", ev.Unit)
	assert.Equal(t, Ready, ev.To)
	ev = <-ch
	assert.Equal(t, Running, ev.To)
	assert.Len(t, obs.events, 2)

	cancel()
	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")

	// publishing after cancel must not panic
	advance(t, s, "a", Succeeded)
	cancel()
}

func TestSlowSubscriberDoesNotBlockWriter(t *testing.T) {
	s := openStore(t, t.TempDir(), []string{"a"}, nil)
	ch, cancel := s.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		advance(t, s, "a", Ready, Running, Succeeded)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writer blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}

func TestReconcile(t *testing.T) {
	clock := newClock()
	s := openStore(t, t.TempDir(), []string{"old", "fresh", "done"}, clock)

	advance(t, s, "old", Ready, Running)
	advance(t, s, "done", Ready, Running, Succeeded)
	clock.Advance(time.Hour)
	advance(t, s, "fresh", Ready, Running)
	clock.Advance(time.Minute)

	crashed, err := s.Reconcile(30 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, crashed)

	snap := s.Snapshot()
	assert.Equal(t, Failed, snap.State("old"))
	assert.Equal(t, Running, snap.State("fresh"))
	assert.Equal(t, Succeeded, snap.State("done"))

	old, _ := snap.Get("old")
	assert.Equal(t, CrashedError, old.LastError)
}

func TestRegistryFingerprintPersists(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, []string{"a"}, nil)
	require.NoError(t, s.SetRegistryFingerprint("abc"))

	reopened := openStore(t, dir, []string{"a"}, nil)
	assert.Equal(t, "abc", reopened.RegistryFingerprint())
}

func TestConcurrentTransitions(t *testing.T) {
	dir := t.TempDir()
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%02d", i)
	}
	s := openStore(t, dir, ids, nil)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, st := range []State{Ready, Running, Succeeded} {
				if _, err := s.Transition(id, st, Meta{}); err != nil {
					t.Errorf("%s -> %s: %v", id, st, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	reopened := openStore(t, dir, ids, nil)
	assert.Equal(t, len(ids), reopened.Snapshot().Count(Succeeded))

	events, err := ReadAudit(s.AuditPath())
	require.NoError(t, err)
	assert.Len(t, events, 3*len(ids))
}
