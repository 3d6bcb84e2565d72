package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/docflow/internal/log"
)

const (
	recordFile    = "status.json"
	auditFile     = "audit.jsonl"
	formatVersion = 1
)

// Observer is notified synchronously after every committed transition.
type Observer interface {
	ObserveTransition(Event)
}

// Options configures a Store.
type Options struct {
	Logger *log.Logger
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
	// Observers are called in order, under the store lock, after each commit.
	Observers []Observer
}

// Store is the durable, file-backed record of unit lifecycle state.
type Store struct {
	mu sync.Mutex

	dir   string
	ids   []string
	known map[string]bool

	units map[string]UnitStatus
	// foreign keeps entries for ids that are not part of the current registry
	// so that switching registries does not silently drop history.
	foreign  map[string]json.RawMessage
	registry string
	runID    string

	logger    *log.Logger
	now       func() time.Time
	observers []Observer

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	// beforeRename runs after the temp file is durable and before it replaces
	// the record. Tests use it to simulate a crash mid-write.
	beforeRename func(tmpPath string) error
}

// persistedRecord is the on-disk layout of status.json.
type persistedRecord struct {
	Version   int                        `json:"version"`
	Registry  string                     `json:"registry,omitempty"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Units     map[string]json.RawMessage `json:"units"`
}

// Open creates the state directory if needed and loads the record for ids.
func Open(dir string, ids []string, opts Options) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	s := &Store{
		dir:       dir,
		ids:       append([]string(nil), ids...),
		known:     make(map[string]bool, len(ids)),
		logger:    log.OrDefault(opts.Logger).With("component", "status"),
		now:       opts.Now,
		observers: opts.Observers,
		subs:      make(map[int]chan Event),
	}
	if s.now == nil {
		s.now = time.Now
	}
	for _, id := range ids {
		s.known[id] = true
	}

	if _, err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the persisted record.
func (s *Store) Path() string {
	return filepath.Join(s.dir, recordFile)
}

// AuditPath returns the location of the append-only audit log.
func (s *Store) AuditPath() string {
	return filepath.Join(s.dir, auditFile)
}

// SetRunID stamps subsequent audit entries and events with id.
func (s *Store) SetRunID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = id
}

// RegistryFingerprint returns the registry fingerprint stored in the record.
func (s *Store) RegistryFingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry
}

// SetRegistryFingerprint records the fingerprint of the registry the record
// belongs to and persists it.
func (s *Store) SetRegistryFingerprint(fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry == fp {
		return nil
	}
	prev := s.registry
	s.registry = fp
	if err := s.persistLocked(); err != nil {
		s.registry = prev
		return err
	}
	return nil
}

// Load (re)reads the persisted record. Missing, corrupt or unknown entries
// default that unit to NotStarted and are logged; a single bad entry never
// fails the whole load. The returned map is a copy.
func (s *Store) Load() (map[string]UnitStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.units = make(map[string]UnitStatus, len(s.ids))
	s.foreign = make(map[string]json.RawMessage)
	s.registry = ""

	data, err := os.ReadFile(s.Path())
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = nil
	case err != nil:
		return nil, fmt.Errorf("read status record: %w", err)
	}

	var rec persistedRecord
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("status record is unreadable, assuming every unit not started",
				"path", s.Path(), "error", err)
			rec = persistedRecord{}
		}
	}
	s.registry = rec.Registry

	for id, raw := range rec.Units {
		if !s.known[id] {
			s.foreign[id] = raw
			continue
		}
		var us UnitStatus
		if err := json.Unmarshal(raw, &us); err != nil {
			s.logger.Warn("corrupt status entry, assuming not started", "unit", id, "error", err)
			continue
		}
		if us.RetryCount < 0 {
			us.RetryCount = 0
		}
		s.units[id] = us
	}

	for _, id := range s.ids {
		if _, ok := s.units[id]; !ok {
			s.units[id] = UnitStatus{State: NotStarted}
		}
	}

	return s.copyLocked(), nil
}

func (s *Store) copyLocked() map[string]UnitStatus {
	out := make(map[string]UnitStatus, len(s.units))
	for id, us := range s.units {
		out[id] = us.clone()
	}
	return out
}

// Get returns the current status of id.
func (s *Store) Get(id string) (UnitStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	us, ok := s.units[id]
	return us.clone(), ok
}

// Snapshot returns an immutable copy of every unit's status.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{statuses: s.copyLocked(), takenAt: s.now()}
}

// Transition validates and applies a state change, persisting it before it
// becomes visible. If persisting fails the previous state is kept both in
// memory and on disk.
func (s *Store) Transition(id string, to State, meta Meta) (UnitStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.units[id]
	if !ok {
		return UnitStatus{}, &TransitionError{Unit: id, To: to, Unknown: true}
	}
	if !CanTransition(cur.State, to) {
		return cur.clone(), &TransitionError{Unit: id, From: cur.State, To: to}
	}

	now := s.now()
	next := cur.apply(to, meta, now)
	s.units[id] = next

	if err := s.persistLocked(); err != nil {
		s.units[id] = cur
		return cur.clone(), err
	}

	ev := Event{
		Unit:   id,
		From:   cur.State,
		To:     to,
		At:     now,
		Reason: meta.Reason,
		Error:  next.LastError,
		RunID:  s.runID,
	}
	s.appendAudit(ev)
	for _, o := range s.observers {
		o.ObserveTransition(ev)
	}
	s.publish(ev)

	s.logger.Debug("unit transitioned", "unit", id, "from", cur.State.String(), "to", to.String())
	return next.clone(), nil
}

// Reset moves id back to NotStarted. It is a no-op for units that are
// already NotStarted and an error for running units.
func (s *Store) Reset(id, reason string) error {
	us, ok := s.Get(id)
	if !ok {
		return &TransitionError{Unit: id, To: NotStarted, Unknown: true}
	}
	if us.State == NotStarted {
		return nil
	}
	_, err := s.Transition(id, NotStarted, Meta{Reason: reason})
	return err
}

// CrashedError is recorded on units reconciled out of Running.
const CrashedError = "assumed crashed: running past liveness threshold"

// Reconcile fails every unit that has been Running for longer than threshold
// (or has no start time). A process that died mid-batch leaves such units
// behind; without this pass planning would wait on them forever.
func (s *Store) Reconcile(threshold time.Duration) ([]string, error) {
	snap := s.Snapshot()
	now := s.now()

	var crashed []string
	for _, id := range snap.IDs() {
		us, _ := snap.Get(id)
		if us.State != Running {
			continue
		}
		if us.StartedAt != nil && now.Sub(*us.StartedAt) <= threshold {
			continue
		}
		if _, err := s.Transition(id, Failed, Meta{Error: CrashedError, Reason: "reconcile"}); err != nil {
			var te *TransitionError
			if errors.As(err, &te) {
				// Moved on concurrently; nothing to reconcile.
				continue
			}
			return crashed, err
		}
		s.logger.Warn("reconciled stale running unit", "unit", id)
		crashed = append(crashed, id)
	}
	sort.Strings(crashed)
	return crashed, nil
}

// Close ends every subscription.
func (s *Store) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Store) persistLocked() error {
	rec := persistedRecord{
		Version:   formatVersion,
		Registry:  s.registry,
		UpdatedAt: s.now().UTC(),
		Units:     make(map[string]json.RawMessage, len(s.units)+len(s.foreign)),
	}
	for id, raw := range s.foreign {
		rec.Units[id] = raw
	}
	for id, us := range s.units {
		raw, err := json.Marshal(us)
		if err != nil {
			return fmt.Errorf("marshal status of %s: %w", id, err)
		}
		rec.Units[id] = raw
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status record: %w", err)
	}
	if err := writeFileAtomic(s.Path(), data, 0o644, s.beforeRename); err != nil {
		return fmt.Errorf("persist status record: %w", err)
	}
	return nil
}
