package status

import (
	"sort"
	"time"
)

// Snapshot is an immutable view of every unit's status at one point in time.
// Planning reads snapshots so it never observes the store mid-change.
type Snapshot struct {
	statuses map[string]UnitStatus
	takenAt  time.Time
}

// NewSnapshot builds a snapshot from explicit statuses.
func NewSnapshot(statuses map[string]UnitStatus) Snapshot {
	cp := make(map[string]UnitStatus, len(statuses))
	for id, us := range statuses {
		cp[id] = us.clone()
	}
	return Snapshot{statuses: cp, takenAt: time.Now()}
}

// SnapshotOf builds a snapshot holding only states.
func SnapshotOf(states map[string]State) Snapshot {
	cp := make(map[string]UnitStatus, len(states))
	for id, st := range states {
		cp[id] = UnitStatus{State: st}
	}
	return Snapshot{statuses: cp, takenAt: time.Now()}
}

// State returns the state of id. Units absent from the snapshot are NotStarted.
func (s Snapshot) State(id string) State {
	return s.statuses[id].State
}

// Get returns a copy of the status of id.
func (s Snapshot) Get(id string) (UnitStatus, bool) {
	us, ok := s.statuses[id]
	return us.clone(), ok
}

// IDs returns the ids in the snapshot, sorted.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.statuses))
	for id := range s.statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns how many units are in state st.
func (s Snapshot) Count(st State) int {
	n := 0
	for _, us := range s.statuses {
		if us.State == st {
			n++
		}
	}
	return n
}

// Counts returns the number of units per state.
func (s Snapshot) Counts() map[State]int {
	out := make(map[State]int, len(States))
	for _, us := range s.statuses {
		out[us.State]++
	}
	return out
}

// Len returns the number of units in the snapshot.
func (s Snapshot) Len() int {
	return len(s.statuses)
}

// TakenAt returns when the snapshot was taken.
func (s Snapshot) TakenAt() time.Time {
	return s.takenAt
}
