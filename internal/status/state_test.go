package status

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateNames(t *testing.T) {
	for _, st := range States {
		parsed, err := ParseState(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}

	_, err := ParseState("completed")
	assert.Error(t, err, "free-text states from older tools are rejected")
	assert.Equal(t, "state(42)", State(42).String())
}

func TestStateJSON(t *testing.T) {
	data, err := json.Marshal(UnitStatus{State: Succeeded})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"succeeded"`)

	var us UnitStatus
	assert.Error(t, json.Unmarshal([]byte(`{"state":"in_progress"}`), &us))
}

func TestIsTerminal(t *testing.T) {
	terminal := map[State]bool{Succeeded: true, Failed: true, Blocked: true}
	for _, st := range States {
		assert.Equal(t, terminal[st], st.IsTerminal(), st.String())
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]State]bool{
		{NotStarted, Ready}:     true,
		{NotStarted, Blocked}:   true,
		{Ready, Running}:        true,
		{Ready, Blocked}:        true,
		{Ready, NotStarted}:     true,
		{Running, Succeeded}:    true,
		{Running, Failed}:       true,
		{Succeeded, NotStarted}: true,
		{Failed, NotStarted}:    true,
		{Blocked, NotStarted}:   true,
	}

	for _, from := range States {
		for _, to := range States {
			want := allowed[[2]State{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestApplyBookkeeping(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	us := UnitStatus{State: Ready}
	us = us.apply(Running, Meta{}, t0)
	require.NotNil(t, us.StartedAt)
	assert.Equal(t, t0, *us.StartedAt)
	assert.Nil(t, us.FinishedAt)

	us = us.apply(Failed, Meta{Error: "llm timeout"}, t1)
	assert.Equal(t, "llm timeout", us.LastError)
	require.NotNil(t, us.FinishedAt)
	assert.Equal(t, t1, *us.FinishedAt)

	us = us.apply(NotStarted, Meta{}, t1)
	assert.Equal(t, 1, us.RetryCount)
	assert.Empty(t, us.LastError)
	assert.Nil(t, us.StartedAt)
	assert.Nil(t, us.FinishedAt)

	failed := UnitStatus{State: Running}.apply(Failed, Meta{}, t1)
	assert.Equal(t, "unknown error", failed.LastError)
}
