package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *TimedActions, now *time.Time) {
	t.now = func() time.Time { return *now }
}

func TestTimedActionsAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	actions := NewTimedActions()
	fixedClock(actions, &now)

	fired := make(chan string, 4)
	actions.At("once", now.Add(time.Minute), func(context.Context) { fired <- "once" })

	assert.False(t, actions.Due(context.Background()))

	now = now.Add(2 * time.Minute)
	assert.True(t, actions.Due(context.Background()))
	assert.Equal(t, "once", <-fired)

	// One-shot actions are removed after firing
	assert.False(t, actions.Due(context.Background()))
	assert.Empty(t, actions.Next())
}

func TestTimedActionsDaily(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	actions := NewTimedActions()
	fixedClock(actions, &now)

	fired := make(chan struct{}, 4)
	require.NoError(t, actions.Daily("restart", 3, 30, func(context.Context) { fired <- struct{}{} }))

	// 03:30 has passed today, so the first run is tomorrow
	assert.Equal(t, time.Date(2024, 5, 2, 3, 30, 0, 0, time.UTC), actions.Next()["restart"])

	now = time.Date(2024, 5, 2, 3, 31, 0, 0, time.UTC)
	assert.True(t, actions.Due(context.Background()))
	<-fired
	assert.Equal(t, time.Date(2024, 5, 3, 3, 30, 0, 0, time.UTC), actions.Next()["restart"])
	assert.False(t, actions.Due(context.Background()))
}

func TestTimedActionsEarliestFirst(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	actions := NewTimedActions()
	fixedClock(actions, &now)

	fired := make(chan string, 4)
	actions.At("late", now.Add(2*time.Minute), func(context.Context) { fired <- "late" })
	actions.At("early", now.Add(time.Minute), func(context.Context) { fired <- "early" })

	now = now.Add(time.Hour)
	require.True(t, actions.Due(context.Background()))
	assert.Equal(t, "early", <-fired)
	require.True(t, actions.Due(context.Background()))
	assert.Equal(t, "late", <-fired)
}

func TestTimedActionsCancel(t *testing.T) {
	actions := NewTimedActions()
	actions.At("x", time.Now().Add(-time.Minute), func(context.Context) { t.Fatal("cancelled action ran") })
	actions.Cancel("x")
	assert.False(t, actions.Due(context.Background()))
}

func TestDailyValidation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		hour     int
		minute   int
		parseErr bool
	}{
		{name: "morning", input: "03:30", hour: 3, minute: 30},
		{name: "midnight", input: "00:00", hour: 0, minute: 0},
		{name: "garbage", input: "soon", parseErr: true},
		{name: "out of range", input: "25:00", parseErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hour, minute, err := ParseDaily(tt.input)
			if tt.parseErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, hour)
			assert.Equal(t, tt.minute, minute)
		})
	}

	assert.Error(t, NewTimedActions().Daily("bad", 24, 0, func(context.Context) {}))
}
