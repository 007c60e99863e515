package http

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogRecent(t *testing.T) {
	log := NewEventLog(3)
	for i := 1; i <= 5; i++ {
		log.Record("NUC", fmt.Sprintf("SetValue:state:%d", i))
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all held", limit: 0, want: []string{"SetValue:state:5", "SetValue:state:4", "SetValue:state:3"}},
		{name: "limited", limit: 2, want: []string{"SetValue:state:5", "SetValue:state:4"}},
		{name: "over capacity", limit: 10, want: []string{"SetValue:state:5", "SetValue:state:4", "SetValue:state:3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, ev := range log.Recent(tt.limit) {
				got = append(got, ev.Payload)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, uint64(5), log.Recent(1)[0].Seq)
}

func TestEventLogEmpty(t *testing.T) {
	assert.Empty(t, NewEventLog(4).Recent(10))
}

func TestEventLogSubscribe(t *testing.T) {
	log := NewEventLog(8)
	events, cancel := log.Subscribe(4)
	assert.Equal(t, 1, log.Subscribers())

	log.Record("NUC", "SetValue:status:On")

	select {
	case ev := <-events:
		assert.Equal(t, "NUC", ev.Destination)
		assert.Equal(t, "SetValue:status:On", ev.Payload)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	cancel()
	assert.Equal(t, 0, log.Subscribers())
	_, ok := <-events
	assert.False(t, ok)
}

func TestEventLogSlowSubscriberDoesNotBlock(t *testing.T) {
	log := NewEventLog(8)
	events, cancel := log.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			log.Record("NUC", "HighTemperature")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full subscriber")
	}
	assert.Len(t, events, 1)
}

func TestEventLogClose(t *testing.T) {
	log := NewEventLog(2)
	events, cancel := log.Subscribe(1)

	log.Close()
	_, ok := <-events
	assert.False(t, ok)
	cancel()

	late, _ := log.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)

	log.Record("NUC", "SteamError")
	require.Len(t, log.Recent(0), 1)
}
