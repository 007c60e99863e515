package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type timedAction struct {
	name   string
	next   time.Time
	period time.Duration // Zero for one-shot actions
	fn     func(ctx context.Context)
}

// TimedActions is the schedule the station loop consults every tick
type TimedActions struct {
	mu      sync.Mutex
	actions map[string]*timedAction
	now     func() time.Time
}

// NewTimedActions creates an empty schedule
func NewTimedActions() *TimedActions {
	return &TimedActions{
		actions: make(map[string]*timedAction),
		now:     time.Now,
	}
}

// At schedules fn once at t, replacing any action with the same name
func (t *TimedActions) At(name string, at time.Time, fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions[name] = &timedAction{name: name, next: at, fn: fn}
}

// Daily schedules fn every day at hh:mm local time
func (t *TimedActions) Daily(name string, hour, minute int, fn func(ctx context.Context)) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid time of day %02d:%02d", hour, minute)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	t.actions[name] = &timedAction{name: name, next: next, period: 24 * time.Hour, fn: fn}
	return nil
}

// ParseDaily parses an HH:MM time of day
func ParseDaily(s string) (hour, minute int, err error) {
	at, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return at.Hour(), at.Minute(), nil
}

// Cancel removes the action called name
func (t *TimedActions) Cancel(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.actions, name)
}

// Next lists the scheduled actions by due time
func (t *TimedActions) Next() map[string]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Time, len(t.actions))
	for name, a := range t.actions {
		out[name] = a.next
	}
	return out
}

// Due fires the earliest action that is due and reports whether one
// fired. The action runs on its own goroutine.
func (t *TimedActions) Due(ctx context.Context) bool {
	t.mu.Lock()
	now := t.now()
	var due []*timedAction
	for _, a := range t.actions {
		if !a.next.After(now) {
			due = append(due, a)
		}
	}
	if len(due) == 0 {
		t.mu.Unlock()
		return false
	}
	sort.Slice(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })
	a := due[0]
	if a.period > 0 {
		for !a.next.After(now) {
			a.next = a.next.Add(a.period)
		}
	} else {
		delete(t.actions, a.name)
	}
	fn := a.fn
	t.mu.Unlock()

	go fn(ctx)
	return true
}
