package library

import (
	"sort"
	"strings"
	"sync"

	"github.com/GriffinCanCode/station/internal/shared/types"
)

// Stats summarises the library
type Stats struct {
	Total   int                       `json:"total"`
	ByType  map[types.WrapperType]int `json:"by_type"`
	Running *string                   `json:"running,omitempty"`
}

type key struct {
	kind types.WrapperType
	id   string
}

// Library is the merged experience catalog
type Library struct {
	mu          sync.RWMutex
	experiences map[key]*types.Experience // Protected by mu
	running     *key                      // Protected by mu
}

// New creates an empty library
func New() *Library {
	return &Library{
		experiences: make(map[key]*types.Experience),
	}
}

// Replace sets the experiences contributed by one wrapper. Parameters
// rewritten earlier and the running marker survive a refresh.
func (l *Library) Replace(kind types.WrapperType, summaries []types.ExperienceSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make(map[key]*types.Experience, len(summaries))
	for _, s := range summaries {
		exp := s.Experience()
		exp.Type = kind
		k := key{kind: kind, id: exp.ID}
		if old, ok := l.experiences[k]; ok {
			exp.Status = old.Status
			exp.HeaderImagePath = old.HeaderImagePath
			exp.Subtype = old.Subtype
		}
		next[k] = &exp
	}

	for k := range l.experiences {
		if k.kind == kind {
			delete(l.experiences, k)
		}
	}
	for k, exp := range next {
		l.experiences[k] = exp
	}
	if l.running != nil && l.running.kind == kind {
		if _, ok := l.experiences[*l.running]; !ok {
			l.running = nil
		}
	}
}

// Get returns a copy of the experience kind/id
func (l *Library) Get(kind types.WrapperType, id string) (types.Experience, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	exp, ok := l.experiences[key{kind: kind, id: id}]
	if !ok {
		return types.Experience{}, false
	}
	return clone(exp), true
}

// Find looks an experience up by id alone. Ids are unique in practice;
// when two wrappers share one the result is the first by wrapper name.
func (l *Library) Find(id string) (types.Experience, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var found *types.Experience
	for k, exp := range l.experiences {
		if k.id != id {
			continue
		}
		if found == nil || exp.Type < found.Type {
			found = exp
		}
	}
	if found == nil {
		return types.Experience{}, false
	}
	return clone(found), true
}

// List returns all experiences sorted by name, optionally filtered by wrapper
func (l *Library) List(kind *types.WrapperType) []types.Experience {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Experience, 0, len(l.experiences))
	for k, exp := range l.experiences {
		if kind == nil || k.kind == *kind {
			out = append(out, clone(exp))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Summaries returns the catalog view reported to the tablet
func (l *Library) Summaries() []types.ExperienceSummary {
	exps := l.List(nil)
	out := make([]types.ExperienceSummary, 0, len(exps))
	for _, exp := range exps {
		out = append(out, exp.Summary())
	}
	return out
}

// MarkRunning flags kind/id as the running experience, stopping the
// previous one
func (l *Library) MarkRunning(kind types.WrapperType, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{kind: kind, id: id}
	exp, ok := l.experiences[k]
	if !ok {
		return false
	}
	if l.running != nil && *l.running != k {
		if prev, exists := l.experiences[*l.running]; exists {
			prev.Status = types.ExperienceStopped
		}
	}
	exp.Status = types.ExperienceRunning
	l.running = &k
	return true
}

// MarkStopped clears the running marker
func (l *Library) MarkStopped() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running == nil {
		return
	}
	if exp, ok := l.experiences[*l.running]; ok {
		exp.Status = types.ExperienceStopped
	}
	l.running = nil
}

// Running returns the running experience, if any
func (l *Library) Running() (types.Experience, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.running == nil {
		return types.Experience{}, false
	}
	exp, ok := l.experiences[*l.running]
	if !ok {
		return types.Experience{}, false
	}
	return clone(exp), true
}

// Update applies fn to the stored experience kind/id
func (l *Library) Update(kind types.WrapperType, id string, fn func(exp *types.Experience)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	exp, ok := l.experiences[key{kind: kind, id: id}]
	if !ok {
		return false
	}
	fn(exp)
	return true
}

// Stats returns library statistics
func (l *Library) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{ByType: make(map[types.WrapperType]int)}
	for k := range l.experiences {
		stats.Total++
		stats.ByType[k.kind]++
	}
	if l.running != nil {
		id := l.running.id
		stats.Running = &id
	}
	return stats
}

// clone copies exp including its subtype map
func clone(exp *types.Experience) types.Experience {
	c := *exp
	if exp.Subtype != nil {
		c.Subtype = make(map[string]string, len(exp.Subtype))
		for k, v := range exp.Subtype {
			c.Subtype[k] = v
		}
	}
	return c
}
