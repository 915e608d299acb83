package hub

import (
	"sort"
	"sync"

	"github.com/Subaru-PFS/ics-testsActor/keys"
)

// Model is the cached keyword state of one actor.  It is updated by every
// reply originating from that actor, solicited or broadcast.
type Model struct {
	Actor string

	mu  sync.RWMutex
	kws map[string]keys.Keyword
}

// NewModel returns an empty model for actor
func NewModel(actor string) *Model {
	return &Model{Actor: actor, kws: map[string]keys.Keyword{}}
}

// Get returns the current value of a keyword
func (m *Model) Get(name string) (keys.Keyword, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kw, ok := m.kws[name]
	return kw, ok
}

// Set stores a keyword
func (m *Model) Set(kws ...keys.Keyword) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kw := range kws {
		m.kws[kw.Name] = kw
	}
}

// Keywords returns every cached keyword, sorted by name
func (m *Model) Keywords() keys.Keywords {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(keys.Keywords, 0, len(m.kws))
	for _, kw := range m.kws {
		out = append(out, kw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Models is the set of actors whose keywords are being tracked
type Models struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewModels returns a registry tracking the given actors
func NewModels(actors ...string) *Models {
	ms := &Models{models: map[string]*Model{}}
	ms.Add(actors...)
	return ms
}

// Add starts tracking actors and returns the ones that were not tracked yet
func (ms *Models) Add(actors ...string) []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	added := []string{}
	for _, a := range actors {
		if _, ok := ms.models[a]; ok {
			continue
		}
		ms.models[a] = NewModel(a)
		added = append(added, a)
	}
	return added
}

// Get returns the model of an actor
func (ms *Models) Get(actor string) (*Model, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.models[actor]
	return m, ok
}

// Has returns true if the actor is tracked
func (ms *Models) Has(actor string) bool {
	_, ok := ms.Get(actor)
	return ok
}

// Names returns the tracked actors, sorted
func (ms *Models) Names() []string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make([]string, 0, len(ms.models))
	for k := range ms.models {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dispatch updates the model of the reply's actor, if it is tracked
func (ms *Models) Dispatch(r keys.Reply) {
	if ms == nil || len(r.Keywords) == 0 {
		return
	}
	m, ok := ms.Get(r.Actor)
	if !ok {
		return
	}
	m.Set(r.Keywords...)
}
