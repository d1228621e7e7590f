package fallback

import (
	"sync"
	"time"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// pooledResponse is one pre-validated canned record with its usage
// bookkeeping.
type pooledResponse struct {
	record    map[string]interface{}
	createdAt time.Time
	lastUsed  time.Time
	useCount  int
}

// responsePool holds canned records per persona type. Retrieval spreads
// load: never-used entries first, then least-recently-used, ties broken by
// newest creation.
type responsePool struct {
	mu      sync.Mutex
	entries map[models.PersonaType][]*pooledResponse
	now     func() time.Time
}

func newResponsePool() *responsePool {
	return &responsePool{
		entries: make(map[models.PersonaType][]*pooledResponse),
		now:     time.Now,
	}
}

// add registers a canned record for a persona type.
func (p *responsePool) add(personaType models.PersonaType, record map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[personaType] = append(p.entries[personaType], &pooledResponse{
		record:    cloneRecord(record),
		createdAt: p.now(),
	})
}

// get picks the next canned record for a persona type and marks it used.
func (p *responsePool) get(personaType models.PersonaType) (map[string]interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pool := p.entries[personaType]
	if len(pool) == 0 {
		return nil, false
	}

	best := pool[0]
	for _, candidate := range pool[1:] {
		if preferResponse(candidate, best) {
			best = candidate
		}
	}
	best.useCount++
	best.lastUsed = p.now()
	return cloneRecord(best.record), true
}

// size reports how many canned records a persona type has.
func (p *responsePool) size(personaType models.PersonaType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries[personaType])
}

// preferResponse reports whether a should be picked over b: never-used
// beats used, older lastUsed beats newer, newest createdAt breaks ties.
func preferResponse(a, b *pooledResponse) bool {
	if (a.useCount == 0) != (b.useCount == 0) {
		return a.useCount == 0
	}
	if !a.lastUsed.Equal(b.lastUsed) {
		return a.lastUsed.Before(b.lastUsed)
	}
	return a.createdAt.After(b.createdAt)
}

// cloneRecord deep-copies the maps and lists JSON decoding produces.
func cloneRecord(record map[string]interface{}) map[string]interface{} {
	if record == nil {
		return nil
	}
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneRecord(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
