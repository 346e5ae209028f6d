// Package registry implements the UDP coordinator's primary-side worker
// registry (spec §4.7): a concurrent map from worker id to last-known
// worker state, plus the wildcard-prefix id matching used to find a
// configured worker's shared key.
package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/hyvote/hyquery/internal/wire"
)

// WorkerState is the last status reported by one worker.
type WorkerState struct {
	WorkerID  string
	Name      string
	MOTD      string
	Online    int32
	Max       int32
	Port      int32
	Version   string
	Players   []wire.PlayerEntry
	UpdatedAt time.Time
}

// ConfiguredWorker is one entry from network.workers in configuration: an
// id pattern (exact, or "prefix*") and the HMAC key for that worker.
type ConfiguredWorker struct {
	ID  string
	Key []byte
}

// Matches reports whether workerID matches this configured entry's pattern.
func (c ConfiguredWorker) Matches(workerID string) bool {
	if strings.HasSuffix(c.ID, "*") {
		return strings.HasPrefix(workerID, strings.TrimSuffix(c.ID, "*"))
	}
	return c.ID == workerID
}

// FindConfigured returns the first entry in workers whose pattern matches
// workerID (§4.7 step 2: "the first configured worker entry whose pattern
// matches"), and ok=false if none match.
func FindConfigured(workers []ConfiguredWorker, workerID string) (ConfiguredWorker, bool) {
	for _, w := range workers {
		if w.Matches(workerID) {
			return w, true
		}
	}
	return ConfiguredWorker{}, false
}

// Registry is a concurrent worker-id -> WorkerState map. All methods are
// safe for concurrent use from multiple dispatch goroutines without an
// external lock (§5).
type Registry struct {
	m sync.Map // string -> *WorkerState
}

// New creates an empty registry.
func New() *Registry { return &Registry{} }

// Put replaces the entry for state.WorkerID.
func (r *Registry) Put(state WorkerState) {
	s := state
	r.m.Store(s.WorkerID, &s)
}

// Get returns the current state for id, if any.
func (r *Registry) Get(id string) (WorkerState, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return WorkerState{}, false
	}
	return *v.(*WorkerState), true
}

// Snapshot returns every tracked worker's current state, in no particular
// order.
func (r *Registry) Snapshot() []WorkerState {
	var out []WorkerState
	r.m.Range(func(_, v any) bool {
		out = append(out, *v.(*WorkerState))
		return true
	})
	return out
}

// Online reports entries whose age is within timeout of now (§4.7
// aggregation: "filter out entries older than workerTimeoutSeconds").
func (r *Registry) Online(now time.Time, timeout time.Duration) []WorkerState {
	all := r.Snapshot()
	out := all[:0:0]
	for _, s := range all {
		if now.Sub(s.UpdatedAt) <= timeout {
			out = append(out, s)
		}
	}
	return out
}
