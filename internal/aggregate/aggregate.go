// Package aggregate implements the aggregation view consumed by the
// request handler (spec §4.9): a thin façade over whichever coordinator
// backend (UDP registry or shared store) is active, or nothing at all on a
// worker/standalone instance. It has no independent lifecycle — every call
// derives its result fresh from the backend (which may itself cache).
package aggregate

import (
	"context"
	"time"

	"github.com/hyvote/hyquery/internal/wire"
)

// Backend is implemented by both coordinator variants' primary-side
// readers.
type Backend interface {
	GetAggregate(ctx context.Context, includePlayers bool) (online, max int32, players []wire.PlayerEntry, err error)
}

// Aggregate is the merged fleet-wide state as seen from one primary.
type Aggregate struct {
	Online      int32
	Max         int32
	Players     []wire.PlayerEntry
	Contributed bool // true iff a backend produced this result (drives IS_NETWORK)
}

// View exposes GetAggregate to the handler. A nil backend means "not a
// primary, or no coordinator configured" — every call then returns the
// empty aggregate (§4.9).
type View struct {
	backend Backend
}

// New wraps backend (nil is valid and means "no aggregation").
func New(backend Backend) *View {
	return &View{backend: backend}
}

// GetAggregate returns the current fleet aggregate. includePlayers
// controls whether remote player lists are merged in (the BASIC endpoint
// only needs counts).
func (v *View) GetAggregate(ctx context.Context, includePlayers bool) (Aggregate, error) {
	if v.backend == nil {
		return Aggregate{}, nil
	}
	online, max, players, err := v.backend.GetAggregate(ctx, includePlayers)
	if err != nil {
		return Aggregate{}, err
	}
	return Aggregate{Online: online, Max: max, Players: players, Contributed: true}, nil
}

// UDPBackend adapts udpcoord.Primary's synchronous Aggregate method to the
// Backend interface.
type UDPBackend struct {
	Aggregator    func(now time.Time, timeout time.Duration, includePlayers bool) (online, max int32, players []wire.PlayerEntry)
	WorkerTimeout time.Duration
}

func (b UDPBackend) GetAggregate(_ context.Context, includePlayers bool) (online, max int32, players []wire.PlayerEntry, err error) {
	online, max, players = b.Aggregator(time.Now(), b.WorkerTimeout, includePlayers)
	return online, max, players, nil
}
