package storecoord

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyvote/hyquery/internal/wire"
)

// GlobalNamespace is read in addition to the configured namespace when
// includeGlobalNamespace is set (§4.8).
const GlobalNamespace = "global"

type cachedAggregate struct {
	includePlayers bool
	online, max    int32
	players        []wire.PlayerEntry
	createdAt      time.Time
}

// Reader serves getAggregate reads against the shared store, fail-closed
// (§4.8 Availability policy: a read failure surfaces an error rather than
// silently falling back to local data).
type Reader struct {
	store      Store
	namespaces []string
	staleAfter time.Duration

	mu     sync.Mutex
	cached *cachedAggregate
}

// NewReader builds a reader over the configured namespace, plus the global
// namespace if includeGlobal.
func NewReader(store Store, namespace string, includeGlobal bool, staleAfter time.Duration) *Reader {
	ns := []string{namespace}
	if includeGlobal {
		ns = append(ns, GlobalNamespace)
	}
	return &Reader{store: store, namespaces: ns, staleAfter: staleAfter}
}

// GetAggregate implements §4.8's primary read algorithm: a ≤1s cache,
// per-namespace eviction + active-id listing + batched snapshot fetch,
// dedup by serverId keeping the freshest, sorted by serverId ascending.
func (r *Reader) GetAggregate(ctx context.Context, includePlayers bool) (online, max int32, players []wire.PlayerEntry, err error) {
	if c := r.cachedSince(time.Now(), includePlayers); c != nil {
		return c.online, c.max, c.players, nil
	}

	now := time.Now()
	cutoff := now.Add(-r.staleAfter).UnixMilli()

	best := make(map[string]Snapshot)
	for _, ns := range r.namespaces {
		indexKey := IndexKey(ns)

		if _, err := r.store.EvictStaleServers(ctx, indexKey, cutoff); err != nil {
			return 0, 0, nil, fmt.Errorf("storecoord: evicting stale servers in namespace %q: %w", ns, err)
		}

		ids, err := r.store.GetActiveServerIDs(ctx, indexKey, cutoff)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("storecoord: listing active servers in namespace %q: %w", ns, err)
		}
		if len(ids) == 0 {
			continue
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = ServerKey(ns, id)
		}
		raws, err := r.store.GetSnapshots(ctx, keys)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("storecoord: fetching snapshots in namespace %q: %w", ns, err)
		}

		for _, raw := range raws {
			if raw == nil {
				continue
			}
			var snap Snapshot
			if err := json.Unmarshal(raw, &snap); err != nil {
				continue
			}
			if snap.UpdatedAtMillis <= cutoff {
				continue
			}
			if existing, ok := best[snap.ServerID]; !ok || snap.UpdatedAtMillis > existing.UpdatedAtMillis {
				best[snap.ServerID] = snap
			}
		}
	}

	ids := make([]string, 0, len(best))
	for id := range best {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		snap := best[id]
		online += snap.Online
		max += snap.Max
		if includePlayers {
			for _, p := range snap.Players {
				players = append(players, wire.PlayerEntry{
					Username:       p.Username,
					UUID:           p.UUID,
					SourceServerID: snap.ServerID,
				})
			}
		}
	}

	r.mu.Lock()
	r.cached = &cachedAggregate{includePlayers: includePlayers, online: online, max: max, players: players, createdAt: now}
	r.mu.Unlock()

	return online, max, players, nil
}

func (r *Reader) cachedSince(now time.Time, includePlayers bool) *cachedAggregate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return nil
	}
	if r.cached.includePlayers != includePlayers {
		return nil
	}
	if now.Sub(r.cached.createdAt) > time.Second {
		return nil
	}
	return r.cached
}
