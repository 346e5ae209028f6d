// Package storecoord implements the shared-store fleet coordinator used in
// place of udpcoord when network.coordinator is "redis" (spec §4.8). The
// Store interface is deliberately narrow — exactly the six operations the
// spec names — so a fake can back unit tests without a real Redis.
package storecoord

import (
	"context"
	"fmt"
	"time"

	"github.com/hyvote/hyquery/internal/wire"
)

// Store is the shared-store client boundary. A failing ConnectAndValidate
// aborts startup (fail-closed); failures from the other methods are
// handled by the caller per their own policy (§4.8 Availability policy).
type Store interface {
	ConnectAndValidate(ctx context.Context) error
	PublishSnapshot(ctx context.Context, serverKey, indexKey string, ttl time.Duration, updatedAtMillis int64, serverID string, payload []byte) error
	EvictStaleServers(ctx context.Context, indexKey string, cutoffMillis int64) (int64, error)
	GetActiveServerIDs(ctx context.Context, indexKey string, cutoffMillis int64) ([]string, error)
	// GetSnapshots batch-fetches serverKeys; a missing key's slot is nil.
	GetSnapshots(ctx context.Context, serverKeys []string) ([][]byte, error)
	Close() error
}

// Snapshot is the JSON document published per worker tick and read back by
// the primary.
type Snapshot struct {
	ServerID        string             `json:"serverId"`
	Name            string             `json:"name"`
	MOTD            string             `json:"motd"`
	Online          int32              `json:"online"`
	Max             int32              `json:"max"`
	Port            int32              `json:"port"`
	Version         string             `json:"version"`
	Players         []wire.PlayerEntry `json:"players"`
	UpdatedAtMillis int64              `json:"updatedAtMillis"`
}

// ServerKey returns the per-server snapshot key for namespace/id (§4.8).
func ServerKey(namespace, id string) string {
	return fmt.Sprintf("hyquery:{%s}:server:%s", namespace, id)
}

// IndexKey returns the sorted-index key for namespace (§4.8).
func IndexKey(namespace string) string {
	return fmt.Sprintf("hyquery:{%s}:index", namespace)
}

// TTLFor computes the snapshot TTL per §4.8:
// max(1, max(staleAfter*2, publishInterval*3)).
func TTLFor(staleAfter, publishInterval time.Duration) time.Duration {
	ttl := staleAfter * 2
	if alt := publishInterval * 3; alt > ttl {
		ttl = alt
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
