package storecoord_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hyvote/hyquery/internal/coordinator/storecoord"
)

// fakeStore is an in-memory Store used by worker/reader tests. It models
// the sorted-index + keyed-snapshot shape closely enough to exercise the
// reader's eviction/listing/fetch sequence without a real Redis.
type fakeStore struct {
	mu sync.Mutex

	// index[indexKey][serverID] = score (updatedAtMillis)
	index map[string]map[string]int64
	// data[serverKey] = payload
	data map[string][]byte

	publishCalls int
	publishErrs  []error // consumed in order; once exhausted, publish succeeds
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		index: make(map[string]map[string]int64),
		data:  make(map[string][]byte),
	}
}

// namespaceOfIndexKey reverses storecoord.IndexKey's "hyquery:{ns}:index"
// format, letting eviction resolve the serverKey for a bare serverID.
func namespaceOfIndexKey(indexKey string) string {
	s := strings.TrimPrefix(indexKey, "hyquery:{")
	return strings.TrimSuffix(s, "}:index")
}

func (f *fakeStore) ConnectAndValidate(ctx context.Context) error { return nil }

func (f *fakeStore) PublishSnapshot(ctx context.Context, serverKey, indexKey string, ttl time.Duration, updatedAtMillis int64, serverID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.publishCalls++
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		if err != nil {
			return err
		}
	}

	if f.index[indexKey] == nil {
		f.index[indexKey] = make(map[string]int64)
	}
	f.index[indexKey][serverID] = updatedAtMillis
	f.data[serverKey] = payload
	return nil
}

func (f *fakeStore) EvictStaleServers(ctx context.Context, indexKey string, cutoffMillis int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.index[indexKey]
	if !ok {
		return 0, nil
	}
	ns := namespaceOfIndexKey(indexKey)
	var removed int64
	for id, score := range idx {
		if score <= cutoffMillis {
			delete(idx, id)
			delete(f.data, storecoord.ServerKey(ns, id))
			removed++
		}
	}
	return removed, nil
}

func (f *fakeStore) GetActiveServerIDs(ctx context.Context, indexKey string, cutoffMillis int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, score := range f.index[indexKey] {
		if score >= cutoffMillis {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) GetSnapshots(ctx context.Context, serverKeys []string) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(serverKeys))
	for i, k := range serverKeys {
		out[i] = f.data[k]
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

// seed directly inserts a snapshot, bypassing PublishSnapshot's call
// counting, for reader tests that want to set up fixture data.
func (f *fakeStore) seed(namespace, serverID string, updatedAtMillis int64, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	indexKey := storecoord.IndexKey(namespace)
	if f.index[indexKey] == nil {
		f.index[indexKey] = make(map[string]int64)
	}
	f.index[indexKey][serverID] = updatedAtMillis
	f.data[storecoord.ServerKey(namespace, serverID)] = payload
}

// erroringStore fails every read, used to confirm the reader's
// fail-closed behavior on a broken store.
type erroringStore struct{}

func (erroringStore) ConnectAndValidate(ctx context.Context) error { return errors.New("unreachable") }

func (erroringStore) PublishSnapshot(ctx context.Context, serverKey, indexKey string, ttl time.Duration, updatedAtMillis int64, serverID string, payload []byte) error {
	return errors.New("unreachable")
}

func (erroringStore) EvictStaleServers(ctx context.Context, indexKey string, cutoffMillis int64) (int64, error) {
	return 0, errors.New("unreachable")
}

func (erroringStore) GetActiveServerIDs(ctx context.Context, indexKey string, cutoffMillis int64) ([]string, error) {
	return nil, errors.New("unreachable")
}

func (erroringStore) GetSnapshots(ctx context.Context, serverKeys []string) ([][]byte, error) {
	return nil, errors.New("unreachable")
}

func (erroringStore) Close() error { return nil }
