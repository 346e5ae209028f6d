package storecoord_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hyvote/hyquery/internal/coordinator/storecoord"
	"github.com/hyvote/hyquery/internal/host"
)

func TestGenerateWorkerIDLengthAndAlphabet(t *testing.T) {
	id := storecoord.GenerateWorkerID()
	assert.Len(t, id, 8)
	for _, r := range id {
		assert.True(t, (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}
}

func TestPublisherPublishesOnEachTick(t *testing.T) {
	store := newFakeStore()
	h := &host.Static{Name: "Lobby", Max: 10, Port: 25565, Vers: "1.0"}
	pub := storecoord.NewPublisher(store, "prod", "lobby-1", 30*time.Second, 10*time.Millisecond, h, nil)
	defer pub.Stop()

	pub.Start(t.Context(), 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.publishCalls >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestPublisherBacksOffAfterFailureAndResetsAfterSuccess(t *testing.T) {
	store := newFakeStore()
	store.publishErrs = []error{errors.New("boom"), errors.New("boom")}

	h := &host.Static{Max: 10, Port: 1}
	pub := storecoord.NewPublisher(store, "prod", "lobby-1", 30*time.Second, 10*time.Millisecond, h, nil)
	defer pub.Stop()

	pub.Start(t.Context(), 10*time.Millisecond)

	// Eventually the two failures are consumed and a publish succeeds.
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.index) > 0
	}, 5*time.Second, 10*time.Millisecond, "publisher should recover and succeed after exhausting injected failures")
}
