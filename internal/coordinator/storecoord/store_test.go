package storecoord_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hyvote/hyquery/internal/coordinator/storecoord"
)

func TestServerKeyAndIndexKeyFormat(t *testing.T) {
	assert.Equal(t, "hyquery:{prod}:server:lobby-1", storecoord.ServerKey("prod", "lobby-1"))
	assert.Equal(t, "hyquery:{prod}:index", storecoord.IndexKey("prod"))
}

func TestTTLForPicksLargerOfTheTwoFloors(t *testing.T) {
	// staleAfter*2 dominates
	assert.Equal(t, 60*time.Second, storecoord.TTLFor(30*time.Second, 5*time.Second))
	// publishInterval*3 dominates
	assert.Equal(t, 30*time.Second, storecoord.TTLFor(5*time.Second, 10*time.Second))
}

func TestTTLForFloorsAtOneSecond(t *testing.T) {
	assert.Equal(t, time.Second, storecoord.TTLFor(0, 0))
}
