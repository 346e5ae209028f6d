package cache_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hyvote/hyquery/internal/cache"
)

func TestGetBasicRebuildsOnceUntilTTLExpires(t *testing.T) {
	c := cache.New(50 * time.Millisecond)
	var builds atomic.Int32
	build := func() []byte {
		builds.Add(1)
		return []byte("snapshot")
	}

	first := c.GetBasic(build)
	second := c.GetBasic(build)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, builds.Load())

	time.Sleep(80 * time.Millisecond)
	third := c.GetBasic(build)
	assert.Equal(t, "snapshot", string(third))
	assert.EqualValues(t, 2, builds.Load())
}

func TestBasicAndFullSlotsAreIndependent(t *testing.T) {
	c := cache.New(time.Minute)
	basic := c.GetBasic(func() []byte { return []byte("basic") })
	full := c.GetFull(func() []byte { return []byte("full") })
	assert.Equal(t, "basic", string(basic))
	assert.Equal(t, "full", string(full))
}

func TestInvalidateForcesRebuild(t *testing.T) {
	c := cache.New(time.Minute)
	var builds atomic.Int32
	build := func() []byte {
		builds.Add(1)
		return []byte("v")
	}

	c.GetBasic(build)
	c.Invalidate()
	c.GetBasic(build)

	assert.EqualValues(t, 2, builds.Load())
}
