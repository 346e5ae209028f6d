package aggregate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvote/hyquery/internal/aggregate"
	"github.com/hyvote/hyquery/internal/wire"
)

type fakeBackend struct {
	online, max int32
	players     []wire.PlayerEntry
	err         error
}

func (f fakeBackend) GetAggregate(ctx context.Context, includePlayers bool) (int32, int32, []wire.PlayerEntry, error) {
	if f.err != nil {
		return 0, 0, nil, f.err
	}
	if !includePlayers {
		return f.online, f.max, nil, nil
	}
	return f.online, f.max, f.players, nil
}

func TestViewWithNilBackendReturnsEmptyAggregate(t *testing.T) {
	v := aggregate.New(nil)
	got, err := v.GetAggregate(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, aggregate.Aggregate{}, got)
	assert.False(t, got.Contributed)
}

func TestViewDelegatesToBackendAndMarksContributed(t *testing.T) {
	v := aggregate.New(fakeBackend{online: 4, max: 20, players: []wire.PlayerEntry{{Username: "a"}}})
	got, err := v.GetAggregate(context.Background(), true)
	require.NoError(t, err)
	assert.EqualValues(t, 4, got.Online)
	assert.EqualValues(t, 20, got.Max)
	assert.Len(t, got.Players, 1)
	assert.True(t, got.Contributed)
}

func TestViewPropagatesBackendError(t *testing.T) {
	v := aggregate.New(fakeBackend{err: errors.New("boom")})
	_, err := v.GetAggregate(context.Background(), false)
	assert.Error(t, err)
}

func TestUDPBackendAdaptsSynchronousAggregator(t *testing.T) {
	var gotTimeout time.Duration
	b := aggregate.UDPBackend{
		WorkerTimeout: 15 * time.Second,
		Aggregator: func(now time.Time, timeout time.Duration, includePlayers bool) (int32, int32, []wire.PlayerEntry) {
			gotTimeout = timeout
			return 7, 8, nil
		},
	}

	online, max, _, err := b.GetAggregate(context.Background(), false)
	require.NoError(t, err)
	assert.EqualValues(t, 7, online)
	assert.EqualValues(t, 8, max)
	assert.Equal(t, 15*time.Second, gotTimeout)
}
