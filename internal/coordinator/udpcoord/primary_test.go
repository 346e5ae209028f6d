package udpcoord_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvote/hyquery/internal/coordinator/udpcoord"
	"github.com/hyvote/hyquery/internal/registry"
	"github.com/hyvote/hyquery/internal/wire"
)

func newTestPrimary(onUpdate func()) (*udpcoord.Primary, []registry.ConfiguredWorker) {
	workers := []registry.ConfiguredWorker{
		{ID: "lobby-1", Key: []byte("lobby-1-key")},
		{ID: "survival-1", Key: []byte("survival-1-key")},
	}
	return udpcoord.NewPrimary(workers, registry.New(), onUpdate, nil, nil), workers
}

func statusBody(key []byte, timestampMillis int64, frame wire.StatusFrame) []byte {
	full := wire.EncodeStatus(key, timestampMillis, frame)
	return full[wire.MagicLen:]
}

func TestProcessStatusUpdateAcceptsValidFrame(t *testing.T) {
	var updated bool
	p, workers := newTestPrimary(func() { updated = true })

	body := statusBody(workers[0].Key, time.Now().UnixMilli(), wire.StatusFrame{
		WorkerID: "lobby-1", Name: "Lobby", Online: 2, Max: 10,
	})

	ack := p.ProcessStatusUpdate(body)
	decoded, err := wire.DecodeAck(ack)
	require.NoError(t, err)
	assert.Equal(t, wire.AckOK, decoded.Status)
	assert.True(t, updated)

	online, max, _ := p.Aggregate(time.Now(), time.Minute, false)
	assert.EqualValues(t, 2, online)
	assert.EqualValues(t, 10, max)
}

func TestProcessStatusUpdateUnknownWorkerID(t *testing.T) {
	p, _ := newTestPrimary(nil)
	body := statusBody([]byte("some-key"), time.Now().UnixMilli(), wire.StatusFrame{WorkerID: "ghost"})

	ack := p.ProcessStatusUpdate(body)
	decoded, err := wire.DecodeAck(ack)
	require.NoError(t, err)
	assert.Equal(t, wire.AckUnknownID, decoded.Status)
}

func TestProcessStatusUpdateBadHMAC(t *testing.T) {
	p, workers := newTestPrimary(nil)
	body := statusBody([]byte("wrong-key"), time.Now().UnixMilli(), wire.StatusFrame{WorkerID: "lobby-1"})
	_ = workers

	ack := p.ProcessStatusUpdate(body)
	decoded, err := wire.DecodeAck(ack)
	require.NoError(t, err)
	assert.Equal(t, wire.AckBadHMAC, decoded.Status)
}

func TestProcessStatusUpdateStaleTimestamp(t *testing.T) {
	p, workers := newTestPrimary(nil)
	old := time.Now().Add(-time.Hour).UnixMilli()
	body := statusBody(workers[0].Key, old, wire.StatusFrame{WorkerID: "lobby-1"})

	ack := p.ProcessStatusUpdate(body)
	decoded, err := wire.DecodeAck(ack)
	require.NoError(t, err)
	assert.Equal(t, wire.AckStale, decoded.Status)
}

func TestProcessStatusUpdateMalformedBody(t *testing.T) {
	p, _ := newTestPrimary(nil)
	ack := p.ProcessStatusUpdate([]byte{0x01, 0x02})
	decoded, err := wire.DecodeAck(ack)
	require.NoError(t, err)
	assert.Equal(t, wire.AckBadHMAC, decoded.Status)
}

func TestAggregateSumsOnlineEntriesOnly(t *testing.T) {
	p, workers := newTestPrimary(nil)
	now := time.Now()

	p.ProcessStatusUpdate(statusBody(workers[0].Key, now.UnixMilli(), wire.StatusFrame{
		WorkerID: "lobby-1", Online: 5, Max: 20,
		Players: []wire.PlayerEntry{{Username: "alice", UUID: wire.UUIDFromParts(1, 1)}},
	}))
	p.ProcessStatusUpdate(statusBody(workers[1].Key, now.UnixMilli(), wire.StatusFrame{
		WorkerID: "survival-1", Online: 3, Max: 10,
	}))

	online, max, players := p.Aggregate(now, time.Minute, true)
	assert.EqualValues(t, 8, online)
	assert.EqualValues(t, 30, max)
	require.Len(t, players, 1)
	assert.Equal(t, "lobby-1", players[0].SourceServerID)
}

func TestListRemoteServersMarksStaleByAge(t *testing.T) {
	p, workers := newTestPrimary(nil)
	now := time.Now()

	p.ProcessStatusUpdate(statusBody(workers[0].Key, now.UnixMilli(), wire.StatusFrame{
		WorkerID: "lobby-1", Online: 1, Max: 1,
	}))

	list := p.ListRemoteServers(now.Add(time.Hour), 30*time.Second)
	require.Len(t, list, 1)
	assert.EqualValues(t, 1, list[0].Status, "entry older than timeout should be marked stale")
}

func TestAckAlwaysSignedWithFirstWorkerKey(t *testing.T) {
	p, workers := newTestPrimary(nil)

	// Accept a valid update from the second configured worker.
	ack := p.ProcessStatusUpdate(statusBody(workers[1].Key, time.Now().UnixMilli(), wire.StatusFrame{
		WorkerID: "survival-1",
	}))

	decoded, err := wire.DecodeAck(ack)
	require.NoError(t, err)
	assert.True(t, wire.VerifyAckMAC(ack, decoded, workers[0].Key), "ack must be signed with the first configured worker's key regardless of sender")
	assert.False(t, wire.VerifyAckMAC(ack, decoded, workers[1].Key))
}
