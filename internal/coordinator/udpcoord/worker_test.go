package udpcoord_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvote/hyquery/internal/coordinator/udpcoord"
	"github.com/hyvote/hyquery/internal/host"
	"github.com/hyvote/hyquery/internal/wire"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPublisherSendsSignedStatusFrame(t *testing.T) {
	primary := listenUDP(t)

	h := &host.Static{
		Name: "Lobby", Max: 20, Port: 25565, Vers: "1.0",
		PlayerList: []host.Player{{Username: "alice", UUID: [16]byte{1}}},
	}

	key := []byte("worker-key")
	pub, err := udpcoord.NewPublisher("lobby-1", key, []*net.UDPAddr{primary.LocalAddr().(*net.UDPAddr)}, h, nil)
	require.NoError(t, err)
	defer pub.Stop()

	pub.Start(t.Context(), 20*time.Millisecond)

	buf := make([]byte, 2048)
	require.NoError(t, primary.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := primary.ReadFromUDP(buf)
	require.NoError(t, err)

	datagram := buf[:n]
	assert.Equal(t, wire.MagicWorkerStatus, string(datagram[:wire.MagicLen]))

	decoded, err := wire.DecodeStatus(datagram[wire.MagicLen:])
	require.NoError(t, err)
	assert.Equal(t, "lobby-1", decoded.Frame.WorkerID)
	assert.EqualValues(t, 1, decoded.Frame.Online)
	assert.True(t, wire.VerifyStatusMAC(decoded, key))

	sent, failed := pub.Stats()
	assert.True(t, sent >= 1)
	assert.EqualValues(t, 0, failed)
}

func TestPublisherRecordsSendAttemptsToUnreachableTarget(t *testing.T) {
	// A UDP addr on a port nothing listens on. Sends to it don't error
	// synchronously on most platforms for a single datagram, so this test
	// only asserts Stop/Start wiring doesn't panic and Stats stays
	// consistent; true unreachable-port ICMP errors are host-dependent.
	unreachable := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}
	h := &host.Static{Max: 10, Port: 1234, Vers: "1.0"}

	pub, err := udpcoord.NewPublisher("lobby-1", []byte("k"), []*net.UDPAddr{unreachable}, h, nil)
	require.NoError(t, err)
	defer pub.Stop()

	pub.Start(t.Context(), 20*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	sent, failed := pub.Stats()
	assert.True(t, sent+failed >= 1)
}
