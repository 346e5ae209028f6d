// Package udpcoord implements the UDP fleet coordinator (spec §4.7): a
// worker-side status publisher and a primary-side status receiver, wired
// atop the status/ACK codec in internal/wire and the internal/registry
// worker map.
package udpcoord

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/hyvote/hyquery/internal/host"
	"github.com/hyvote/hyquery/internal/logx"
	"github.com/hyvote/hyquery/internal/scheduler"
	"github.com/hyvote/hyquery/internal/wire"
)

// Publisher sends signed status frames to one or more primaries on a fixed
// interval. A single UDP socket is opened once at construction and reused
// for every send (§4.7: "open a single non-blocking UDP socket").
type Publisher struct {
	conn     *net.UDPConn
	targets  []*net.UDPAddr
	workerID string
	key      []byte
	host     host.Host
	log      *logx.Logger

	sched *scheduler.Periodic

	sent   atomic.Int64
	failed atomic.Int64
}

// NewPublisher dials an unconnected UDP socket and prepares a publisher
// that will send status updates to every address in targets.
func NewPublisher(workerID string, key []byte, targets []*net.UDPAddr, h host.Host, log *logx.Logger) (*Publisher, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	return &Publisher{
		conn:     conn,
		targets:  targets,
		workerID: workerID,
		key:      key,
		host:     host.Safe(h),
		log:      log,
	}, nil
}

// Start schedules sendStatusUpdate every interval, firing once immediately.
func (p *Publisher) Start(ctx context.Context, interval time.Duration) {
	p.sched = scheduler.Start(ctx, interval, func(context.Context) { p.sendStatusUpdate() })
}

// Stop cancels the schedule and closes the socket.
func (p *Publisher) Stop() {
	if p.sched != nil {
		p.sched.Stop()
	}
	_ = p.conn.Close()
}

func (p *Publisher) sendStatusUpdate() {
	players := p.host.Players()
	entries := make([]wire.PlayerEntry, 0, len(players))
	for _, pl := range players {
		entries = append(entries, wire.PlayerEntry{Username: pl.Username, UUID: wire.UUID(pl.UUID)})
	}

	frame := wire.StatusFrame{
		WorkerID: p.workerID,
		Name:     p.host.ServerName(),
		MOTD:     p.host.MOTD(),
		Online:   int32(len(players)),
		Max:      int32(p.host.MaxPlayers()),
		Port:     int32(p.host.BindPort()),
		Version:  p.host.Version(),
		Players:  entries,
	}
	payload := wire.EncodeStatus(p.key, time.Now().UnixMilli(), frame)

	var ok, fail int
	for _, target := range p.targets {
		if _, err := p.conn.WriteToUDP(payload, target); err != nil {
			fail++
			if p.log != nil {
				p.log.Warn("udpcoord: status send to %s failed: %v", target, err)
			}
			continue
		}
		ok++
	}
	p.sent.Add(int64(ok))
	p.failed.Add(int64(fail))
}

// Stats returns cumulative successful/failed send counts.
func (p *Publisher) Stats() (sent, failed int64) {
	return p.sent.Load(), p.failed.Load()
}
