package udpcoord

import (
	"time"

	"github.com/hyvote/hyquery/internal/handler"
	"github.com/hyvote/hyquery/internal/logx"
	"github.com/hyvote/hyquery/internal/registry"
	"github.com/hyvote/hyquery/internal/wire"
)

// StaleWindow is the maximum allowed skew between a status frame's
// timestamp and the primary's clock (§4.7 step 4).
const StaleWindow = 30 * time.Second

// Primary receives and authenticates worker status updates, maintaining
// the shared registry.
type Primary struct {
	workers  []registry.ConfiguredWorker
	reg      *registry.Registry
	onUpdate func()
	log      *logx.Logger
	stats    *handler.Stats
}

// NewPrimary builds a Primary over the configured worker entries and the
// shared registry. onUpdate, if non-nil, is called after every accepted
// status update (used to invalidate the response cache). stats may be nil.
func NewPrimary(workers []registry.ConfiguredWorker, reg *registry.Registry, onUpdate func(), log *logx.Logger, stats *handler.Stats) *Primary {
	return &Primary{workers: workers, reg: reg, onUpdate: onUpdate, log: log, stats: stats}
}

// fallbackKey returns the key of the first configured worker entry. Every
// ACK is signed with this key regardless of which worker sent the status
// update being acknowledged — a quirk of the original implementation that
// is intentionally preserved, not fixed (§9).
func (p *Primary) fallbackKey() []byte {
	if len(p.workers) == 0 {
		return nil
	}
	return p.workers[0].Key
}

// ProcessStatusUpdate runs the full §4.7 primary-side flow over one status
// frame body (magic already consumed by the demultiplexer) and returns the
// ACK datagram body to send back (magic not included; caller prefixes it).
func (p *Primary) ProcessStatusUpdate(body []byte) []byte {
	decoded, err := wire.DecodeStatus(body)
	if err != nil {
		if p.log != nil {
			p.log.Debug("udpcoord: malformed status frame: %v", err)
		}
		p.stats.RecordAck(wire.AckBadHMAC)
		return wire.EncodeAck(p.fallbackKey(), wire.AckBadHMAC, 0)
	}

	cw, ok := registry.FindConfigured(p.workers, decoded.Frame.WorkerID)
	if !ok {
		p.stats.RecordAck(wire.AckUnknownID)
		return wire.EncodeAck(p.fallbackKey(), wire.AckUnknownID, decoded.TimestampMillis)
	}

	if !wire.VerifyStatusMAC(decoded, cw.Key) {
		p.stats.RecordAck(wire.AckBadHMAC)
		return wire.EncodeAck(p.fallbackKey(), wire.AckBadHMAC, decoded.TimestampMillis)
	}

	nowMillis := time.Now().UnixMilli()
	skew := nowMillis - decoded.TimestampMillis
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Millisecond > StaleWindow {
		p.stats.RecordAck(wire.AckStale)
		return wire.EncodeAck(p.fallbackKey(), wire.AckStale, decoded.TimestampMillis)
	}

	p.reg.Put(registry.WorkerState{
		WorkerID:  decoded.Frame.WorkerID,
		Name:      decoded.Frame.Name,
		MOTD:      decoded.Frame.MOTD,
		Online:    decoded.Frame.Online,
		Max:       decoded.Frame.Max,
		Port:      decoded.Frame.Port,
		Version:   decoded.Frame.Version,
		Players:   decoded.Frame.Players,
		UpdatedAt: time.Now(),
	})
	if p.onUpdate != nil {
		p.onUpdate()
	}

	p.stats.RecordAck(wire.AckOK)
	return wire.EncodeAck(p.fallbackKey(), wire.AckOK, decoded.TimestampMillis)
}

// Aggregate sums online/max across non-stale registry entries and,
// if includePlayers, collects every tracked player tagged with its source
// worker id (§4.7 "Aggregation (primary, UDP)").
func (p *Primary) Aggregate(now time.Time, workerTimeout time.Duration, includePlayers bool) (online, max int32, players []wire.PlayerEntry) {
	for _, s := range p.reg.Online(now, workerTimeout) {
		online += s.Online
		max += s.Max
		if includePlayers {
			for _, pl := range s.Players {
				players = append(players, wire.PlayerEntry{
					Username:       pl.Username,
					UUID:           pl.UUID,
					SourceServerID: s.WorkerID,
				})
			}
		}
	}
	return
}

// ListRemoteServers renders every tracked worker as a V1 remote-server
// snapshot, used by the legacy "full" query's remote-server list. Status
// is 0 (online) if the entry's age is within timeout, else 1 (stale).
func (p *Primary) ListRemoteServers(now time.Time, timeout time.Duration) []wire.RemoteServerSnapshot {
	var out []wire.RemoteServerSnapshot
	for _, s := range p.reg.Snapshot() {
		status := uint8(0)
		if now.Sub(s.UpdatedAt) > timeout {
			status = 1
		}
		out = append(out, wire.RemoteServerSnapshot{
			ID:              s.WorkerID,
			Name:            s.Name,
			MOTD:            s.MOTD,
			Online:          uint32(s.Online),
			Max:             uint32(s.Max),
			Status:          status,
			UpdatedAtMillis: s.UpdatedAt.UnixMilli(),
			Players:         s.Players,
		})
	}
	return out
}
