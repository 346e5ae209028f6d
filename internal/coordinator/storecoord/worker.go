package storecoord

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hyvote/hyquery/internal/host"
	"github.com/hyvote/hyquery/internal/logx"
	"github.com/hyvote/hyquery/internal/scheduler"
	"github.com/hyvote/hyquery/internal/wire"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateWorkerID synthesizes a random 8-character alphanumeric id, used
// when the configured worker id is blank (§4.8 "Worker-id generation").
func GenerateWorkerID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return string(b)
}

// Publisher periodically serializes local state and calls PublishSnapshot,
// applying exponential backoff on failure (§4.8).
type Publisher struct {
	store     Store
	namespace string
	serverID  string
	ttl       time.Duration
	host      host.Host
	log       *logx.Logger

	mu          sync.Mutex
	backoff     *backoff.ExponentialBackOff
	nextAttempt time.Time
	backingOff  bool

	sched *scheduler.Periodic
}

// NewPublisher builds a store publisher for one worker identity.
func NewPublisher(store Store, namespace, serverID string, staleAfter, publishInterval time.Duration, h host.Host, log *logx.Logger) *Publisher {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = publishInterval
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0 // never give up; only the interval is bounded, not retry count
	b.Reset()

	return &Publisher{
		store:     store,
		namespace: namespace,
		serverID:  serverID,
		ttl:       TTLFor(staleAfter, publishInterval),
		host:      host.Safe(h),
		log:       log,
		backoff:   b,
	}
}

// Start schedules publish ticks every interval.
func (p *Publisher) Start(ctx context.Context, interval time.Duration) {
	p.sched = scheduler.Start(ctx, interval, p.tick)
}

// Stop cancels the schedule.
func (p *Publisher) Stop() {
	if p.sched != nil {
		p.sched.Stop()
	}
}

func (p *Publisher) tick(ctx context.Context) {
	p.mu.Lock()
	if p.backingOff && time.Now().Before(p.nextAttempt) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	players := p.host.Players()
	entries := make([]wire.PlayerEntry, 0, len(players))
	for _, pl := range players {
		entries = append(entries, wire.PlayerEntry{Username: pl.Username, UUID: wire.UUID(pl.UUID)})
	}

	now := time.Now()
	snap := Snapshot{
		ServerID:        p.serverID,
		Name:            p.host.ServerName(),
		MOTD:            p.host.MOTD(),
		Online:          int32(len(players)),
		Max:             int32(p.host.MaxPlayers()),
		Port:            int32(p.host.BindPort()),
		Version:         p.host.Version(),
		Players:         entries,
		UpdatedAtMillis: now.UnixMilli(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		if p.log != nil {
			p.log.Warn("storecoord: marshaling snapshot: %v", err)
		}
		return
	}

	serverKey := ServerKey(p.namespace, p.serverID)
	indexKey := IndexKey(p.namespace)
	err = p.store.PublishSnapshot(ctx, serverKey, indexKey, p.ttl, snap.UpdatedAtMillis, p.serverID, data)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		d := p.backoff.NextBackOff()
		p.backingOff = true
		p.nextAttempt = time.Now().Add(d)
		if p.log != nil {
			p.log.Warn("storecoord: publish failed, backing off %s: %v", d, err)
		}
		return
	}
	if p.backingOff {
		p.backoff.Reset()
		p.backingOff = false
	}
}
