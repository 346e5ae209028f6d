// Package hyquery is the embeddable entry point for the HyQuery query
// protocol: a drop-in packet handler a Hytale-shaped game server installs
// on its UDP listener alongside its native game transport. Most embedders
// only need Service; everything else lives in internal packages.
package hyquery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hyvote/hyquery/internal/aggregate"
	"github.com/hyvote/hyquery/internal/cache"
	"github.com/hyvote/hyquery/internal/challenge"
	"github.com/hyvote/hyquery/internal/config"
	"github.com/hyvote/hyquery/internal/coordinator/storecoord"
	"github.com/hyvote/hyquery/internal/coordinator/udpcoord"
	"github.com/hyvote/hyquery/internal/demux"
	"github.com/hyvote/hyquery/internal/handler"
	"github.com/hyvote/hyquery/internal/host"
	"github.com/hyvote/hyquery/internal/logx"
	"github.com/hyvote/hyquery/internal/ratelimit"
	"github.com/hyvote/hyquery/internal/registry"
	"github.com/hyvote/hyquery/internal/scheduler"
)

// Host is the interface the embedding server implements.
type Host = host.Host

// Player is re-exported for embedders building a Host implementation.
type Player = host.Player

// Config is the full on-disk configuration shape (§6).
type Config = config.Config

// Service is HyQuery's embeddable lifecycle: setup() loads configuration,
// start() wires every component and installs the demultiplexer, shutdown()
// tears everything back down (§5 Lifecycle).
type Service struct {
	ServerDataDir string
	Host          Host
	Log           *logx.Logger

	cfg *config.Config

	limiter   *ratelimit.Limiter
	challenge *challenge.Service
	respCache *cache.Cache
	handler   *handler.Handler
	stats     *handler.Stats

	isPrimary bool

	udpPrimary   *udpcoord.Primary
	udpPublisher *udpcoord.Publisher

	storeReader    *storecoord.Reader
	storePublisher *storecoord.Publisher
	store          storecoord.Store

	metricsSched *scheduler.Periodic

	cancel context.CancelFunc
}

// Stats returns a point-in-time snapshot of the running instance's
// metrics (spec.md SPEC_FULL §3 "added"). Safe to call at any time,
// including before Start.
func (s *Service) Stats() handler.Snapshot {
	return s.stats.Snapshot()
}

// Setup loads configuration from ServerDataDir (creating it with defaults
// if absent). Call once before Start.
func (s *Service) Setup() error {
	cfg, err := config.Load(s.ServerDataDir)
	if err != nil {
		return fmt.Errorf("hyquery: setup: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("hyquery: setup: %w", err)
	}
	s.cfg = cfg
	if s.Log == nil {
		// applyDefaults already normalized LogLevel to a recognized value
		// (or defaulted it with a warning below), so this always succeeds.
		lvl, _ := logx.ParseLevel(cfg.Observability.LogLevel)
		s.Log = logx.New(lvl)
	}
	for _, w := range cfg.Warnings {
		s.Log.Warn("%s", w)
	}
	return nil
}

// Start builds the rate limiter, cache, coordinator, and handler, then
// starts any publisher/metrics schedulers. ctx bounds the lifetime of
// background schedulers; cancel it (or call Shutdown) to stop them.
func (s *Service) Start(ctx context.Context) error {
	if s.cfg == nil {
		return fmt.Errorf("hyquery: start called before setup")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	cfg := s.cfg
	s.stats = &handler.Stats{}
	s.limiter = ratelimit.New(cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	ch, err := challenge.New(cfg.ChallengeSecret, cfg.ChallengeTokenValiditySeconds)
	if err != nil {
		return fmt.Errorf("hyquery: start: %w", err)
	}
	s.challenge = ch

	s.respCache = cache.New(time.Duration(cfg.CacheTTLSeconds) * time.Second)

	var aggView *aggregate.View
	var remoteLister handler.RemoteServerLister
	workerTimeout := time.Duration(cfg.Network.WorkerTimeoutSeconds) * time.Second

	if cfg.Network.Enabled {
		s.isPrimary = cfg.Network.Role == "primary"

		switch cfg.Network.Coordinator {
		case "redis":
			if err := s.startStoreCoordinator(ctx, cfg, workerTimeout); err != nil {
				return err
			}
			if s.isPrimary {
				aggView = aggregate.New(s.storeReader)
			}
		default:
			if err := s.startUDPCoordinator(ctx, cfg); err != nil {
				return err
			}
			if s.isPrimary {
				aggView = aggregate.New(aggregate.UDPBackend{
					Aggregator:    s.udpPrimary.Aggregate,
					WorkerTimeout: workerTimeout,
				})
				remoteLister = s.udpPrimary
			}
		}
	}
	if aggView == nil {
		aggView = aggregate.New(nil)
	}

	s.handler = &handler.Handler{
		Host:          host.Safe(s.Host),
		Config:        cfg,
		Limiter:       s.limiter,
		Challenge:     s.challenge,
		Cache:         s.respCache,
		Aggregate:     aggView,
		Remote:        remoteLister,
		IsPrimary:     s.isPrimary,
		WorkerTimeout: workerTimeout,
		Log:           s.Log,
		Stats:         s.stats,
	}

	if cfg.Observability.MetricsEnabled {
		s.metricsSched = scheduler.Start(ctx, metricsLogInterval, func(context.Context) {
			snap := s.stats.Snapshot()
			s.Log.Info("metrics: v1=%d/%d v2=%d/%d/%d drops=%d/%d/%d cache=%d/%d acks=%d/%d/%d/%d aggReads=%d aggAvgUs=%d",
				snap.V1Basic, snap.V1Full, snap.V2Basic, snap.V2Players, snap.V2Challenge,
				snap.DropMalformed, snap.DropRateLimited, snap.DropUnauthenticated,
				snap.CacheHit, snap.CacheMiss,
				snap.AckOK, snap.AckUnknownID, snap.AckBadHMAC, snap.AckStale,
				snap.AggregateReads, snap.AggregateAvgMicros)
		})
	}

	return nil
}

// metricsLogInterval is how often Start's optional metrics ticker logs a
// Stats snapshot when observability.metricsEnabled is set.
const metricsLogInterval = 60 * time.Second

func (s *Service) startUDPCoordinator(ctx context.Context, cfg *config.Config) error {
	if s.isPrimary {
		workers := make([]registry.ConfiguredWorker, 0, len(cfg.Network.Workers))
		for _, w := range cfg.Network.Workers {
			workers = append(workers, registry.ConfiguredWorker{ID: w.ID, Key: []byte(w.Key)})
		}
		reg := registry.New()
		s.udpPrimary = udpcoord.NewPrimary(workers, reg, s.respCache.Invalidate, s.Log, s.stats)
		return nil
	}

	targets, err := resolveWorkerTargets(cfg.Network)
	if err != nil {
		return fmt.Errorf("hyquery: resolving worker targets: %w", err)
	}
	pub, err := udpcoord.NewPublisher(cfg.Network.ID, []byte(cfg.Network.Key), targets, host.Safe(s.Host), s.Log)
	if err != nil {
		return fmt.Errorf("hyquery: starting udp worker publisher: %w", err)
	}
	s.udpPublisher = pub
	pub.Start(ctx, time.Duration(cfg.Network.UpdateIntervalSeconds)*time.Second)
	return nil
}

func resolveWorkerTargets(n config.Network) ([]*net.UDPAddr, error) {
	if len(n.Primaries) > 0 {
		out := make([]*net.UDPAddr, 0, len(n.Primaries))
		for _, t := range n.Primaries {
			addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", t.Host, t.Port))
			if err != nil {
				return nil, err
			}
			out = append(out, addr)
		}
		return out, nil
	}
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", n.PrimaryHost, n.PrimaryPort))
	if err != nil {
		return nil, err
	}
	return []*net.UDPAddr{addr}, nil
}

func (s *Service) startStoreCoordinator(ctx context.Context, cfg *config.Config, workerTimeout time.Duration) error {
	r := cfg.Network.Redis
	store := storecoord.NewRedisStore(storecoord.RedisConfig{
		Host:           r.Host,
		Port:           r.Port,
		Username:       r.Username,
		Password:       r.Password,
		Database:       r.Database,
		TLS:            r.TLS,
		ConnectTimeout: time.Duration(r.ConnectTimeoutMillis) * time.Millisecond,
		ReadTimeout:    time.Duration(r.ReadTimeoutMillis) * time.Millisecond,
	})
	if err := store.ConnectAndValidate(ctx); err != nil {
		return fmt.Errorf("hyquery: shared-store coordinator: %w", err)
	}
	s.store = store

	if !r.RequireAvailable && s.Log != nil {
		s.Log.Warn("network.redis.requireAvailable=false is ignored; fail-closed semantics always apply")
	}

	staleAfter := time.Duration(cfg.Network.StaleAfterSeconds) * time.Second

	if s.isPrimary {
		s.storeReader = storecoord.NewReader(store, cfg.Network.Namespace, cfg.Network.IncludeGlobalNamespace, staleAfter)
		return nil
	}

	workerID := cfg.Network.ID
	if workerID == "" {
		workerID = storecoord.GenerateWorkerID()
		if s.Log != nil {
			s.Log.Warn("network.id not set; generated worker id %s", workerID)
		}
	}
	publishInterval := time.Duration(r.PublishIntervalSeconds) * time.Second
	s.storePublisher = storecoord.NewPublisher(store, cfg.Network.Namespace, workerID, staleAfter, publishInterval, host.Safe(s.Host), s.Log)
	s.storePublisher.Start(ctx, publishInterval)
	return nil
}

// Classify exposes the demultiplexer for embedders that own their own
// listener loop: they peek 8 bytes, call Classify, and dispatch themselves.
func (s *Service) Classify(datagram []byte) demux.Classification {
	return demux.Classify(datagram, demux.Options{
		V1Enabled: s.cfg.V1Enabled,
		V2Enabled: s.cfg.V2Enabled,
		IsPrimary: s.isPrimary && s.udpPrimary != nil,
	})
}

// HandleDatagram runs one inbound datagram through classification and the
// appropriate handler, returning the reply to send (nil means: drop, or
// forward to the native transport — callers distinguish using Classify
// directly if they need to tell those cases apart).
func (s *Service) HandleDatagram(datagram []byte, src *net.UDPAddr) []byte {
	class := s.Classify(datagram)
	switch class.Action {
	case demux.ActionV1Query:
		return s.handler.HandleV1(datagram[8:], src)
	case demux.ActionV2Query:
		return s.handler.HandleV2(class.Family, datagram[8:], src)
	case demux.ActionWorkerStatus:
		if s.udpPrimary == nil {
			return nil
		}
		ack := s.udpPrimary.ProcessStatusUpdate(datagram[8:])
		w := make([]byte, 0, 8+len(ack))
		w = append(w, "HYSTATOK"...)
		w = append(w, ack...)
		return w
	default:
		return nil
	}
}

// Shutdown stops schedulers, closes the store client, and releases
// resources (§5 Lifecycle).
func (s *Service) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.udpPublisher != nil {
		s.udpPublisher.Stop()
	}
	if s.storePublisher != nil {
		s.storePublisher.Stop()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.metricsSched != nil {
		s.metricsSched.Stop()
	}
}
