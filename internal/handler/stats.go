package handler

import (
	"sync/atomic"

	"github.com/hyvote/hyquery/internal/wire"
)

// Stats is a plain-struct metrics snapshot (SPEC_FULL.md §3 "added"):
// counters for classified packets, drop reasons, cache outcomes,
// rate-limit rejections, and worker ACK status codes, plus a running
// total of aggregate-read latency for computing an average. It uses only
// sync/atomic — no external metrics backend is wired, and no histogram or
// slow-query bucketing either, since HyQuery's single-digit-millisecond
// request path has no use for either (see DESIGN.md).
//
// A nil *Stats is valid everywhere it's used: every method on it is a
// no-op, so wiring stats collection is opt-in per Handler/Primary.
type Stats struct {
	v1Basic, v1Full   atomic.Int64
	v2Basic, v2Players, v2Challenge atomic.Int64

	dropMalformed     atomic.Int64
	dropRateLimited   atomic.Int64
	dropUnauthenticated atomic.Int64

	authRequired atomic.Int64

	cacheHit  atomic.Int64
	cacheMiss atomic.Int64

	ackOK, ackUnknownID, ackBadHMAC, ackStale atomic.Int64

	aggregateReads  atomic.Int64
	aggregateNanos  atomic.Int64
}

func (s *Stats) incr(c *atomic.Int64) {
	if s == nil {
		return
	}
	c.Add(1)
}

func (s *Stats) recordV1(full bool) {
	if full {
		s.incr(&s.v1Full)
	} else {
		s.incr(&s.v1Basic)
	}
}

func (s *Stats) recordV2(endpoint uint8) {
	switch endpoint {
	case wire.V2TypeChallenge:
		s.incr(&s.v2Challenge)
	case wire.V2TypePlayers:
		s.incr(&s.v2Players)
	default:
		s.incr(&s.v2Basic)
	}
}

func (s *Stats) recordDropMalformed()      { s.incr(&s.dropMalformed) }
func (s *Stats) recordDropRateLimited()    { s.incr(&s.dropRateLimited) }
func (s *Stats) recordDropUnauthenticated() { s.incr(&s.dropUnauthenticated) }
func (s *Stats) recordAuthRequired()       { s.incr(&s.authRequired) }
func (s *Stats) recordCacheHit()           { s.incr(&s.cacheHit) }
func (s *Stats) recordCacheMiss()          { s.incr(&s.cacheMiss) }

// RecordAck records one worker-status ACK's status code. Exported so the
// UDP coordinator's primary-side receiver, which lives in a different
// package, can feed it directly.
func (s *Stats) RecordAck(status uint8) {
	if s == nil {
		return
	}
	switch status {
	case wire.AckOK:
		s.ackOK.Add(1)
	case wire.AckUnknownID:
		s.ackUnknownID.Add(1)
	case wire.AckBadHMAC:
		s.ackBadHMAC.Add(1)
	case wire.AckStale:
		s.ackStale.Add(1)
	}
}

func (s *Stats) recordAggregateRead(nanos int64) {
	if s == nil {
		return
	}
	s.aggregateReads.Add(1)
	s.aggregateNanos.Add(nanos)
}

// Snapshot is a point-in-time copy of every counter, safe to log or
// marshal.
type Snapshot struct {
	V1Basic, V1Full                       int64
	V2Basic, V2Players, V2Challenge       int64
	DropMalformed, DropRateLimited        int64
	DropUnauthenticated, AuthRequired     int64
	CacheHit, CacheMiss                   int64
	AckOK, AckUnknownID, AckBadHMAC, AckStale int64
	AggregateReads                        int64
	// AggregateAvgMicros is 0 when AggregateReads is 0.
	AggregateAvgMicros int64
}

// Snapshot reads every counter. Safe to call concurrently with ongoing
// traffic; individual fields may be slightly inconsistent with each other
// (no global lock), which is fine for a metrics read.
func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	reads := s.aggregateReads.Load()
	var avg int64
	if reads > 0 {
		avg = (s.aggregateNanos.Load() / reads) / 1000
	}
	return Snapshot{
		V1Basic:             s.v1Basic.Load(),
		V1Full:              s.v1Full.Load(),
		V2Basic:             s.v2Basic.Load(),
		V2Players:           s.v2Players.Load(),
		V2Challenge:         s.v2Challenge.Load(),
		DropMalformed:       s.dropMalformed.Load(),
		DropRateLimited:     s.dropRateLimited.Load(),
		DropUnauthenticated: s.dropUnauthenticated.Load(),
		AuthRequired:        s.authRequired.Load(),
		CacheHit:            s.cacheHit.Load(),
		CacheMiss:           s.cacheMiss.Load(),
		AckOK:               s.ackOK.Load(),
		AckUnknownID:        s.ackUnknownID.Load(),
		AckBadHMAC:          s.ackBadHMAC.Load(),
		AckStale:            s.ackStale.Load(),
		AggregateReads:      reads,
		AggregateAvgMicros:  avg,
	}
}
