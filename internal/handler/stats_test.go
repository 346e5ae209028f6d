package handler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyvote/hyquery/internal/handler"
	"github.com/hyvote/hyquery/internal/wire"
)

func TestStatsNilIsNoOp(t *testing.T) {
	var s *handler.Stats
	assert.NotPanics(t, func() {
		s.RecordAck(wire.AckOK)
	})
	assert.Equal(t, handler.Snapshot{}, s.Snapshot())
}

func TestStatsRecordAck(t *testing.T) {
	s := &handler.Stats{}
	s.RecordAck(wire.AckOK)
	s.RecordAck(wire.AckOK)
	s.RecordAck(wire.AckUnknownID)
	s.RecordAck(wire.AckBadHMAC)
	s.RecordAck(wire.AckStale)
	s.RecordAck(0xFF) // unrecognized status codes are ignored

	snap := s.Snapshot()
	assert.EqualValues(t, 2, snap.AckOK)
	assert.EqualValues(t, 1, snap.AckUnknownID)
	assert.EqualValues(t, 1, snap.AckBadHMAC)
	assert.EqualValues(t, 1, snap.AckStale)
}

func TestStatsAggregateReadAverage(t *testing.T) {
	s := &handler.Stats{}
	snap := s.Snapshot()
	assert.EqualValues(t, 0, snap.AggregateReads)
	assert.EqualValues(t, 0, snap.AggregateAvgMicros)
}
