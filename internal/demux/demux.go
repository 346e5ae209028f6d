// Package demux implements the packet demultiplexer that sits ahead of the
// native game transport on every UDP listener (spec §4.1). It is written as
// a pure function from a datagram to a Disposition, exactly the shape the
// design notes call for ("a function from (datagram, next) to an action"),
// so it can be unit tested without a socket.
package demux

import "github.com/hyvote/hyquery/internal/wire"

// Action says what the caller should do with an inbound datagram.
type Action int

const (
	// ActionForward means the datagram is not ours; hand it to the next
	// transport unchanged, indistinguishable from the no-handler case.
	ActionForward Action = iota
	// ActionDrop means the datagram matched a recognized-but-unaccepted
	// prefix, or a disabled protocol; release it silently.
	ActionDrop
	// ActionV1Query means dispatch to the V1 handler.
	ActionV1Query
	// ActionV2Query means dispatch to the V2 handler; Family distinguishes
	// HYQUERY2 from ONEQUERY so the response uses the matching reply magic.
	ActionV2Query
	// ActionWorkerStatus means dispatch to the UDP coordinator's primary
	// receiver.
	ActionWorkerStatus
)

// Classification is the demultiplexer's verdict for one datagram.
type Classification struct {
	Action Action
	Family string // request magic, for ActionV2Query
}

// Options enables/disables protocols and roles without the demultiplexer
// needing to know why.
type Options struct {
	V1Enabled      bool
	V2Enabled      bool
	IsPrimary      bool // worker status frames are only accepted on a primary
}

// Classify peeks at (does not consume) the first 8 bytes of datagram and
// returns the disposition per the prefix table in §4.1.
func Classify(datagram []byte, opts Options) Classification {
	if len(datagram) < wire.MagicLen {
		return Classification{Action: ActionForward}
	}
	prefix := string(datagram[:wire.MagicLen])

	switch prefix {
	case wire.MagicV1Query:
		if opts.V1Enabled {
			return Classification{Action: ActionV1Query}
		}
		return Classification{Action: ActionDrop}

	case wire.MagicV2HyQuery, wire.MagicV2OneQuery:
		if opts.V2Enabled {
			return Classification{Action: ActionV2Query, Family: prefix}
		}
		return Classification{Action: ActionDrop}

	case wire.MagicWorkerStatus:
		if opts.IsPrimary {
			return Classification{Action: ActionWorkerStatus}
		}
		return Classification{Action: ActionDrop}

	case wire.MagicWorkerAck, wire.MagicV1Reply, wire.MagicV2HyReply, wire.MagicV2OneReply:
		return Classification{Action: ActionDrop}

	default:
		return Classification{Action: ActionForward}
	}
}
