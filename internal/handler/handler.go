// Package handler implements the request handler (spec §4.6): the V1 and
// V2 query flows, wiring together the rate limiter, challenge service,
// response cache, aggregation view, and host adapter. Nothing here blocks
// the caller beyond whatever the aggregate/cache layers themselves do;
// malformed, unauthenticated, and rate-limited requests are dropped
// silently per §7.
package handler

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/hyvote/hyquery/internal/aggregate"
	"github.com/hyvote/hyquery/internal/cache"
	"github.com/hyvote/hyquery/internal/challenge"
	"github.com/hyvote/hyquery/internal/config"
	"github.com/hyvote/hyquery/internal/host"
	"github.com/hyvote/hyquery/internal/logx"
	"github.com/hyvote/hyquery/internal/ratelimit"
	"github.com/hyvote/hyquery/internal/wire"
)

// RemoteServerLister is implemented by the UDP coordinator's primary when
// a legacy "full" V1 query wants the remote-server list. nil for any
// instance without a UDP-coordinator primary role.
type RemoteServerLister interface {
	ListRemoteServers(now time.Time, timeout time.Duration) []wire.RemoteServerSnapshot
}

// Handler orchestrates the V1 and V2 query flows over a fixed set of
// collaborators, all of which are themselves safe for concurrent use.
type Handler struct {
	Host          host.Host
	Config        *config.Config
	Limiter       *ratelimit.Limiter
	Challenge     *challenge.Service
	Cache         *cache.Cache
	Aggregate     *aggregate.View
	Remote        RemoteServerLister
	IsPrimary     bool
	WorkerTimeout time.Duration
	Log           *logx.Logger
	// Stats is optional; a nil Stats disables metrics collection entirely
	// (every method on it is a no-op).
	Stats *Stats
}

func (h *Handler) motd() string {
	if h.Config.UseCustomMOTD {
		return h.Config.CustomMOTD
	}
	return h.Host.MOTD()
}

// HandleV1 runs the legacy V1 flow: rate-limit, optionally serve from
// cache, otherwise build and send (§4.6 "V1 flow").
func (h *Handler) HandleV1(body []byte, src *net.UDPAddr) []byte {
	if !h.Limiter.Allow(src.String()) {
		h.Stats.recordDropRateLimited()
		return nil
	}

	req, err := wire.DecodeV1Request(body)
	if err != nil {
		h.Stats.recordDropMalformed()
		if h.Log != nil {
			h.Log.Debug("handler: malformed v1 request from %s: %v", src, err)
		}
		return nil
	}

	h.Stats.recordV1(req.Type == wire.V1TypeFull)

	switch req.Type {
	case wire.V1TypeFull:
		if h.Config.CacheEnabled {
			return h.cachedV1(h.Cache.GetFull, h.buildV1Full)
		}
		return h.buildV1Full()
	default:
		if h.Config.CacheEnabled {
			return h.cachedV1(h.Cache.GetBasic, h.buildV1Basic)
		}
		return h.buildV1Basic()
	}
}

// cachedV1 wraps a cache slot accessor to distinguish hit/miss for Stats
// without the cache package itself needing to know metrics exist.
func (h *Handler) cachedV1(getter func(func() []byte) []byte, build func() []byte) []byte {
	built := false
	resp := getter(func() []byte {
		built = true
		return build()
	})
	if built {
		h.Stats.recordCacheMiss()
	} else {
		h.Stats.recordCacheHit()
	}
	return resp
}

func (h *Handler) localCounts() (online, max, port int32) {
	return int32(len(h.Host.Players())), int32(h.Host.MaxPlayers()), int32(h.Host.BindPort())
}

func (h *Handler) aggregateCounts(includePlayers bool) aggregate.Aggregate {
	if !h.IsPrimary || h.Aggregate == nil {
		return aggregate.Aggregate{}
	}
	start := time.Now()
	agg, err := h.Aggregate.GetAggregate(context.Background(), includePlayers)
	h.Stats.recordAggregateRead(time.Since(start).Nanoseconds())
	if err != nil {
		if h.Log != nil {
			h.Log.Warn("handler: aggregate read failed, serving local-only: %v", err)
		}
		return aggregate.Aggregate{}
	}
	return agg
}

func (h *Handler) buildV1Basic() []byte {
	online, max, port := h.localCounts()
	agg := h.aggregateCounts(false)
	online += agg.Online
	max += agg.Max

	return wire.EncodeV1Basic(wire.V1BasicResponse{
		ServerName: h.Host.ServerName(),
		MOTD:       h.motd(),
		Online:     uint32(online),
		Max:        uint32(max),
		Port:       uint32(port),
		Version:    h.Host.Version(),
	})
}

func (h *Handler) buildV1Full() []byte {
	online, max, port := h.localCounts()
	agg := h.aggregateCounts(h.Config.ShowPlayerList)
	online += agg.Online
	max += agg.Max

	resp := wire.V1FullResponse{
		V1BasicResponse: wire.V1BasicResponse{
			ServerName: h.Host.ServerName(),
			MOTD:       h.motd(),
			Online:     uint32(online),
			Max:        uint32(max),
			Port:       uint32(port),
			Version:    h.Host.Version(),
		},
		RevealPlugins: h.Config.ShowPlugins,
		Plugins:       h.Host.Plugins(),
	}

	if h.Config.ShowPlayerList {
		resp.RevealPlayers = true
		for _, p := range h.Host.Players() {
			resp.Players = append(resp.Players, wire.PlayerEntry{Username: p.Username, UUID: wire.UUID(p.UUID)})
		}
		resp.Players = append(resp.Players, agg.Players...)
	}

	if h.Remote != nil {
		resp.RevealRemote = true
		resp.RemoteServers = h.Remote.ListRemoteServers(time.Now(), h.WorkerTimeout)
	}

	return wire.EncodeV1Full(resp)
}

// HandleV2 runs the challenge-authenticated V2 flow for one request family
// (§4.6). The reply magic is derived from family via wire.ReplyMagicFor; a
// family with no reply magic is dropped.
func (h *Handler) HandleV2(family string, body []byte, src *net.UDPAddr) []byte {
	replyMagic, ok := wire.ReplyMagicFor(family)
	if !ok {
		return nil
	}

	req, err := wire.DecodeV2Request(body)
	if err != nil {
		h.Stats.recordDropMalformed()
		if h.Log != nil {
			h.Log.Debug("handler: malformed v2 request from %s: %v", src, err)
		}
		return nil
	}

	if req.Type == wire.V2TypeChallenge {
		if !h.Limiter.Allow(src.String()) {
			h.Stats.recordDropRateLimited()
			return nil
		}
		h.Stats.recordV2(wire.V2TypeChallenge)
		token := h.Challenge.Mint(src.IP)
		return wire.EncodeChallengeResponse(replyMagic, token)
	}

	if !h.Limiter.Allow(src.String()) {
		h.Stats.recordDropRateLimited()
		return nil
	}
	if !h.Challenge.Verify(req.Token[:], src.IP) {
		h.Stats.recordDropUnauthenticated()
		return nil
	}

	endpoint := req.Type
	if endpoint != wire.V2TypeBasic && endpoint != wire.V2TypePlayers {
		endpoint = wire.V2TypeBasic
	}
	h.Stats.recordV2(endpoint)

	allowed := h.authorized(endpoint, req)
	if !allowed {
		h.Stats.recordAuthRequired()
		payload := h.buildServerInfoTLV()
		return wire.EncodeV2Response(replyMagic, wire.FlagAuthRequired, req.RequestID, payload)
	}

	switch endpoint {
	case wire.V2TypePlayers:
		return h.buildPlayersResponse(replyMagic, req, src)
	default:
		wantAddress := req.Flags&wire.FlagWantAddress != 0
		return h.buildBasicResponse(replyMagic, req, src, wantAddress)
	}
}

func (h *Handler) authorized(endpoint uint8, req wire.V2RequestHeader) bool {
	pub := h.Config.Authentication.PublicAccess
	if endpoint == wire.V2TypePlayers {
		if pub.Players {
			return true
		}
	} else if pub.Basic {
		return true
	}

	if req.AuthToken == "" {
		return false
	}
	perms, ok := h.Config.Authentication.Tokens[req.AuthToken]
	if !ok {
		return false
	}
	if endpoint == wire.V2TypePlayers {
		return perms.Players
	}
	return perms.Basic
}

// buildServerInfoTLV builds the minimal SERVER_INFO payload sent alongside
// AUTH_REQUIRED (§4.6 step 6): local+aggregate counts, never an address.
func (h *Handler) buildServerInfoTLV() []byte {
	online, max, _ := h.localCounts()
	agg := h.aggregateCounts(false)
	online += agg.Online
	max += agg.Max

	info := wire.ServerInfo{
		ServerName:      h.Host.ServerName(),
		MOTD:            h.motd(),
		Online:          online,
		Max:             max,
		Version:         h.Host.Version(),
		ProtocolVersion: 1,
	}
	return wire.EncodeServerInfoTLV(info)
}

func splitHostPort(src *net.UDPAddr) (string, uint16) {
	if src == nil {
		return "", 0
	}
	return src.IP.String(), uint16(src.Port)
}

func (h *Handler) buildBasicResponse(replyMagic string, req wire.V2RequestHeader, src *net.UDPAddr, wantAddress bool) []byte {
	agg := h.aggregateCounts(false)

	online, max, _ := h.localCounts()
	online += agg.Online
	max += agg.Max

	info := wire.ServerInfo{
		ServerName:      h.Host.ServerName(),
		MOTD:            h.motd(),
		Online:          online,
		Max:             max,
		Version:         h.Host.Version(),
		ProtocolVersion: 1,
	}

	flags := uint16(0)
	if agg.Contributed {
		flags |= wire.FlagIsNetwork
	}

	if wantAddress {
		hostAddr, port := splitHostPort(src)
		if hostAddr != "" && port != 0 {
			info.HasAddress = true
			info.Host = hostAddr
			info.Port = port
			flags |= wire.FlagHasAddress
		}
	}

	payload := wire.EncodeServerInfoTLV(info)
	return wire.EncodeV2Response(replyMagic, flags, req.RequestID, payload)
}

func (h *Handler) buildPlayersResponse(replyMagic string, req wire.V2RequestHeader, src *net.UDPAddr) []byte {
	agg := h.aggregateCounts(true)

	players := make([]wire.PlayerEntry, 0, len(h.Host.Players())+len(agg.Players))
	for _, p := range h.Host.Players() {
		players = append(players, wire.PlayerEntry{Username: p.Username, UUID: wire.UUID(p.UUID)})
	}
	players = append(players, agg.Players...)

	sort.Slice(players, func(i, j int) bool {
		if players[i].Username != players[j].Username {
			return players[i].Username < players[j].Username
		}
		return players[i].UUID.String() < players[j].UUID.String()
	})

	page := wire.BuildPlayerListTLV(players, int(req.Offset))

	flags := uint16(0)
	if page.HasMore {
		flags |= wire.FlagHasMorePlayers
	}
	if agg.Contributed {
		flags |= wire.FlagIsNetwork
	}

	return wire.EncodeV2Response(replyMagic, flags, req.RequestID, page.TLV)
}
