package wire

// V1 request types.
const (
	V1TypeBasic uint8 = 0x00
	V1TypeFull  uint8 = 0x01
)

// V1Request is the decoded legacy query: 8-byte magic + 1-byte type.
type V1Request struct {
	Type uint8
}

// DecodeV1Request parses a V1 request body (magic already consumed by the
// demultiplexer). Returns ErrShortPacket on truncation.
func DecodeV1Request(body []byte) (V1Request, error) {
	r := NewReader(body)
	t, err := r.ReadU8()
	if err != nil {
		return V1Request{}, err
	}
	return V1Request{Type: t}, nil
}

// PlayerEntry is a player record as it appears inside a V1 full response or
// a V2 PLAYER_LIST TLV. SourceServerID is empty for a locally-connected
// player and set to the origin worker id for an aggregated network player.
type PlayerEntry struct {
	Username       string
	UUID           UUID
	SourceServerID string
}

// RemoteServerSnapshot is one fleet member as embedded in a V1 full
// response's remote-server list.
type RemoteServerSnapshot struct {
	ID              string
	Name            string
	MOTD            string
	Online          uint32
	Max             uint32
	Status          uint8
	UpdatedAtMillis int64
	Players         []PlayerEntry
}

// V1BasicResponse holds the fields common to both basic and full replies.
type V1BasicResponse struct {
	ServerName string
	MOTD       string
	Online     uint32
	Max        uint32
	Port       uint32
	Version    string
}

// V1FullResponse extends V1BasicResponse with the lists a "full" query
// reveals. A server configured not to reveal a given list encodes it with
// count=0 (RevealPlayers/RevealPlugins/RevealRemote false).
type V1FullResponse struct {
	V1BasicResponse
	RevealPlayers bool
	Players       []PlayerEntry
	RevealPlugins bool
	Plugins       []string
	RevealRemote  bool
	RemoteServers []RemoteServerSnapshot
}

// EncodeV1Basic writes a basic V1 reply: magic, type, name, MOTD, online,
// max, port, version. No further bytes follow.
func EncodeV1Basic(r V1BasicResponse) []byte {
	w := NewWriter()
	w.WriteMagic(MagicV1Reply)
	w.WriteU8(V1TypeBasic)
	writeV1Basic(w, r)
	return w.Bytes()
}

func writeV1Basic(w *Writer, r V1BasicResponse) {
	w.WriteString(r.ServerName)
	w.WriteString(r.MOTD)
	w.WriteU32(r.Online)
	w.WriteU32(r.Max)
	w.WriteU32(r.Port)
	w.WriteString(r.Version)
}

// EncodeV1Full writes a full V1 reply, appending player/plugin/remote-server
// lists after the basic fields. Every count field is a little-endian
// uint32, matching the legacy wire format exactly (§4.2 notes this differs
// from the V2 TLV's signed int32 counts — that is intentional, not a bug).
func EncodeV1Full(r V1FullResponse) []byte {
	w := NewWriter()
	w.WriteMagic(MagicV1Reply)
	w.WriteU8(V1TypeFull)
	writeV1Basic(w, r.V1BasicResponse)

	if r.RevealPlayers {
		w.WriteU32(uint32(len(r.Players)))
		for _, p := range r.Players {
			w.WriteString(p.Username)
			w.WriteUUID(p.UUID)
			w.WriteString(p.SourceServerID)
		}
	} else {
		w.WriteU32(0)
	}

	if r.RevealPlugins {
		w.WriteU32(uint32(len(r.Plugins)))
		for _, p := range r.Plugins {
			w.WriteString(p)
		}
	} else {
		w.WriteU32(0)
	}

	if r.RevealRemote {
		w.WriteU32(uint32(len(r.RemoteServers)))
		for _, rs := range r.RemoteServers {
			w.WriteString(rs.ID)
			w.WriteString(rs.Name)
			w.WriteString(rs.MOTD)
			w.WriteU32(rs.Online)
			w.WriteU32(rs.Max)
			w.WriteU8(rs.Status)
			w.WriteI64(rs.UpdatedAtMillis)
			w.WriteU32(uint32(len(rs.Players)))
			for _, p := range rs.Players {
				w.WriteString(p.Username)
				w.WriteUUID(p.UUID)
				w.WriteString(p.SourceServerID)
			}
		}
	} else {
		w.WriteU32(0)
	}

	return w.Bytes()
}
