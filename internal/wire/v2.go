package wire

import "fmt"

// V2 request types.
const (
	V2TypeChallenge uint8 = 0x00
	V2TypeBasic     uint8 = 0x01
	V2TypePlayers   uint8 = 0x02
)

// V2ResponseVersion is the only response header version this codec emits
// or accepts.
const V2ResponseVersion uint8 = 0x01

// Request flag bits.
const (
	FlagHasAuthToken uint16 = 0x0001
	// FlagWantAddress asks a BASIC response to echo the requester's own
	// observed host/port in SERVER_INFO (HAS_ADDRESS), for hub-routing
	// callers that need it — §4.6 step 7: "only if the caller asked".
	FlagWantAddress uint16 = 0x0002
)

// Response flag bits.
const (
	FlagHasMorePlayers uint16 = 0x0001
	FlagAuthRequired   uint16 = 0x0002
	FlagIsNetwork      uint16 = 0x0010
	FlagHasAddress     uint16 = 0x0020
)

// TLV type tags.
const (
	TLVServerInfo uint16 = 0x0001
	TLVPlayerList uint16 = 0x0002
)

const (
	tokenLen            = 32
	safeMTU             = 1400
	responseHeaderLen   = 17
	challengeRespLen    = 8 + 1 + tokenLen + 7
	// MaxPayloadSize bounds a PLAYERS TLV value so that header + TLV header
	// (2+2) + this value never exceeds the MTU ceiling, with slack for the
	// surrounding SERVER_INFO-sized framing budgeted for (§4.2).
	MaxPayloadSize = safeMTU - responseHeaderLen - 50
)

// V2RequestHeader is the common prefix of every non-challenge V2 request.
type V2RequestHeader struct {
	Type      uint8
	Token     [tokenLen]byte
	RequestID uint32
	Flags     uint16
	Offset    uint32
	AuthToken string // only present if FlagHasAuthToken is set
}

// DecodeV2Request parses a V2 request body (8-byte family magic already
// consumed). For a CHALLENGE request only Type is populated.
func DecodeV2Request(body []byte) (V2RequestHeader, error) {
	r := NewReader(body)
	t, err := r.ReadU8()
	if err != nil {
		return V2RequestHeader{}, err
	}
	h := V2RequestHeader{Type: t}
	if t == V2TypeChallenge {
		return h, nil
	}

	tok, err := r.ReadRaw(tokenLen)
	if err != nil {
		return V2RequestHeader{}, err
	}
	copy(h.Token[:], tok)

	if h.RequestID, err = r.ReadU32(); err != nil {
		return V2RequestHeader{}, err
	}
	if h.Flags, err = r.ReadU16(); err != nil {
		return V2RequestHeader{}, err
	}
	if h.Offset, err = r.ReadU32(); err != nil {
		return V2RequestHeader{}, err
	}
	if h.Flags&FlagHasAuthToken != 0 {
		if h.AuthToken, err = r.ReadString(); err != nil {
			return V2RequestHeader{}, err
		}
	}
	return h, nil
}

// EncodeChallengeResponse writes the 48-byte challenge reply: magic, 0x00,
// 32-byte token, 7 reserved zero bytes.
func EncodeChallengeResponse(respMagic string, token [tokenLen]byte) []byte {
	w := NewWriter()
	w.WriteMagic(respMagic)
	w.WriteU8(0x00)
	w.WriteRaw(token[:])
	w.WriteRaw(make([]byte, 7))
	b := w.Bytes()
	if len(b) != challengeRespLen {
		panic(fmt.Sprintf("wire: challenge response length = %d, want %d", len(b), challengeRespLen))
	}
	return b
}

// V2Response is a decoded response header plus raw TLV payload bytes.
type V2Response struct {
	Magic     string
	Version   uint8
	Flags     uint16
	RequestID uint32
	Payload   []byte
}

// EncodeV2Response assembles the 17-byte response header followed by
// payload. Payload must already be ≤ 65535 bytes.
func EncodeV2Response(respMagic string, flags uint16, requestID uint32, payload []byte) []byte {
	w := NewWriter()
	w.WriteMagic(respMagic)
	w.WriteU8(V2ResponseVersion)
	w.WriteU16(flags)
	w.WriteU32(requestID)
	w.WriteU16(uint16(len(payload)))
	w.WriteRaw(payload)
	return w.Bytes()
}

// DecodeV2Response parses a full response datagram, used by tests.
func DecodeV2Response(b []byte) (V2Response, error) {
	r := NewReader(b)
	magic, err := r.ReadMagic()
	if err != nil {
		return V2Response{}, err
	}
	resp := V2Response{Magic: magic}
	if resp.Version, err = r.ReadU8(); err != nil {
		return V2Response{}, err
	}
	if resp.Flags, err = r.ReadU16(); err != nil {
		return V2Response{}, err
	}
	if resp.RequestID, err = r.ReadU32(); err != nil {
		return V2Response{}, err
	}
	plen, err := r.ReadU16()
	if err != nil {
		return V2Response{}, err
	}
	payload, err := r.ReadRaw(int(plen))
	if err != nil {
		return V2Response{}, err
	}
	resp.Payload = payload
	return resp, nil
}

// TLV is a decoded type-length-value record.
type TLV struct {
	Type  uint16
	Value []byte
}

// ParseTLVs decodes every TLV record in a payload, stopping at the first
// truncated record (treated as malformed input — caller drops).
func ParseTLVs(payload []byte) ([]TLV, error) {
	r := NewReader(payload)
	var out []TLV
	for r.Remaining() > 0 {
		typ, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		l, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		v, err := r.ReadRaw(int(l))
		if err != nil {
			return nil, err
		}
		out = append(out, TLV{Type: typ, Value: v})
	}
	return out, nil
}

func writeTLV(w *Writer, typ uint16, value []byte) {
	w.WriteU16(typ)
	w.WriteU16(uint16(len(value)))
	w.WriteRaw(value)
}

// ServerInfo is the decoded/encoded form of the SERVER_INFO TLV value.
type ServerInfo struct {
	ServerName      string
	MOTD            string
	Online          int32
	Max             int32
	Version         string
	ProtocolVersion int32
	ProtocolHash    string
	HasAddress      bool
	Host            string
	Port            uint16
}

// EncodeServerInfoTLV builds the full SERVER_INFO TLV record (type+length
// header included).
func EncodeServerInfoTLV(info ServerInfo) []byte {
	vw := NewWriter()
	vw.WriteString(info.ServerName)
	vw.WriteString(info.MOTD)
	vw.WriteI32(info.Online)
	vw.WriteI32(info.Max)
	vw.WriteString(info.Version)
	vw.WriteI32(info.ProtocolVersion)
	vw.WriteString(info.ProtocolHash)
	if info.HasAddress {
		vw.WriteString(info.Host)
		vw.WriteU16(info.Port)
	}

	w := NewWriter()
	writeTLV(w, TLVServerInfo, vw.Bytes())
	return w.Bytes()
}

// DecodeServerInfo parses a SERVER_INFO TLV value. hasAddress must be
// derived by the caller from the response's HAS_ADDRESS flag, since the
// value itself carries no self-describing length for the optional tail.
func DecodeServerInfo(value []byte, hasAddress bool) (ServerInfo, error) {
	r := NewReader(value)
	var info ServerInfo
	var err error
	if info.ServerName, err = r.ReadString(); err != nil {
		return ServerInfo{}, err
	}
	if info.MOTD, err = r.ReadString(); err != nil {
		return ServerInfo{}, err
	}
	if info.Online, err = r.ReadI32(); err != nil {
		return ServerInfo{}, err
	}
	if info.Max, err = r.ReadI32(); err != nil {
		return ServerInfo{}, err
	}
	if info.Version, err = r.ReadString(); err != nil {
		return ServerInfo{}, err
	}
	if info.ProtocolVersion, err = r.ReadI32(); err != nil {
		return ServerInfo{}, err
	}
	if info.ProtocolHash, err = r.ReadString(); err != nil {
		return ServerInfo{}, err
	}
	info.HasAddress = hasAddress
	if hasAddress {
		if info.Host, err = r.ReadString(); err != nil {
			return ServerInfo{}, err
		}
		if info.Port, err = r.ReadU16(); err != nil {
			return ServerInfo{}, err
		}
	}
	return info, nil
}

// PlayerListPage is one paginated slice of a PLAYER_LIST TLV build.
type PlayerListPage struct {
	TLV         []byte // full type+length+value record
	Count       int
	HasMore     bool
	NextOffset  int
}

// BuildPlayerListTLV paginates players starting at offset, filling entries
// until MaxPayloadSize would be exceeded (§4.2: budget decremented by
// 2+len(username)+16 per entry). Entries are assumed already sorted by the
// caller (§4.6: (username, uuid-string) ascending).
func BuildPlayerListTLV(players []PlayerEntry, offset int) PlayerListPage {
	total := len(players)
	start := offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}

	vw := NewWriter()
	vw.WriteI32(int32(total))
	countOff := vw.Reserve(4)
	vw.WriteI32(int32(start))

	budget := MaxPayloadSize - 4 - 4 - 4 // fixed PLAYER_LIST header fields
	emitted := 0
	i := start
	for ; i < total; i++ {
		p := players[i]
		entryCost := 2 + len(p.Username) + 16
		if budget-entryCost < 0 {
			break
		}
		budget -= entryCost
		vw.WriteString(p.Username)
		vw.WriteUUID(p.UUID)
		emitted++
	}
	vw.PatchI32At(countOff, int32(emitted))

	hasMore := i < total

	w := NewWriter()
	writeTLV(w, TLVPlayerList, vw.Bytes())

	return PlayerListPage{
		TLV:        w.Bytes(),
		Count:      emitted,
		HasMore:    hasMore,
		NextOffset: i,
	}
}

// DecodedPlayerList is the parsed form of a PLAYER_LIST TLV value, used by
// tests that walk a paginated sequence of responses.
type DecodedPlayerList struct {
	Total       int32
	Count       int32
	StartOffset int32
	Players     []PlayerEntry
}

func DecodePlayerList(value []byte) (DecodedPlayerList, error) {
	r := NewReader(value)
	var out DecodedPlayerList
	var err error
	if out.Total, err = r.ReadI32(); err != nil {
		return out, err
	}
	if out.Count, err = r.ReadI32(); err != nil {
		return out, err
	}
	if out.StartOffset, err = r.ReadI32(); err != nil {
		return out, err
	}
	for i := int32(0); i < out.Count; i++ {
		var p PlayerEntry
		if p.Username, err = r.ReadString(); err != nil {
			return out, err
		}
		if p.UUID, err = r.ReadUUID(); err != nil {
			return out, err
		}
		out.Players = append(out.Players, p)
	}
	return out, nil
}
