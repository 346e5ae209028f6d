package wire

import (
	"crypto/hmac"
	"crypto/sha256"
)

// StatusVersion is the only worker-status frame version this codec speaks.
const StatusVersion uint8 = 0x01

// ACK status codes.
const (
	AckOK        uint8 = 0x00
	AckUnknownID uint8 = 0x01
	AckBadHMAC   uint8 = 0x02
	AckStale     uint8 = 0x03
)

const hmacLen = 32

// StatusFrame is the decoded payload of a worker status update.
type StatusFrame struct {
	WorkerID string
	Name     string
	MOTD     string
	Online   int32
	Max      int32
	Port     int32
	Version  string
	Players  []PlayerEntry
}

func buildStatusPayload(f StatusFrame) []byte {
	w := NewWriter()
	w.WriteString(f.WorkerID)
	w.WriteString(f.Name)
	w.WriteString(f.MOTD)
	w.WriteI32(f.Online)
	w.WriteI32(f.Max)
	w.WriteI32(f.Port)
	w.WriteString(f.Version)
	w.WriteI32(int32(len(f.Players)))
	for _, p := range f.Players {
		w.WriteString(p.Username)
		w.WriteUUID(p.UUID)
	}
	return w.Bytes()
}

func parseStatusPayload(payload []byte) (StatusFrame, error) {
	r := NewReader(payload)
	var f StatusFrame
	var err error
	if f.WorkerID, err = r.ReadString(); err != nil {
		return f, err
	}
	if f.Name, err = r.ReadString(); err != nil {
		return f, err
	}
	if f.MOTD, err = r.ReadString(); err != nil {
		return f, err
	}
	if f.Online, err = r.ReadI32(); err != nil {
		return f, err
	}
	if f.Max, err = r.ReadI32(); err != nil {
		return f, err
	}
	if f.Port, err = r.ReadI32(); err != nil {
		return f, err
	}
	if f.Version, err = r.ReadString(); err != nil {
		return f, err
	}
	n, err := r.ReadI32()
	if err != nil {
		return f, err
	}
	for i := int32(0); i < n; i++ {
		var p PlayerEntry
		if p.Username, err = r.ReadString(); err != nil {
			return f, err
		}
		if p.UUID, err = r.ReadUUID(); err != nil {
			return f, err
		}
		f.Players = append(f.Players, p)
	}
	return f, nil
}

// EncodeStatus builds a signed worker status frame. The HMAC is computed
// over magic‖version‖timestamp‖payload (the MAC field itself is absent
// from that computation) and then spliced into the wire between the
// timestamp and the payload — §4.2 and §9 call this out explicitly as an
// inconsistency to preserve, not "fix".
func EncodeStatus(key []byte, timestampMillis int64, f StatusFrame) []byte {
	payload := buildStatusPayload(f)

	toMac := NewWriter()
	toMac.WriteMagic(MagicWorkerStatus)
	toMac.WriteU8(StatusVersion)
	toMac.WriteI64(timestampMillis)
	toMac.WriteRaw(payload)

	mac := hmac.New(sha256.New, key)
	mac.Write(toMac.Bytes())
	sum := mac.Sum(nil)

	w := NewWriter()
	w.WriteMagic(MagicWorkerStatus)
	w.WriteU8(StatusVersion)
	w.WriteI64(timestampMillis)
	w.WriteRaw(sum)
	w.WriteRaw(payload)
	return w.Bytes()
}

// DecodedStatus is a structurally-parsed status frame: fields are
// available even before the HMAC has been checked against a specific
// worker entry's key (the registry lookup needs WorkerID first).
type DecodedStatus struct {
	TimestampMillis int64
	MAC             [hmacLen]byte
	Payload         []byte
	Frame           StatusFrame
}

// DecodeStatus parses a status frame body (magic already consumed by the
// demultiplexer). It does not verify the HMAC.
func DecodeStatus(body []byte) (DecodedStatus, error) {
	r := NewReader(body)
	var d DecodedStatus
	ver, err := r.ReadU8()
	if err != nil {
		return d, err
	}
	_ = ver
	if d.TimestampMillis, err = r.ReadI64(); err != nil {
		return d, err
	}
	macBytes, err := r.ReadRaw(hmacLen)
	if err != nil {
		return d, err
	}
	copy(d.MAC[:], macBytes)
	d.Payload = r.buf[r.off:]
	d.Frame, err = parseStatusPayload(d.Payload)
	if err != nil {
		return d, err
	}
	return d, nil
}

// VerifyStatusMAC recomputes the expected HMAC for a decoded status frame
// and compares it in constant time against the transmitted MAC.
func VerifyStatusMAC(d DecodedStatus, key []byte) bool {
	toMac := NewWriter()
	toMac.WriteMagic(MagicWorkerStatus)
	toMac.WriteU8(StatusVersion)
	toMac.WriteI64(d.TimestampMillis)
	toMac.WriteRaw(d.Payload)

	mac := hmac.New(sha256.New, key)
	mac.Write(toMac.Bytes())
	expected := mac.Sum(nil)
	return hmac.Equal(expected, d.MAC[:])
}

// EncodeAck builds a signed ACK frame body: status, echoed timestamp, then
// an HMAC over magic‖status‖timestamp using the same key as the status
// frame it answers. The magic itself is not part of the returned bytes —
// callers prefix MagicWorkerAck the same way DecodeStatus expects its
// magic to have already been consumed by the demultiplexer.
func EncodeAck(key []byte, status uint8, echoedTimestampMillis int64) []byte {
	pre := NewWriter()
	pre.WriteMagic(MagicWorkerAck)
	pre.WriteU8(status)
	pre.WriteI64(echoedTimestampMillis)

	mac := hmac.New(sha256.New, key)
	mac.Write(pre.Bytes())
	sum := mac.Sum(nil)

	w := NewWriter()
	w.WriteU8(status)
	w.WriteI64(echoedTimestampMillis)
	w.WriteRaw(sum)
	return w.Bytes()
}

// DecodedAck is a structurally-parsed ACK frame (magic already consumed).
type DecodedAck struct {
	Status                uint8
	EchoedTimestampMillis  int64
	MAC                    [hmacLen]byte
}

func DecodeAck(body []byte) (DecodedAck, error) {
	r := NewReader(body)
	var a DecodedAck
	var err error
	if a.Status, err = r.ReadU8(); err != nil {
		return a, err
	}
	if a.EchoedTimestampMillis, err = r.ReadI64(); err != nil {
		return a, err
	}
	macBytes, err := r.ReadRaw(hmacLen)
	if err != nil {
		return a, err
	}
	copy(a.MAC[:], macBytes)
	return a, nil
}

// VerifyAckMAC checks an ACK's HMAC against the key used to sign it. body
// is the magic-free ACK body as returned by EncodeAck/received after the
// demultiplexer strips MagicWorkerAck; the magic is reconstructed here
// since it's part of the signed material but not of the wire body.
func VerifyAckMAC(body []byte, a DecodedAck, key []byte) bool {
	pre := NewWriter()
	pre.WriteMagic(MagicWorkerAck)
	pre.WriteU8(a.Status)
	pre.WriteI64(a.EchoedTimestampMillis)

	mac := hmac.New(sha256.New, key)
	mac.Write(pre.Bytes())
	expected := mac.Sum(nil)
	return hmac.Equal(expected, a.MAC[:])
}
