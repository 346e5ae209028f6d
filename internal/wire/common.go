// Package wire implements the on-wire codecs for every HyQuery frame type:
// the legacy V1 query/reply pair, the challenge-authenticated V2 protocol
// (shared by the HYQUERY2 and ONEQUERY magic-byte families), and the
// worker status/ACK frames used by the UDP coordinator. All layouts are
// byte-exact per the protocol specification; nothing here is free to
// "normalize" an inconsistency (see DESIGN.md's Open Question notes).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrShortPacket is returned whenever a decode runs out of bytes. Callers
// must treat it as "malformed input" per §7: drop silently, no response.
var ErrShortPacket = errors.New("wire: short packet")

// Magic byte sequences. All are exactly 8 bytes.
const (
	MagicV1Query      = "HYQUERY\x00"
	MagicV1Reply      = "HYREPLY\x00"
	MagicV2HyQuery    = "HYQUERY2"
	MagicV2HyReply    = "HYREPLY2"
	MagicV2OneQuery   = "ONEQUERY"
	MagicV2OneReply   = "ONEREPLY"
	MagicWorkerStatus = "HYSTATUS"
	MagicWorkerAck    = "HYSTATOK"
)

// MagicLen is the fixed length of every magic prefix.
const MagicLen = 8

// ReplyMagicFor returns the response magic for a request magic's family.
// Returns ok=false for a magic with no corresponding reply family.
func ReplyMagicFor(reqMagic string) (string, bool) {
	switch reqMagic {
	case MagicV1Query:
		return MagicV1Reply, true
	case MagicV2HyQuery:
		return MagicV2HyReply, true
	case MagicV2OneQuery:
		return MagicV2OneReply, true
	default:
		return "", false
	}
}

// UUID is a 128-bit UUID serialized as documented in §4.2: uint64 MSB then
// uint64 LSB, both big-endian.
type UUID [16]byte

func UUIDFromParts(hi, lo uint64) UUID {
	var u UUID
	binary.BigEndian.PutUint64(u[0:8], hi)
	binary.BigEndian.PutUint64(u[8:16], lo)
	return u
}

func (u UUID) Parts() (hi, lo uint64) {
	return binary.BigEndian.Uint64(u[0:8]), binary.BigEndian.Uint64(u[8:16])
}

// String renders the UUID in canonical 8-4-4-4-12 hex form, used as the
// secondary sort key for PLAYERS pagination (§4.6).
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// Writer accumulates a response/request buffer using the wire's integer
// and string conventions. It never returns an error: writes always
// succeed against a growable slice.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{buf: make([]byte, 0, 256)} }

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) WriteRaw(b []byte) { w.buf = append(w.buf, b...) }
func (w *Writer) WriteMagic(m string) {
	if len(m) != MagicLen {
		panic("wire: magic must be 8 bytes")
	}
	w.buf = append(w.buf, m...)
}

func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteI64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteString writes a 16-bit little-endian length prefix followed by the
// UTF-8 bytes of s.
func (w *Writer) WriteString(s string) {
	w.WriteU16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteUUID(u UUID) { w.buf = append(w.buf, u[:]...) }

// Reserve appends n zero bytes and returns their offset, so a caller can
// back-patch a length field once the real value is known (used by the
// PLAYERS TLV's count-in-this-response field).
func (w *Writer) Reserve(n int) int {
	off := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return off
}

func (w *Writer) PatchU32At(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[off:off+4], v)
}

func (w *Writer) PatchI32At(off int, v int32) { w.PatchU32At(off, uint32(v)) }

func (w *Writer) PatchU16At(off int, v uint16) {
	binary.LittleEndian.PutUint16(w.buf[off:off+2], v)
}

// Reader decodes a wire buffer sequentially, returning ErrShortPacket
// (wrapped with context) on any out-of-bounds read.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Remaining() int { return len(r.buf) - r.off }
func (r *Reader) Offset() int    { return r.off }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("%w: need %d, have %d", ErrShortPacket, n, r.Remaining())
	}
	return nil
}

func (r *Reader) ReadRaw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadMagic() (string, error) {
	b, err := r.ReadRaw(MagicLen)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.ReadRaw(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.ReadRaw(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.ReadRaw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadI64() (int64, error) {
	b, err := r.ReadRaw(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU16()
	if err != nil {
		return "", err
	}
	b, err := r.ReadRaw(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) ReadUUID() (UUID, error) {
	b, err := r.ReadRaw(16)
	if err != nil {
		return UUID{}, err
	}
	var u UUID
	copy(u[:], b)
	return u, nil
}
