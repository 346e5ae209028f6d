// Package challenge implements HyQuery's stateless, address-bound
// anti-amplification tokens (spec §4.3). No per-client memory is kept:
// validity is re-derived by recomputing the HMAC over a sliding window.
package challenge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"time"
)

const (
	// WindowSeconds is the width of one challenge epoch.
	WindowSeconds = 30
	tokenLen      = 32
	macFieldLen   = 24
)

// Service mints and verifies challenge tokens. The zero value is not
// usable; construct with New.
//
// The underlying crypto/hmac.New call allocates a fresh hash.Hash per
// Mint/Verify, so no pooling or per-goroutine instance is needed for
// concurrency safety; the secret itself is read-only after construction
// (§5).
type Service struct {
	secret          []byte
	validitySeconds int
}

// New creates a challenge service. If secret is non-empty its UTF-8 bytes
// become the HMAC key; otherwise 32 cryptographically random bytes are
// generated, meaning tokens minted before a restart stop validating after
// it (§4.3).
func New(secret string, validitySeconds int) (*Service, error) {
	if validitySeconds <= 0 {
		validitySeconds = WindowSeconds
	}
	var key []byte
	if secret != "" {
		key = []byte(secret)
	} else {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("challenge: generating ephemeral secret: %w", err)
		}
	}
	return &Service{secret: key, validitySeconds: validitySeconds}, nil
}

func windowFor(t time.Time) uint32 {
	return uint32(t.Unix() / WindowSeconds)
}

func addrBytes(addr net.IP) []byte {
	if v4 := addr.To4(); v4 != nil {
		return v4
	}
	return addr.To16()
}

func computeMAC(key []byte, window uint32, addr net.IP) []byte {
	mac := hmac.New(sha256.New, key)
	var wbuf [4]byte
	binary.BigEndian.PutUint32(wbuf[:], window)
	mac.Write(wbuf[:])
	mac.Write(addrBytes(addr))
	sum := mac.Sum(nil)
	return sum[:macFieldLen]
}

// Mint returns a 32-byte token bound to addr for the current window.
func (s *Service) Mint(addr net.IP) [tokenLen]byte {
	return s.mintAt(addr, time.Now())
}

func (s *Service) mintAt(addr net.IP, now time.Time) [tokenLen]byte {
	window := windowFor(now)
	var out [tokenLen]byte
	binary.BigEndian.PutUint32(out[0:4], window)
	// bytes [4:8] are zero by construction
	copy(out[8:32], computeMAC(s.secret, window, addr))
	return out
}

// Verify reports whether token was minted for addr and is still within
// the configured validity window. A token is accepted for windows
// [current, current-1, ..., current-ceil(validity/30)+1] and never for a
// window in the future.
func (s *Service) Verify(token []byte, addr net.IP) bool {
	return s.verifyAt(token, addr, time.Now())
}

func (s *Service) verifyAt(token []byte, addr net.IP, now time.Time) bool {
	if len(token) != tokenLen {
		return false
	}
	extracted := binary.BigEndian.Uint32(token[0:4])
	current := windowFor(now)

	steps := int(math.Ceil(float64(s.validitySeconds) / float64(WindowSeconds)))
	for i := 0; i < steps; i++ {
		if uint32(i) > current {
			break
		}
		candidate := current - uint32(i)
		if extracted != candidate {
			continue
		}
		expected := computeMAC(s.secret, candidate, addr)
		if subtle.ConstantTimeCompare(expected, token[8:32]) == 1 {
			return true
		}
		return false
	}
	return false
}
