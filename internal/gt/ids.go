package gt

import (
	"encoding/hex"
	"math/rand/v2"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random (version 4) UUIDs.
//
// When the crypto random source fails it degrades to a pseudo-random UUID
// with the same version and variant bits. Those IDs have weaker collision
// resistance, which is acceptable for a single-user local database.
type UUIDGenerator struct {
	fallback atomic.Bool
}

func NewUUIDGenerator() *UUIDGenerator { return &UUIDGenerator{} }

func (g *UUIDGenerator) New() string {
	id, err := uuid.NewRandom()
	if err != nil {
		g.fallback.Store(true)
		return pseudoUUID()
	}
	return id.String()
}

// FallbackUsed reports whether any ID so far came from the pseudo-random path.
func (g *UUIDGenerator) FallbackUsed() bool { return g.fallback.Load() }

func pseudoUUID() string {
	var b [16]byte
	for i := 0; i < len(b); i += 8 {
		v := rand.Uint64()
		for j := 0; j < 8; j++ {
			b[i+j] = byte(v >> (8 * j))
		}
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant

	var out [36]byte
	hex.Encode(out[0:8], b[0:4])
	out[8] = '-'
	hex.Encode(out[9:13], b[4:6])
	out[13] = '-'
	hex.Encode(out[14:18], b[6:8])
	out[18] = '-'
	hex.Encode(out[19:23], b[8:10])
	out[23] = '-'
	hex.Encode(out[24:], b[10:])
	return string(out[:])
}
