package codec

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
)

// NonceSize is the AEAD nonce width shared by AES-256-GCM and
// ChaCha20-Poly1305.
const NonceSize = 12

type Nonce [NonceSize]byte

// ErrNonceExhausted is returned when a single file produces more blocks
// than the per-file counter can number.
var ErrNonceExhausted = errors.New("nonce counter exhausted")

// NonceSeq issues the nonce sequence for one file's blocks: the 8-byte
// fileset key followed by a 4-byte block counter. Fileset keys come
// from a store-wide counter and are never reused, so no two blocks
// encrypted under the same store key share a nonce. Safe for
// concurrent use.
type NonceSeq struct {
	prefix  [8]byte
	counter uint32
}

func NewNonceSeq(fileKey uint64) *NonceSeq {
	seq := &NonceSeq{}
	binary.BigEndian.PutUint64(seq.prefix[:], fileKey)
	return seq
}

// Next returns the next nonce in the sequence.
func (s *NonceSeq) Next() (Nonce, error) {
	n := atomic.AddUint32(&s.counter, 1)
	if n == 0 {
		return Nonce{}, ErrNonceExhausted
	}
	var nonce Nonce
	copy(nonce[:8], s.prefix[:])
	binary.BigEndian.PutUint32(nonce[8:], n)
	return nonce, nil
}
