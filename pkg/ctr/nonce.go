package ctr

import (
	"fmt"
	"math"

	"github.com/backkem/ske/pkg/ske"
)

// Nonce counter blocks use the CCM formatting of NIST SP 800-38C A.3:
//
//	flags (q-1) || nonce (15-q bytes) || counter (q bytes, big-endian)
const (
	// MinNonceSize is the shortest nonce (q = 8).
	MinNonceSize = 7

	// MaxNonceSize is the longest nonce (q = 2).
	MaxNonceSize = 13

	nonceBlockSize = 16
)

// NonceBlock returns the 16-byte counter block for nonce with the counter
// field set to start.
func NonceBlock(nonce []byte, start uint64) ([]byte, error) {
	if len(nonce) < MinNonceSize || len(nonce) > MaxNonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d to %d bytes, got %d",
			ske.ErrInvalidParameter, MinNonceSize, MaxNonceSize, len(nonce))
	}
	q := nonceBlockSize - 1 - len(nonce)
	if q < 8 && start >= 1<<(8*q) {
		return nil, fmt.Errorf("%w: start %d does not fit a %d-byte counter", ske.ErrInvalidParameter, start, q)
	}

	block := make([]byte, nonceBlockSize)
	block[0] = byte(q - 1)
	copy(block[1:], nonce)
	for i := nonceBlockSize - 1; i > len(nonce); i-- {
		block[i] = byte(start)
		start >>= 8
	}
	return block, nil
}

// InitNonce returns a session on a 128-bit block cipher whose counter block
// is formatted from nonce and counts from 1, leaving counter 0 free as CCM
// does. The session fails with ske.ErrCounterExhausted at the end of the
// counter field rather than carrying into the nonce.
func (e *Engine) InitNonce(alg ske.Algorithm, dir ske.Direction, key ske.KeyRef, nonce []byte) (*Session, error) {
	if !alg.IsValid() {
		return nil, ske.ErrInvalidAlgorithm
	}
	if alg.BlockSize() != nonceBlockSize {
		return nil, fmt.Errorf("%w: nonce counter blocks need a 16-byte block cipher, %s has %d",
			ske.ErrInvalidParameter, alg, alg.BlockSize())
	}

	iv, err := NonceBlock(nonce, 1)
	if err != nil {
		return nil, err
	}
	limit := uint64(math.MaxUint64)
	if q := nonceBlockSize - 1 - len(nonce); q < 8 {
		limit = 1<<(8*q) - 1
	}

	s := e.NewSession()
	if err := s.init(alg, dir, key, iv, limit); err != nil {
		return nil, err
	}
	return s, nil
}
