package ctr

import (
	"fmt"

	"github.com/backkem/ske/pkg/ske"
)

// DeriveInitial builds the first counter block for alg from iv.
//
// An IV of the full block width is used as-is. An IV of at least
// alg.MinIVSize() bytes is followed by a zero big-endian counter suffix
// filling the rest of the block. Any other length fails with
// ske.ErrInvalidParameter.
func DeriveInitial(iv []byte, alg ske.Algorithm) ([]byte, error) {
	if !alg.IsValid() {
		return nil, ske.ErrInvalidAlgorithm
	}
	bs := alg.BlockSize()
	if len(iv) > bs || len(iv) < alg.MinIVSize() {
		return nil, fmt.Errorf("%w: %s IV must be %d..%d bytes, got %d",
			ske.ErrInvalidParameter, alg, alg.MinIVSize(), bs, len(iv))
	}

	block := make([]byte, bs)
	copy(block, iv)
	return block, nil
}

// Increment adds one to block as a big-endian integer, wrapping to zero
// after the all-ones value.
func Increment(block []byte) {
	for i := len(block) - 1; i >= 0; i-- {
		block[i]++
		if block[i] != 0 {
			break
		}
	}
}

// blockCeiling returns how many blocks a session may process with the given
// algorithm and IV length, or 0 when unbounded. A short IV limits the
// keystream to the range of its counter suffix, so the suffix never carries
// into the IV bytes.
func blockCeiling(alg ske.Algorithm, ivLen int) uint64 {
	ceiling := alg.MaxBlocks()
	suffix := alg.BlockSize() - ivLen
	if suffix > 0 {
		limit := uint64(1) << (8 * uint(suffix))
		if ceiling == 0 || limit < ceiling {
			ceiling = limit
		}
	}
	return ceiling
}
