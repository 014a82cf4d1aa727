// Package ske describes the symmetric-key block ciphers available to the
// counter-mode engine and the primitive that evaluates them.
//
// The package provides:
//   - Algorithm: the cipher selector, with block width, key size and the
//     per-key block ceiling of each cipher
//   - KeyRef: a key given either as raw bytes or as a key-slot index
//   - Primitive: single-block encryption, the only operation CTR needs
//
// Counter-mode sessions live in pkg/ctr; key slots live in pkg/keyslot.
package ske

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"strings"

	"github.com/tjfoc/gmsm/sm4"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"
	"golang.org/x/crypto/tea"
	"golang.org/x/crypto/twofish"
	"golang.org/x/crypto/xtea"
)

// Algorithm selects the block cipher used to generate the keystream.
type Algorithm int

const (
	// AlgorithmUnknown indicates an unset or invalid selector.
	AlgorithmUnknown Algorithm = iota

	AlgorithmAES128
	AlgorithmAES192
	AlgorithmAES256
	AlgorithmSM4
	AlgorithmTwofish128
	AlgorithmTwofish192
	AlgorithmTwofish256

	// AlgorithmDES is single DES. Kept for interoperability with legacy peers only.
	AlgorithmDES

	// AlgorithmTDES128 is two-key triple DES (K1, K2, K1).
	AlgorithmTDES128

	// AlgorithmTDES192 is three-key triple DES.
	AlgorithmTDES192

	AlgorithmBlowfish
	AlgorithmCAST5
	AlgorithmXTEA
	AlgorithmTEA
)

// counterSuffixMax is the widest counter suffix appended to a short IV, in bytes.
const counterSuffixMax = 4

// smallBlockCeiling bounds the blocks processed under one key for 64-bit
// block ciphers (birthday bound on the keystream).
const smallBlockCeiling = 1 << 32

type algorithmInfo struct {
	name      string
	blockSize int
	keySize   int
	newBlock  func(key []byte) (cipher.Block, error)
}

var algorithms = map[Algorithm]algorithmInfo{
	AlgorithmAES128:     {"aes128", aes.BlockSize, 16, aes.NewCipher},
	AlgorithmAES192:     {"aes192", aes.BlockSize, 24, aes.NewCipher},
	AlgorithmAES256:     {"aes256", aes.BlockSize, 32, aes.NewCipher},
	AlgorithmSM4:        {"sm4", sm4.BlockSize, 16, sm4.NewCipher},
	AlgorithmTwofish128: {"twofish128", twofish.BlockSize, 16, newTwofish},
	AlgorithmTwofish192: {"twofish192", twofish.BlockSize, 24, newTwofish},
	AlgorithmTwofish256: {"twofish256", twofish.BlockSize, 32, newTwofish},
	AlgorithmDES:        {"des", des.BlockSize, 8, des.NewCipher},
	AlgorithmTDES128:    {"tdes128", des.BlockSize, 16, newTDES2},
	AlgorithmTDES192:    {"tdes192", des.BlockSize, 24, des.NewTripleDESCipher},
	AlgorithmBlowfish:   {"blowfish", blowfish.BlockSize, 16, newBlowfish},
	AlgorithmCAST5:      {"cast5", cast5.BlockSize, cast5.KeySize, newCAST5},
	AlgorithmXTEA:       {"xtea", xtea.BlockSize, 16, newXTEA},
	AlgorithmTEA:        {"tea", tea.BlockSize, tea.KeySize, tea.NewCipher},
}

// String returns the lower-case algorithm name.
func (a Algorithm) String() string {
	if info, ok := algorithms[a]; ok {
		return info.name
	}
	return "unknown"
}

// IsValid returns true if the algorithm is a supported selector.
func (a Algorithm) IsValid() bool {
	_, ok := algorithms[a]
	return ok
}

// BlockSize returns the cipher block width in bytes, or 0 for an invalid algorithm.
func (a Algorithm) BlockSize() int {
	return algorithms[a].blockSize
}

// KeySize returns the required raw key length in bytes, or 0 for an invalid algorithm.
func (a Algorithm) KeySize() int {
	return algorithms[a].keySize
}

// MinIVSize returns the shortest IV accepted for the algorithm. Shorter IVs
// are extended with a zero big-endian counter suffix of at most 32 bits.
func (a Algorithm) MinIVSize() int {
	bs := a.BlockSize()
	if bs == 0 {
		return 0
	}
	return bs - counterSuffixMax
}

// MaxBlocks returns the number of blocks that may be processed under one key
// and IV before the counter is considered exhausted. Zero means the cipher
// defines no ceiling and the counter wraps over the full block width.
func (a Algorithm) MaxBlocks() uint64 {
	if a.BlockSize() == 8 {
		return smallBlockCeiling
	}
	return 0
}

// NewBlock expands key into a cipher.Block for the algorithm.
func (a Algorithm) NewBlock(key []byte) (cipher.Block, error) {
	info, ok := algorithms[a]
	if !ok {
		return nil, ErrInvalidAlgorithm
	}
	if len(key) != info.keySize {
		return nil, ErrInvalidParameter
	}
	return info.newBlock(key)
}

// ParseAlgorithm returns the algorithm with the given name (case-insensitive).
// "aes" is accepted as an alias for aes128.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "aes" {
		return AlgorithmAES128, nil
	}
	for a, info := range algorithms {
		if info.name == name {
			return a, nil
		}
	}
	return AlgorithmUnknown, ErrInvalidAlgorithm
}

// Algorithms returns all supported algorithms in selector order.
func Algorithms() []Algorithm {
	out := make([]Algorithm, 0, len(algorithms))
	for a := AlgorithmAES128; a <= AlgorithmTEA; a++ {
		if a.IsValid() {
			out = append(out, a)
		}
	}
	return out
}

func newTwofish(key []byte) (cipher.Block, error) {
	return twofish.NewCipher(key)
}

func newBlowfish(key []byte) (cipher.Block, error) {
	return blowfish.NewCipher(key)
}

func newCAST5(key []byte) (cipher.Block, error) {
	return cast5.NewCipher(key)
}

func newXTEA(key []byte) (cipher.Block, error) {
	return xtea.NewCipher(key)
}

// newTDES2 expands a two-key triple DES key to K1 || K2 || K1.
func newTDES2(key []byte) (cipher.Block, error) {
	var k [24]byte
	copy(k[:16], key)
	copy(k[16:], key[:8])
	return des.NewTripleDESCipher(k[:])
}
