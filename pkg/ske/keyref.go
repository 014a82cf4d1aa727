package ske

import "fmt"

// MaxSlotIndex is the highest addressable key slot.
const MaxSlotIndex SlotIndex = 0x7FFF

// KeyRef identifies the key a session encrypts under. It is either a RawKey,
// whose bytes are held by the session, or a SlotIndex naming key material held
// by a KeyStore. The interface is sealed to those two variants.
type KeyRef interface {
	isKeyRef()
	String() string
}

// RawKey is key material passed by value.
type RawKey []byte

// SlotIndex references a key slot. Slot 0 is reserved and never valid.
type SlotIndex uint16

func (RawKey) isKeyRef()    {}
func (SlotIndex) isKeyRef() {}

// String never includes key bytes.
func (k RawKey) String() string {
	return fmt.Sprintf("raw(%d bytes)", len(k))
}

func (s SlotIndex) String() string {
	return fmt.Sprintf("slot(%d)", uint16(s))
}

// IsValid returns true if the index addresses a usable slot.
func (s SlotIndex) IsValid() bool {
	return s != 0 && s <= MaxSlotIndex
}

// KeyStore resolves key slots to key material. Implementations must return a
// copy that the caller may zeroize.
type KeyStore interface {
	Lookup(slot SlotIndex) ([]byte, error)
}

// ValidateKey checks that key is usable with alg: raw keys must match the
// algorithm key size and slot references must be in range.
func ValidateKey(alg Algorithm, key KeyRef) error {
	if !alg.IsValid() {
		return ErrInvalidAlgorithm
	}
	switch k := key.(type) {
	case RawKey:
		if len(k) != alg.KeySize() {
			return fmt.Errorf("%w: %s key must be %d bytes, got %d", ErrInvalidParameter, alg, alg.KeySize(), len(k))
		}
	case SlotIndex:
		if !k.IsValid() {
			return fmt.Errorf("%w: key slot %d out of range", ErrInvalidParameter, uint16(k))
		}
	default:
		return fmt.Errorf("%w: missing key reference", ErrInvalidParameter)
	}
	return nil
}

// Zeroize overwrites b with zeros.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
