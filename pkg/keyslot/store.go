// Package keyslot emulates a secure key-slot bank. Keys are written into
// numbered slots and referenced by index afterwards, so sessions never hold
// the key bytes themselves.
package keyslot

import (
	"crypto/sha256"
	"errors"
	"io"
	"sync"

	"github.com/backkem/ske/pkg/ske"
	"golang.org/x/crypto/hkdf"
)

// DefaultCapacity is the default number of occupied slots a Store allows.
const DefaultCapacity = 16

// MaxKeySize is the largest key a slot can hold (AES-256).
const MaxKeySize = 32

// Store errors.
var (
	// ErrInvalidSlot is returned for slot 0 or indices above ske.MaxSlotIndex.
	ErrInvalidSlot = errors.New("keyslot: invalid slot index")

	// ErrSlotEmpty is returned when looking up a slot that holds no key.
	ErrSlotEmpty = errors.New("keyslot: slot empty")

	// ErrStoreFull is returned when all slots are occupied.
	ErrStoreFull = errors.New("keyslot: store full")

	// ErrInvalidKey is returned for empty or oversized keys.
	ErrInvalidKey = errors.New("keyslot: invalid key length")
)

// Store holds key material by slot index. It is safe for concurrent use.
// Keys are copied in and out; Clear zeroizes the stored copy.
type Store struct {
	slots    map[ske.SlotIndex][]byte
	capacity int

	mu sync.RWMutex
}

// NewStore creates an empty store. capacity <= 0 uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		slots:    make(map[ske.SlotIndex][]byte),
		capacity: capacity,
	}
}

// Set writes a copy of key into slot, replacing (and zeroizing) any previous key.
func (s *Store) Set(slot ske.SlotIndex, key []byte) error {
	if !slot.IsValid() {
		return ErrInvalidSlot
	}
	if len(key) == 0 || len(key) > MaxKeySize {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.slots[slot]
	if !exists && len(s.slots) >= s.capacity {
		return ErrStoreFull
	}
	if exists {
		ske.Zeroize(old)
	}
	s.slots[slot] = append([]byte(nil), key...)
	return nil
}

// Derive fills slot with length bytes of HKDF-SHA256 output from secret,
// salt and info. The derived key never leaves the store.
func (s *Store) Derive(slot ske.SlotIndex, secret, salt, info []byte, length int) error {
	if length <= 0 || length > MaxKeySize {
		return ErrInvalidKey
	}
	key := make([]byte, length)
	defer ske.Zeroize(key)

	reader := hkdf.New(sha256.New, secret, salt, info)
	if _, err := io.ReadFull(reader, key); err != nil {
		return err
	}
	return s.Set(slot, key)
}

// Lookup implements ske.KeyStore. The returned slice is a copy.
func (s *Store) Lookup(slot ske.SlotIndex) ([]byte, error) {
	if !slot.IsValid() {
		return nil, ErrInvalidSlot
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.slots[slot]
	if !ok {
		return nil, ErrSlotEmpty
	}
	return append([]byte(nil), key...), nil
}

// Clear zeroizes and removes the key in slot. Clearing an empty slot is a no-op.
func (s *Store) Clear(slot ske.SlotIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.slots[slot]; ok {
		ske.Zeroize(key)
		delete(s.slots, slot)
	}
}

// ClearAll zeroizes every slot.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slot, key := range s.slots {
		ske.Zeroize(key)
		delete(s.slots, slot)
	}
}

// Len returns the number of occupied slots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
