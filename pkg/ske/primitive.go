package ske

import (
	"crypto/cipher"
	"fmt"
	"sync"

	"github.com/pion/logging"
)

// Primitive encrypts a single block. It must be deterministic and must not
// retain dst or src. dst and src are exactly alg.BlockSize() bytes and may
// alias.
type Primitive interface {
	EncryptBlock(alg Algorithm, key KeyRef, dst, src []byte) error
}

// Expander is implemented by primitives that can schedule a raw key once and
// hand back a reusable block. Sessions keyed by RawKey use it when available;
// slot-backed sessions always go through EncryptBlock.
type Expander interface {
	Expand(alg Algorithm, key RawKey) (cipher.Block, error)
}

// SlotChecker is implemented by primitives that can confirm a slot holds a
// key of the right size for alg without running the cipher. Sessions call it
// at Init so a bad slot fails there instead of at the first block.
type SlotChecker interface {
	CheckSlot(alg Algorithm, slot SlotIndex) error
}

// SoftwareConfig configures the software primitive.
type SoftwareConfig struct {
	// KeyStore resolves SlotIndex keys. If nil, slot references fail with
	// ErrPrimitiveFailure.
	KeyStore KeyStore

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Software evaluates the block ciphers in Go. It is safe for concurrent use.
type Software struct {
	keys KeyStore
	log  logging.LeveledLogger
}

// NewSoftware creates a software primitive.
func NewSoftware(config SoftwareConfig) *Software {
	s := &Software{keys: config.KeyStore}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("ske-primitive")
	}
	return s
}

// EncryptBlock implements Primitive.
func (s *Software) EncryptBlock(alg Algorithm, key KeyRef, dst, src []byte) error {
	if !alg.IsValid() {
		return ErrInvalidAlgorithm
	}
	bs := alg.BlockSize()
	if len(src) != bs || len(dst) != bs {
		return fmt.Errorf("%w: block must be %d bytes", ErrInvalidParameter, bs)
	}

	var material []byte
	switch k := key.(type) {
	case RawKey:
		material = k
	case SlotIndex:
		if s.keys == nil {
			return fmt.Errorf("%w: no key store for %s", ErrPrimitiveFailure, k)
		}
		m, err := s.keys.Lookup(k)
		if err != nil {
			if s.log != nil {
				s.log.Warnf("key lookup for %s failed: %v", k, err)
			}
			return fmt.Errorf("%w: %v", ErrPrimitiveFailure, err)
		}
		defer Zeroize(m)
		material = m
	default:
		return fmt.Errorf("%w: missing key reference", ErrInvalidParameter)
	}

	block, err := alg.NewBlock(material)
	if err != nil {
		return fmt.Errorf("%w: %s key schedule: %v", ErrPrimitiveFailure, alg, err)
	}
	block.Encrypt(dst, src)
	return nil
}

// CheckSlot implements SlotChecker. Without a KeyStore nothing can be
// checked and the slot is left to fail at EncryptBlock.
func (s *Software) CheckSlot(alg Algorithm, slot SlotIndex) error {
	if !alg.IsValid() {
		return ErrInvalidAlgorithm
	}
	if s.keys == nil {
		return nil
	}
	m, err := s.keys.Lookup(slot)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidParameter, slot, err)
	}
	defer Zeroize(m)
	if len(m) != alg.KeySize() {
		return fmt.Errorf("%w: %s holds a %d-byte key, %s needs %d", ErrInvalidParameter, slot, len(m), alg, alg.KeySize())
	}
	return nil
}

// Expand implements Expander.
func (s *Software) Expand(alg Algorithm, key RawKey) (cipher.Block, error) {
	block, err := alg.NewBlock(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s key schedule: %v", ErrPrimitiveFailure, alg, err)
	}
	return block, nil
}

// serialized guards a primitive shared by all sessions, such as a single
// hardware accelerator, with one critical section.
type serialized struct {
	mu    sync.Mutex
	inner Primitive
}

// Serialize wraps p so that every block operation, including those made
// through blocks obtained from Expand, runs under one global lock.
func Serialize(p Primitive) Primitive {
	return &serialized{inner: p}
}

func (s *serialized) EncryptBlock(alg Algorithm, key KeyRef, dst, src []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.EncryptBlock(alg, key, dst, src)
}

// Expand forwards to the wrapped primitive when it supports expansion.
// Sessions fall back to EncryptBlock when ErrExpandUnsupported is returned.
func (s *serialized) Expand(alg Algorithm, key RawKey) (cipher.Block, error) {
	exp, ok := s.inner.(Expander)
	if !ok {
		return nil, ErrExpandUnsupported
	}
	s.mu.Lock()
	block, err := exp.Expand(alg, key)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &lockedBlock{mu: &s.mu, b: block}, nil
}

type lockedBlock struct {
	mu *sync.Mutex
	b  cipher.Block
}

func (l *lockedBlock) BlockSize() int { return l.b.BlockSize() }

func (l *lockedBlock) Encrypt(dst, src []byte) {
	l.mu.Lock()
	l.b.Encrypt(dst, src)
	l.mu.Unlock()
}

func (l *lockedBlock) Decrypt(dst, src []byte) {
	l.mu.Lock()
	l.b.Decrypt(dst, src)
	l.mu.Unlock()
}
