package ctr

import (
	"crypto/cipher"
	"errors"
	"fmt"
	"sync"

	"github.com/backkem/ske/pkg/ske"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/utils/xor"
)

// Session is the state of one counter-mode stream under one key and IV.
//
// Update emits output only for complete blocks; trailing bytes are held until
// a later Update completes the block or Final flushes them. Output across all
// Update and Final calls always equals the input length, in order.
//
// A Session must not be driven from two goroutines at once. The internal lock
// only orders the caller against an in-flight DMA transfer.
type Session struct {
	prim ske.Primitive
	log  logging.LeveledLogger

	alg     ske.Algorithm
	dir     ske.Direction
	key     ske.KeyRef
	block   cipher.Block // expanded raw key; nil for slot-backed keys
	counter []byte
	scratch []byte
	stream  []byte // one keystream block
	buf     []byte // buffered input, always shorter than one block

	blocks  uint64
	ceiling uint64

	initialized bool
	poisoned    bool
	inflight    bool
	executed    bool
	transferGen uint64

	mu sync.Mutex
}

func newSession(prim ske.Primitive, log logging.LeveledLogger) *Session {
	return &Session{prim: prim, log: log}
}

// Init (re)starts the session for alg, key and iv. Any previous state is
// zeroized first. Raw keys are copied; slot keys are referenced.
func (s *Session) Init(alg ske.Algorithm, dir ske.Direction, key ske.KeyRef, iv []byte) error {
	return s.init(alg, dir, key, iv, 0)
}

// init is Init with an extra block limit; zero leaves the IV-derived ceiling.
func (s *Session) init(alg ske.Algorithm, dir ske.Direction, key ske.KeyRef, iv []byte, limit uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight {
		return ske.ErrRequestInFlight
	}
	if !alg.IsValid() {
		return ske.ErrInvalidAlgorithm
	}
	if !dir.IsValid() {
		return fmt.Errorf("%w: direction %d", ske.ErrInvalidParameter, dir)
	}
	if err := ske.ValidateKey(alg, key); err != nil {
		return err
	}
	if slot, ok := key.(ske.SlotIndex); ok {
		if c, ok := s.prim.(ske.SlotChecker); ok {
			if err := c.CheckSlot(alg, slot); err != nil {
				return err
			}
		}
	}
	counter, err := DeriveInitial(iv, alg)
	if err != nil {
		return err
	}

	s.wipe()

	if raw, ok := key.(ske.RawKey); ok {
		owned := ske.RawKey(append([]byte(nil), raw...))
		if exp, ok := s.prim.(ske.Expander); ok {
			block, err := exp.Expand(alg, owned)
			switch {
			case err == nil:
				s.block = block
			case errors.Is(err, ske.ErrExpandUnsupported):
			default:
				ske.Zeroize(owned)
				return err
			}
		}
		s.key = owned
	} else {
		s.key = key
	}

	bs := alg.BlockSize()
	s.alg = alg
	s.dir = dir
	s.counter = counter
	s.scratch = make([]byte, bs)
	s.stream = make([]byte, bs)
	s.buf = make([]byte, 0, bs)
	s.ceiling = blockCeiling(alg, len(iv))
	if limit != 0 && (s.ceiling == 0 || limit < s.ceiling) {
		s.ceiling = limit
	}
	s.initialized = true

	if s.log != nil {
		s.log.Debugf("init %s %s key=%s iv=%d bytes ceiling=%d", alg, dir, s.key, len(iv), s.ceiling)
	}
	return nil
}

// Update consumes in and returns the output for every block completed by it.
// Bytes that do not complete a block are buffered and produce no output yet.
// On error nothing is consumed and the counter does not move.
func (s *Session) Update(in []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return []byte{}, nil
	}

	bs := s.alg.BlockSize()
	held := len(s.buf)
	full := (held + len(in)) / bs * bs
	if full == 0 {
		s.buf = append(s.buf, in...)
		return []byte{}, nil
	}

	consumed := full - held
	src := make([]byte, full)
	copy(src, s.buf)
	copy(src[held:], in[:consumed])

	out := make([]byte, full)
	if err := s.apply(out, src); err != nil {
		return nil, err
	}

	ske.Zeroize(s.buf)
	s.buf = append(s.buf[:0], in[consumed:]...)
	return out, nil
}

// Final flushes the buffered bytes XORed with a keystream prefix of the same
// length, then zeroizes the counter, buffer and key copy. Calling Final on a
// session that is not initialized returns an empty result. State is cleared
// even when the flush fails.
func (s *Session) Final() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight {
		return nil, ske.ErrRequestInFlight
	}
	if !s.initialized {
		return []byte{}, nil
	}
	defer s.wipe()

	if s.poisoned {
		return nil, ErrSessionPoisoned
	}

	out := make([]byte, len(s.buf))
	if len(s.buf) > 0 {
		if err := s.apply(out, s.buf); err != nil {
			return nil, err
		}
	}

	if s.log != nil {
		s.log.Debugf("final %s after %d blocks", s.alg, s.blocks)
	}
	return out, nil
}

// Algorithm returns the algorithm selected at Init.
func (s *Session) Algorithm() ske.Algorithm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alg
}

// Direction returns the direction selected at Init.
func (s *Session) Direction() ske.Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Initialized reports whether the session is between Init and Final.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Poisoned reports whether a primitive failure has disabled the session.
func (s *Session) Poisoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned
}

// Counter returns a copy of the counter block for the next keystream block.
func (s *Session) Counter() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.counter...)
}

// Buffered returns the number of input bytes held back, which is also the
// byte offset within the current block.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// BlocksProcessed returns the number of keystream blocks consumed since Init.
func (s *Session) BlocksProcessed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks
}

// usable reports why the session cannot process data, if it cannot.
// Caller must hold s.mu.
func (s *Session) usable() error {
	switch {
	case !s.initialized:
		return ske.ErrSessionNotInitialized
	case s.poisoned:
		return ErrSessionPoisoned
	case s.inflight:
		return ske.ErrRequestInFlight
	}
	return nil
}

// reserve checks that n more blocks fit under the ceiling.
// Caller must hold s.mu.
func (s *Session) reserve(n uint64) error {
	if s.ceiling != 0 && (n > s.ceiling || s.blocks > s.ceiling-n) {
		return fmt.Errorf("%w: %d of %d blocks used", ske.ErrCounterExhausted, s.blocks, s.ceiling)
	}
	return nil
}

// apply XORs src with keystream into dst, starting at the session counter.
// The last block may be partial and still consumes a whole counter value.
// The counter is committed only if every block succeeds; a primitive failure
// poisons the session. Caller must hold s.mu.
func (s *Session) apply(dst, src []byte) error {
	bs := s.alg.BlockSize()
	n := uint64((len(src) + bs - 1) / bs)
	if err := s.reserve(n); err != nil {
		return err
	}

	ctr := s.scratch
	copy(ctr, s.counter)
	for off := 0; off < len(src); off += bs {
		if err := s.keystream(ctr); err != nil {
			s.poisoned = true
			if s.log != nil {
				s.log.Warnf("%s keystream block %d failed: %v", s.alg, s.blocks+uint64(off/bs), err)
			}
			return err
		}
		xor.XorBytes(dst[off:], src[off:], s.stream)
		Increment(ctr)
	}

	copy(s.counter, ctr)
	s.blocks += n
	return nil
}

// keystream encrypts ctr into s.stream.
func (s *Session) keystream(ctr []byte) error {
	if s.block != nil {
		s.block.Encrypt(s.stream, ctr)
		return nil
	}
	err := s.prim.EncryptBlock(s.alg, s.key, s.stream, ctr)
	if err != nil && !errors.Is(err, ske.ErrPrimitiveFailure) {
		err = fmt.Errorf("%w: %v", ske.ErrPrimitiveFailure, err)
	}
	return err
}

// wipe zeroizes all keystream-affecting state. Caller must hold s.mu.
func (s *Session) wipe() {
	ske.Zeroize(s.counter)
	ske.Zeroize(s.scratch)
	ske.Zeroize(s.stream)
	ske.Zeroize(s.buf[:cap(s.buf)])
	if raw, ok := s.key.(ske.RawKey); ok {
		ske.Zeroize(raw)
	}
	s.counter = nil
	s.scratch = nil
	s.stream = nil
	s.buf = nil
	s.key = nil
	s.block = nil
	s.alg = ske.AlgorithmUnknown
	s.dir = ske.DirectionEncrypt
	s.blocks = 0
	s.ceiling = 0
	s.initialized = false
	s.poisoned = false
}

// beginTransfer reserves the session for a DMA transfer of n bytes.
func (s *Session) beginTransfer(n int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return 0, err
	}
	bs := s.alg.BlockSize()
	if len(s.buf) != 0 {
		return 0, fmt.Errorf("%w: %d sync bytes buffered, DMA must start on a block boundary", ske.ErrInvalidParameter, len(s.buf))
	}
	if n <= 0 || n%bs != 0 {
		return 0, fmt.Errorf("%w: DMA length %d is not a multiple of the %d-byte block", ske.ErrInvalidParameter, n, bs)
	}
	if err := s.reserve(uint64(n / bs)); err != nil {
		return 0, err
	}

	s.inflight = true
	s.executed = false
	s.transferGen++
	return s.transferGen, nil
}

// runTransfer performs the keystream XOR for the transfer identified by gen.
// Stale transfers (abandoned or superseded) leave the session untouched.
func (s *Session) runTransfer(gen uint64, dst, src []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inflight || s.transferGen != gen {
		return ErrStaleTransfer
	}
	if err := s.apply(dst, src); err != nil {
		return err
	}
	s.executed = true
	return nil
}

// completeTransfer releases the reservation for gen with the reported
// outcome. A success reported for a transfer that never executed becomes
// ErrNotExecuted. Any failure poisons the session.
func (s *Session) completeTransfer(gen uint64, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transferGen != gen || !s.inflight {
		return err
	}
	if err == nil && !s.executed {
		err = ErrNotExecuted
	}
	s.inflight = false
	if err != nil && s.initialized {
		s.poisoned = true
	}
	return err
}

// endTransfer releases the DMA reservation. A transfer that reported a fault
// poisons the session.
func (s *Session) endTransfer(gen uint64, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transferGen != gen {
		return
	}
	s.inflight = false
	if failed && s.initialized {
		s.poisoned = true
	}
}
