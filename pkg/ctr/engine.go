// Package ctr implements counter (CTR) mode streaming over a pluggable block
// cipher primitive.
//
// The package provides:
//   - Counter block derivation and big-endian increment
//   - Session: init/update/final streaming with partial-block buffering
//   - DMAStream: asynchronous word transfers with completion callbacks,
//     sharing the session's counter with the synchronous path
//   - Controller: a software DMA transfer service
//
// Sessions are created from an Engine, whose Capabilities select the
// synchronous-only or the full (sync+DMA) engine.
package ctr

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/backkem/ske/pkg/ske"
	"github.com/pion/logging"
)

// Capabilities selects the execution paths an Engine offers.
type Capabilities uint8

const (
	// CapabilitySync enables Session Init/Update/Final. Always implied.
	CapabilitySync Capabilities = 1 << iota

	// CapabilityDMA enables DMAStream transfers through a Transfer service.
	CapabilityDMA
)

// Has returns true if every capability in c2 is present in c.
func (c Capabilities) Has(c2 Capabilities) bool {
	return c&c2 == c2
}

// String returns the capability names joined by "|".
func (c Capabilities) String() string {
	var parts []string
	if c.Has(CapabilitySync) {
		parts = append(parts, "sync")
	}
	if c.Has(CapabilityDMA) {
		parts = append(parts, "dma")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Primitive evaluates single blocks.
	// Default: ske.NewSoftware without a key store.
	Primitive ske.Primitive

	// Capabilities selects the execution paths. CapabilitySync is always added.
	Capabilities Capabilities

	// Transfer is the DMA transfer service. Required with CapabilityDMA.
	Transfer Transfer

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Engine creates counter-mode sessions bound to one primitive and, with
// CapabilityDMA, routes transfer completions back to their streams.
type Engine struct {
	prim     ske.Primitive
	caps     Capabilities
	transfer Transfer
	log      logging.LeveledLogger
	dmaLog   logging.LeveledLogger

	streams    map[Handle]*DMAStream
	nextHandle Handle

	mu sync.Mutex
}

// NewEngine creates an engine.
func NewEngine(config EngineConfig) (*Engine, error) {
	caps := config.Capabilities | CapabilitySync
	if caps.Has(CapabilityDMA) && config.Transfer == nil {
		return nil, ErrNoTransfer
	}

	prim := config.Primitive
	if prim == nil {
		prim = ske.NewSoftware(ske.SoftwareConfig{LoggerFactory: config.LoggerFactory})
	}

	e := &Engine{
		prim:     prim,
		caps:     caps,
		transfer: config.Transfer,
		streams:  make(map[Handle]*DMAStream),
	}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("ctr-engine")
		e.dmaLog = config.LoggerFactory.NewLogger("ctr-dma")
	}
	return e, nil
}

// Capabilities returns the engine's execution paths.
func (e *Engine) Capabilities() Capabilities {
	return e.caps
}

// NewSession returns an uninitialized session bound to the engine's primitive.
func (e *Engine) NewSession() *Session {
	return newSession(e.prim, e.log)
}

// Init returns a new session initialized for alg, key and iv.
func (e *Engine) Init(alg ske.Algorithm, dir ske.Direction, key ske.KeyRef, iv []byte) (*Session, error) {
	s := e.NewSession()
	if err := s.Init(alg, dir, key, iv); err != nil {
		return nil, err
	}
	return s, nil
}

// OneShot runs Init, Update over all of in, and Final, returning the
// concatenated output.
func (e *Engine) OneShot(alg ske.Algorithm, dir ske.Direction, key ske.KeyRef, iv, in []byte) ([]byte, error) {
	s, err := e.Init(alg, dir, key, iv)
	if err != nil {
		return nil, err
	}

	out, err := s.Update(in)
	if err != nil {
		s.Final()
		return nil, err
	}
	tail, err := s.Final()
	if err != nil {
		return nil, err
	}
	return append(out, tail...), nil
}

// OneShot is Engine.OneShot on a synchronous engine over prim.
func OneShot(prim ske.Primitive, alg ske.Algorithm, dir ske.Direction, key ske.KeyRef, iv, in []byte) ([]byte, error) {
	e, err := NewEngine(EngineConfig{Primitive: prim})
	if err != nil {
		return nil, err
	}
	return e.OneShot(alg, dir, key, iv, in)
}

// OneShotDMA encrypts or decrypts words through the DMA path and waits for
// completion or ctx. Words that do not fill a whole block are processed by
// the synchronous path after the transfer, on the same counter progression.
func (e *Engine) OneShotDMA(ctx context.Context, alg ske.Algorithm, dir ske.Direction, key ske.KeyRef, iv []byte, src []uint32) ([]uint32, error) {
	if !e.caps.Has(CapabilityDMA) {
		return nil, ErrDMAUnsupported
	}

	s, err := e.Init(alg, dir, key, iv)
	if err != nil {
		return nil, err
	}
	defer s.Final()

	dst := make([]uint32, len(src))
	wordsPerBlock := alg.BlockSize() / WordSize
	bulk := len(src) / wordsPerBlock * wordsPerBlock

	if bulk > 0 {
		done := make(chan Result, 1)
		stream, err := e.NewDMAStream(s, DMAStreamConfig{
			Callback: func(r Result) { done <- r },
		})
		if err != nil {
			return nil, err
		}
		defer stream.Close()

		if err := stream.Submit(Request{Src: src, Dst: dst, Words: bulk}); err != nil {
			return nil, err
		}
		select {
		case r := <-done:
			if r.Err != nil {
				return nil, r.Err
			}
		case <-ctx.Done():
			stream.Abandon()
			return nil, ctx.Err()
		}
		if err := stream.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if bulk == len(src) {
		return dst, nil
	}

	tail := WordsToBytes(src[bulk:])
	out, err := s.Update(tail)
	if err != nil {
		return nil, err
	}
	rest, err := s.Final()
	if err != nil {
		return nil, err
	}
	out = append(out, rest...)
	if len(out) != len(tail) {
		return nil, fmt.Errorf("%w: tail produced %d of %d bytes", ske.ErrPrimitiveFailure, len(out), len(tail))
	}
	BytesToWords(dst[bulk:], out)
	return dst, nil
}

// WordsToBytes serializes words little-endian, the DMA wire order.
func WordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*WordSize)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*WordSize:], w)
	}
	return b
}

// BytesToWords fills dst from little-endian b, which must hold at least
// len(dst)*WordSize bytes.
func BytesToWords(dst []uint32, b []byte) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(b[i*WordSize:])
	}
}
