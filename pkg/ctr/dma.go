package ctr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/backkem/ske/pkg/ske"
)

// WordSize is the DMA transfer granularity in bytes.
const WordSize = 4

// Handle identifies a DMA stream in completion notifications.
type Handle uint32

// DMAState is the transfer state of a DMA stream.
type DMAState int

const (
	// DMAIdle indicates no transfer is pending; Submit is allowed.
	DMAIdle DMAState = iota

	// DMASubmitted indicates a transfer was accepted and has not completed.
	DMASubmitted

	// DMACompleted indicates the transfer finished and its callback is running.
	DMACompleted
)

// String returns a human-readable name for the state.
func (s DMAState) String() string {
	switch s {
	case DMAIdle:
		return "Idle"
	case DMASubmitted:
		return "Submitted"
	case DMACompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// Result reports the outcome of one transfer.
type Result struct {
	// Handle is the stream the transfer belonged to.
	Handle Handle

	// Words is the number of words transferred. Zero on failure.
	Words int

	// Err is nil on success, otherwise wraps ske.ErrPrimitiveFailure.
	Err error
}

// Callback receives transfer results. It runs on the transfer service's
// goroutine and must not block. Submit from inside the callback fails with
// ske.ErrRequestInFlight because the stream is still Completed.
type Callback func(Result)

// Request describes one transfer. Src and Dst hold little-endian words;
// Words*WordSize must be a multiple of the cipher block width. Dst may be
// the same slice as Src.
type Request struct {
	Src   []uint32
	Dst   []uint32
	Words int

	// Callback overrides the stream's registered callback for this request.
	Callback Callback
}

// Descriptor is the unit of work handed to a Transfer service.
type Descriptor struct {
	Handle Handle
	Src    []uint32
	Dst    []uint32
	Words  int

	session *Session
	gen     uint64
	ran     atomic.Bool
}

// Execute runs the keystream XOR from Src to Dst on the session's counter.
// It returns the number of words written. A descriptor executes at most once.
func (d *Descriptor) Execute() (int, error) {
	if !d.ran.CompareAndSwap(false, true) {
		return 0, fmt.Errorf("%w: descriptor already executed", ske.ErrInvalidParameter)
	}

	src := WordsToBytes(d.Src[:d.Words])
	dst := make([]byte, len(src))
	if err := d.session.runTransfer(d.gen, dst, src); err != nil {
		return 0, err
	}
	BytesToWords(d.Dst[:d.Words], dst)
	return d.Words, nil
}

// Transfer is the DMA transfer service consumed by the engine. Enqueue
// accepts a descriptor and must later call notify exactly once with the
// result, on any goroutine. If Enqueue returns an error the descriptor was
// not accepted and notify must never be called.
type Transfer interface {
	Enqueue(d *Descriptor, notify func(Result)) error
}

// DMAStreamConfig configures a DMA stream.
type DMAStreamConfig struct {
	// Callback is the registered completion handler, used for requests
	// that carry no callback of their own.
	Callback Callback
}

// DMAStream drives a Session through the Transfer service. At most one
// transfer is in flight per stream.
type DMAStream struct {
	engine   *Engine
	session  *Session
	handle   Handle
	callback Callback

	mu      sync.Mutex
	state   DMAState
	pending Callback
	gen     uint64
	idle    chan struct{}
	closed  bool
}

// NewDMAStream attaches a DMA stream to s. The session stays usable from the
// synchronous path between transfers and shares one counter progression.
func (e *Engine) NewDMAStream(s *Session, config DMAStreamConfig) (*DMAStream, error) {
	if !e.caps.Has(CapabilityDMA) {
		return nil, ErrDMAUnsupported
	}
	if s == nil {
		return nil, fmt.Errorf("%w: nil session", ske.ErrInvalidParameter)
	}

	idle := make(chan struct{})
	close(idle)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextHandle++
	if e.nextHandle == 0 {
		e.nextHandle++
	}
	for e.streams[e.nextHandle] != nil {
		e.nextHandle++
	}

	st := &DMAStream{
		engine:   e,
		session:  s,
		handle:   e.nextHandle,
		callback: config.Callback,
		idle:     idle,
	}
	e.streams[st.handle] = st
	return st, nil
}

// Handle returns the stream's notification handle.
func (st *DMAStream) Handle() Handle {
	return st.handle
}

// Session returns the session the stream drives.
func (st *DMAStream) Session() *Session {
	return st.session
}

// State returns the current transfer state.
func (st *DMAStream) State() DMAState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Submit hands req to the transfer service and returns without waiting.
// It fails with ske.ErrRequestInFlight unless the stream is Idle.
func (st *DMAStream) Submit(req Request) error {
	cb := req.Callback
	if cb == nil {
		cb = st.callback
	}
	switch {
	case cb == nil:
		return fmt.Errorf("%w: no completion callback", ske.ErrInvalidParameter)
	case req.Words <= 0 || len(req.Src) < req.Words || len(req.Dst) < req.Words:
		return fmt.Errorf("%w: %d words with src=%d dst=%d", ske.ErrInvalidParameter, req.Words, len(req.Src), len(req.Dst))
	}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return ErrStreamClosed
	}
	if st.state != DMAIdle {
		st.mu.Unlock()
		return ske.ErrRequestInFlight
	}
	gen, err := st.session.beginTransfer(req.Words * WordSize)
	if err != nil {
		st.mu.Unlock()
		return err
	}
	st.state = DMASubmitted
	st.pending = cb
	st.gen = gen
	st.idle = make(chan struct{})
	st.mu.Unlock()

	d := &Descriptor{
		Handle:  st.handle,
		Src:     req.Src,
		Dst:     req.Dst,
		Words:   req.Words,
		session: st.session,
		gen:     gen,
	}

	e := st.engine
	if e.dmaLog != nil {
		e.dmaLog.Debugf("submit handle=%d words=%d", st.handle, req.Words)
	}

	h := st.handle
	if err := e.transfer.Enqueue(d, func(r Result) { e.complete(h, gen, r) }); err != nil {
		st.mu.Lock()
		if st.state == DMASubmitted && st.gen == gen {
			st.session.endTransfer(gen, false)
			st.state = DMAIdle
			st.pending = nil
			close(st.idle)
		}
		st.mu.Unlock()
		return fmt.Errorf("%w: transfer rejected: %v", ske.ErrPrimitiveFailure, err)
	}
	return nil
}

// Complete is the completion entry point for transfer services. It moves the
// stream identified by h from Submitted to Completed, invokes the callback
// exactly once, and returns the stream to Idle. Notifications for unknown
// handles or streams without a pending transfer are dropped.
func (e *Engine) Complete(h Handle, r Result) {
	e.complete(h, 0, r)
}

// complete delivers r to stream h. A non-zero gen must match the pending
// transfer, so notifications for abandoned transfers cannot retire newer ones.
func (e *Engine) complete(h Handle, gen uint64, r Result) {
	e.mu.Lock()
	st := e.streams[h]
	e.mu.Unlock()

	if st == nil {
		if e.dmaLog != nil {
			e.dmaLog.Warnf("completion for unknown handle %d dropped", h)
		}
		return
	}
	st.complete(gen, r)
}

func (st *DMAStream) complete(gen uint64, r Result) {
	st.mu.Lock()
	if state := st.state; state != DMASubmitted || (gen != 0 && gen != st.gen) {
		st.mu.Unlock()
		if log := st.engine.dmaLog; log != nil {
			log.Warnf("completion for handle %d in state %s dropped", st.handle, state)
		}
		return
	}
	st.state = DMACompleted
	cb := st.pending
	st.pending = nil
	gen = st.gen
	st.mu.Unlock()

	r.Handle = st.handle
	r.Err = st.session.completeTransfer(gen, r.Err)
	if r.Err != nil {
		r.Words = 0
		if !errors.Is(r.Err, ske.ErrPrimitiveFailure) {
			r.Err = fmt.Errorf("%w: %v", ske.ErrPrimitiveFailure, r.Err)
		}
	}

	if log := st.engine.dmaLog; log != nil {
		if r.Err != nil {
			log.Warnf("transfer handle=%d failed: %v", st.handle, r.Err)
		} else {
			log.Debugf("complete handle=%d words=%d", st.handle, r.Words)
		}
	}

	cb(r)

	st.mu.Lock()
	st.state = DMAIdle
	close(st.idle)
	st.mu.Unlock()
}

// Wait blocks until the stream is Idle or ctx is done. There is no internal
// timeout: a transfer that never completes should be treated as a hardware
// fault and the stream abandoned.
func (st *DMAStream) Wait(ctx context.Context) error {
	st.mu.Lock()
	idle := st.idle
	st.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abandon gives up on a pending transfer. The session is poisoned and must be
// re-initialized; a late completion is dropped and a late execution leaves
// the session untouched. The callback of the abandoned request never runs.
func (st *DMAStream) Abandon() {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.state != DMASubmitted {
		return
	}
	st.session.endTransfer(st.gen, true)
	st.state = DMAIdle
	st.pending = nil
	close(st.idle)

	if log := st.engine.dmaLog; log != nil {
		log.Warnf("transfer handle=%d abandoned", st.handle)
	}
}

// Final finalizes the session. It fails with ske.ErrRequestInFlight while a
// transfer is pending; callers must wait for completion first.
func (st *DMAStream) Final() ([]byte, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.state != DMAIdle {
		return nil, ske.ErrRequestInFlight
	}
	return st.session.Final()
}

// Close detaches the stream from the engine. The session is left as is.
func (st *DMAStream) Close() error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return ErrStreamClosed
	}
	if st.state != DMAIdle {
		st.mu.Unlock()
		return ske.ErrRequestInFlight
	}
	st.closed = true
	st.mu.Unlock()

	e := st.engine
	e.mu.Lock()
	delete(e.streams, st.handle)
	e.mu.Unlock()
	return nil
}
