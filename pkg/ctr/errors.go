package ctr

import (
	"errors"
	"fmt"

	"github.com/backkem/ske/pkg/ske"
)

// Package errors. The engine taxonomy itself lives in pkg/ske.
var (
	// ErrSessionPoisoned is returned after a primitive failure. The session
	// must be re-initialized before further use.
	ErrSessionPoisoned = fmt.Errorf("%w: session poisoned", ske.ErrPrimitiveFailure)

	// ErrNotExecuted is reported to the callback when a transfer service
	// signals success for a descriptor it never executed.
	ErrNotExecuted = fmt.Errorf("%w: transfer completed without executing", ske.ErrPrimitiveFailure)

	// ErrStaleTransfer is returned by Descriptor.Execute for a transfer that
	// was abandoned or already completed.
	ErrStaleTransfer = errors.New("ctr: stale DMA transfer")

	// ErrWriterClosed is returned by Writer.Write after Close.
	ErrWriterClosed = errors.New("ctr: writer closed")

	// ErrDMAUnsupported is returned when DMA is used on an engine built
	// without CapabilityDMA.
	ErrDMAUnsupported = errors.New("ctr: DMA capability not enabled")

	// ErrNoTransfer is returned when CapabilityDMA is requested without a
	// transfer service.
	ErrNoTransfer = errors.New("ctr: DMA capability requires a transfer service")

	// ErrStreamClosed is returned for operations on a closed DMA stream.
	ErrStreamClosed = errors.New("ctr: DMA stream closed")

	// ErrControllerClosed is returned by a closed DMA controller.
	ErrControllerClosed = errors.New("ctr: DMA controller closed")

	// ErrControllerBusy is returned when the controller queue is full.
	ErrControllerBusy = errors.New("ctr: DMA controller queue full")
)
