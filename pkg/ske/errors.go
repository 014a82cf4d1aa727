package ske

import "errors"

// Engine error taxonomy. Operations wrap these with detail using %w, so
// callers should match with errors.Is.
var (
	// ErrInvalidParameter is returned for key/IV length mismatches, invalid
	// key slot indices and malformed transfer requests.
	ErrInvalidParameter = errors.New("ske: invalid parameter")

	// ErrInvalidAlgorithm is returned when the algorithm selector is not supported.
	ErrInvalidAlgorithm = errors.New("ske: invalid algorithm")

	// ErrSessionNotInitialized is returned for operations before Init or after Final.
	ErrSessionNotInitialized = errors.New("ske: session not initialized")

	// ErrRequestInFlight is returned when an operation is attempted while a
	// DMA transfer is pending on the session.
	ErrRequestInFlight = errors.New("ske: request in flight")

	// ErrCounterExhausted is returned when the block-count ceiling of the
	// session has been reached. The session must be re-keyed.
	ErrCounterExhausted = errors.New("ske: counter exhausted")

	// ErrPrimitiveFailure is returned when the block cipher or the transfer
	// service reports a fault. The session must be re-initialized.
	ErrPrimitiveFailure = errors.New("ske: primitive failure")
)

// ErrExpandUnsupported is returned by Expander implementations that wrap a
// primitive without key expansion. Callers fall back to EncryptBlock.
var ErrExpandUnsupported = errors.New("ske: key expansion unsupported")
