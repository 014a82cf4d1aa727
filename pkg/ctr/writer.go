package ctr

import "io"

// Writer applies a session to everything written to it and forwards the
// output to an underlying writer. Close flushes the final partial block and
// finalizes the session; it does not close the underlying writer.
type Writer struct {
	w      io.Writer
	s      *Session
	closed bool
}

// NewWriter returns a Writer over an initialized session.
func NewWriter(w io.Writer, s *Session) *Writer {
	return &Writer{w: w, s: s}
}

// Write implements io.Writer. Bytes that do not complete a block are held by
// the session, so the underlying writer may receive less than len(p).
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	out, err := w.s.Update(p)
	if err != nil {
		return 0, err
	}
	if len(out) > 0 {
		if _, err := w.w.Write(out); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close implements io.Closer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	out, err := w.s.Final()
	if err != nil {
		return err
	}
	if len(out) > 0 {
		_, err = w.w.Write(out)
	}
	return err
}
