package ctr

import "io"

const readerBufferSize = 512

// Reader applies a session to everything read from an underlying reader.
// At EOF of the source it finalizes the session and returns the flushed tail
// before reporting io.EOF.
type Reader struct {
	r   io.Reader
	s   *Session
	buf []byte
	out []byte
	err error
}

// NewReader returns a Reader over an initialized session.
func NewReader(r io.Reader, s *Session) *Reader {
	return &Reader{r: r, s: s}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.fill()
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

func (r *Reader) fill() {
	if r.buf == nil {
		r.buf = make([]byte, readerBufferSize)
	}

	n, err := r.r.Read(r.buf)
	if n > 0 {
		out, uerr := r.s.Update(r.buf[:n])
		if uerr != nil {
			r.err = uerr
			return
		}
		r.out = out
	}

	switch {
	case err == io.EOF:
		tail, ferr := r.s.Final()
		if ferr != nil {
			r.err = ferr
			return
		}
		r.out = append(r.out, tail...)
		r.err = io.EOF
	case err != nil:
		r.err = err
	}
}
