package main

import (
	"context"
	"io"

	"github.com/backkem/ske/pkg/ctr"
)

// dmaWriter pushes block-aligned chunks through a DMA stream, one transfer
// at a time, and finishes the sub-block tail on the synchronous path.
type dmaWriter struct {
	ctx     context.Context
	stream  *ctr.DMAStream
	session *ctr.Session
	out     io.Writer
	chunk   int
	block   int

	buf     []byte
	results chan ctr.Result
	closed  bool
}

func newDMAWriter(ctx context.Context, e *ctr.Engine, s *ctr.Session, out io.Writer, chunk int) (*dmaWriter, error) {
	block := s.Algorithm().BlockSize()
	chunk = chunk / block * block
	if chunk == 0 {
		chunk = block
	}

	w := &dmaWriter{
		ctx:     ctx,
		session: s,
		out:     out,
		chunk:   chunk,
		block:   block,
		results: make(chan ctr.Result, 1),
	}
	stream, err := e.NewDMAStream(s, ctr.DMAStreamConfig{
		Callback: func(r ctr.Result) { w.results <- r },
	})
	if err != nil {
		return nil, err
	}
	w.stream = stream
	return w, nil
}

func (w *dmaWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ctr.ErrWriterClosed
	}
	w.buf = append(w.buf, p...)

	off := 0
	for len(w.buf)-off >= w.chunk {
		if err := w.transfer(w.buf[off : off+w.chunk]); err != nil {
			return 0, err
		}
		off += w.chunk
	}
	w.buf = append(w.buf[:0], w.buf[off:]...)
	return len(p), nil
}

// Close transfers the remaining whole blocks, flushes the tail through the
// session and detaches the stream.
func (w *dmaWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.stream.Close()

	aligned := len(w.buf) / w.block * w.block
	if aligned > 0 {
		if err := w.transfer(w.buf[:aligned]); err != nil {
			return err
		}
	}

	tail := ctr.NewWriter(w.out, w.session)
	if _, err := tail.Write(w.buf[aligned:]); err != nil {
		return err
	}
	w.buf = nil
	return tail.Close()
}

func (w *dmaWriter) transfer(b []byte) error {
	src := make([]uint32, len(b)/ctr.WordSize)
	ctr.BytesToWords(src, b)
	dst := make([]uint32, len(src))

	if err := w.stream.Submit(ctr.Request{Src: src, Dst: dst, Words: len(src)}); err != nil {
		return err
	}
	select {
	case r := <-w.results:
		if r.Err != nil {
			return r.Err
		}
	case <-w.ctx.Done():
		w.stream.Abandon()
		return w.ctx.Err()
	}
	if err := w.stream.Wait(w.ctx); err != nil {
		return err
	}

	_, err := w.out.Write(ctr.WordsToBytes(dst))
	return err
}
