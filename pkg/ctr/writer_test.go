package ctr

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/backkem/ske/pkg/ske"
)

func TestWriter(t *testing.T) {
	e := newTestEngine(t)
	alg := ske.AlgorithmAES128
	in := testData(100)
	want, _ := e.OneShot(alg, ske.DirectionEncrypt, testKey(alg), testIV(alg), in)

	s, _ := e.Init(alg, ske.DirectionEncrypt, testKey(alg), testIV(alg))
	var out bytes.Buffer
	w := NewWriter(&out, s)

	for _, chunk := range [][]byte{in[:7], in[7:40], in[40:41], in[41:]} {
		n, err := w.Write(chunk)
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if n != len(chunk) {
			t.Errorf("Write returned %d, want %d", n, len(chunk))
		}
	}
	if out.Len() != 96 {
		t.Errorf("bytes forwarded before Close = %d, want 96", out.Len())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Error("writer output differs from OneShot")
	}
	if s.Initialized() {
		t.Error("Close did not finalize the session")
	}

	if _, err := w.Write([]byte{1}); err != ErrWriterClosed {
		t.Errorf("Write after Close: error = %v, want ErrWriterClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriterPropagatesErrors(t *testing.T) {
	e := newTestEngine(t)
	alg := ske.AlgorithmAES128

	s, _ := e.Init(alg, ske.DirectionEncrypt, testKey(alg), testIV(alg))
	w := NewWriter(failWriter{}, s)
	if _, err := w.Write(make([]byte, 32)); err == nil {
		t.Error("Write did not report the underlying error")
	}

	if _, err := NewWriter(&bytes.Buffer{}, e.NewSession()).Write([]byte{1}); err != ske.ErrSessionNotInitialized {
		t.Errorf("Write on uninitialized session: error = %v, want ErrSessionNotInitialized", err)
	}
}

func TestReader(t *testing.T) {
	e := newTestEngine(t)
	alg := ske.AlgorithmAES128
	in := testData(1500)
	want, _ := e.OneShot(alg, ske.DirectionEncrypt, testKey(alg), testIV(alg), in)

	s, _ := e.Init(alg, ske.DirectionEncrypt, testKey(alg), testIV(alg))
	r := NewReader(iotest.HalfReader(bytes.NewReader(in)), s)

	got, err := io.ReadAll(iotest.OneByteReader(r))
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("reader output differs from OneShot")
	}
	if s.Initialized() {
		t.Error("EOF did not finalize the session")
	}
	if n, err := r.Read(make([]byte, 8)); n != 0 || err != io.EOF {
		t.Errorf("Read after EOF = %d, %v", n, err)
	}
}

func TestReaderSourceError(t *testing.T) {
	e := newTestEngine(t)
	alg := ske.AlgorithmAES128
	s, _ := e.Init(alg, ske.DirectionEncrypt, testKey(alg), testIV(alg))

	r := NewReader(iotest.TimeoutReader(bytes.NewReader(testData(600))), s)
	_, err := io.ReadAll(r)
	if err != iotest.ErrTimeout {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}
