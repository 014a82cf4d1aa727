package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/backkem/ske/pkg/ctr"
	"github.com/backkem/ske/pkg/keyslot"
	"github.com/backkem/ske/pkg/ske"
	"github.com/klauspost/compress/zstd"
	"github.com/pion/logging"
)

// run streams in through the selected engine path into out.
func run(ctx context.Context, opts Options, in io.Reader, out io.Writer, loggerFactory logging.LoggerFactory) error {
	log := loggerFactory.NewLogger("skectr")

	alg, err := ske.ParseAlgorithm(opts.Alg)
	if err != nil {
		return err
	}
	dir := ske.DirectionEncrypt
	if opts.Decrypt {
		dir = ske.DirectionDecrypt
	}

	key, store, err := resolveKey(opts, alg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.ClearAll()
	}

	config := ctr.EngineConfig{
		Primitive: ske.NewSoftware(ske.SoftwareConfig{
			KeyStore:      store,
			LoggerFactory: loggerFactory,
		}),
		LoggerFactory: loggerFactory,
	}
	if opts.Mode == ModeDMA {
		controller := ctr.NewController(ctr.ControllerConfig{
			AutoProcess:   true,
			LoggerFactory: loggerFactory,
		})
		defer controller.Close()

		config.Capabilities = ctr.CapabilityDMA
		config.Transfer = controller
	}

	engine, err := ctr.NewEngine(config)
	if err != nil {
		return err
	}
	session, err := engine.Init(alg, dir, key, opts.IV)
	if err != nil {
		return err
	}
	defer session.Final()

	log.Debugf("%s %s key=%s mode=%s zstd=%t", alg, dir, key, opts.Mode, opts.Zstd)

	switch {
	case opts.Zstd && dir == ske.DirectionDecrypt:
		return decryptDecompress(ctx, opts, engine, session, in, out)
	case opts.Zstd:
		sink, err := newSink(ctx, opts, engine, session, out)
		if err != nil {
			return err
		}
		enc, err := zstd.NewWriter(sink)
		if err != nil {
			return err
		}
		if _, err := copyChunks(enc, in, opts.Chunk); err != nil {
			enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		return sink.Close()
	default:
		sink, err := newSink(ctx, opts, engine, session, out)
		if err != nil {
			return err
		}
		n, err := copyChunks(sink, in, opts.Chunk)
		if err != nil {
			return err
		}
		log.Debugf("processed %d bytes", n)
		return sink.Close()
	}
}

// resolveKey returns the key reference for the session. With a slot the key
// is loaded (or derived) into a fresh store that backs the primitive.
func resolveKey(opts Options, alg ske.Algorithm) (ske.KeyRef, *keyslot.Store, error) {
	if opts.Slot == 0 {
		return ske.RawKey(opts.Key), nil, nil
	}

	slot := ske.SlotIndex(opts.Slot)
	store := keyslot.NewStore(keyslot.DefaultCapacity)

	if opts.KeyFile != "" {
		f, err := os.Open(opts.KeyFile)
		if err != nil {
			return nil, nil, err
		}
		_, err = store.Load(f)
		f.Close()
		if err != nil {
			store.ClearAll()
			return nil, nil, fmt.Errorf("load %s: %w", opts.KeyFile, err)
		}
	}

	var err error
	switch {
	case opts.Info != "":
		err = store.Derive(slot, opts.Key, nil, []byte(opts.Info), alg.KeySize())
	case len(opts.Key) > 0:
		err = store.Set(slot, opts.Key)
	default:
		var key []byte
		key, err = store.Lookup(slot)
		ske.Zeroize(key)
	}
	if err != nil {
		store.ClearAll()
		return nil, nil, fmt.Errorf("load %s: %w", slot, err)
	}
	return slot, store, nil
}

// newSink returns the cipher writer for the selected mode.
func newSink(ctx context.Context, opts Options, e *ctr.Engine, s *ctr.Session, out io.Writer) (io.WriteCloser, error) {
	if opts.Mode == ModeDMA {
		return newDMAWriter(ctx, e, s, out, opts.Chunk)
	}
	return ctr.NewWriter(out, s), nil
}

// decryptDecompress runs the cipher into a pipe feeding the zstd decoder.
func decryptDecompress(ctx context.Context, opts Options, e *ctr.Engine, s *ctr.Session, in io.Reader, out io.Writer) error {
	pr, pw := io.Pipe()

	done := make(chan error, 1)
	go func() {
		dec, err := zstd.NewReader(pr)
		if err != nil {
			pr.CloseWithError(err)
			done <- err
			return
		}
		defer dec.Close()

		_, err = io.Copy(out, dec)
		pr.CloseWithError(err)
		done <- err
	}()

	sink, err := newSink(ctx, opts, e, s, pw)
	if err == nil {
		_, err = copyChunks(sink, in, opts.Chunk)
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
	}
	pw.CloseWithError(err)

	if derr := <-done; err == nil {
		err = derr
	}
	return err
}

// copyChunks copies src to dst in reads of at most chunk bytes.
func copyChunks(dst io.Writer, src io.Reader, chunk int) (int64, error) {
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, make([]byte, chunk))
}
