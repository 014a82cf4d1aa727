// skectr encrypts or decrypts a stream in counter mode.
//
// Usage:
//
//	skectr -key HEX -iv HEX [options]
//
// Options:
//
//	-alg    algorithm: aes128 aes192 aes256 sm4 twofish128 twofish192
//	        twofish256 des tdes128 tdes192 blowfish cast5 xtea tea
//	        (default: aes128)
//	-key    key as hex
//	-iv     IV as hex, block size or down to four bytes shorter
//	-slot   load the key into a key slot and encrypt by reference
//	-info   derive the slot key from -key with HKDF-SHA256
//	-keys   key file of "<slot> = <hex>" lines loaded into the slot bank
//	-d      decrypt
//	-mode   sync or dma (default: sync)
//	-chunk  chunk size in bytes (default: 4096)
//	-zstd   compress before encrypting / decompress after decrypting
//	-in     input file (default: stdin)
//	-out    output file (default: stdout)
//	-v      debug logging to stderr
//
// Example:
//
//	skectr -alg aes256 -key 603deb10...dff4 -iv f0f1f2f3f4f5f6f7f8f9fafb -in plain.bin -out cipher.bin
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"
)

func main() {
	opts := ParseFlags()

	if err := execute(opts); err != nil {
		log.Fatalf("skectr: %v", err)
	}
}

func execute(opts Options) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = logging.LogLevelWarn
	if opts.Verbose {
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	}

	var in io.Reader = os.Stdin
	if opts.In != "" {
		f, err := os.Open(opts.In)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = os.Stdout
	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		out = f
	}

	return run(ctx, opts, in, out, loggerFactory)
}
