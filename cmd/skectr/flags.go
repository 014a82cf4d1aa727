package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
)

// Mode selects the engine path used for bulk data.
const (
	ModeSync = "sync"
	ModeDMA  = "dma"
)

// Options holds the skectr command-line flags.
type Options struct {
	// Alg is the algorithm selector name (see ske.ParseAlgorithm).
	Alg string

	// Key is the raw key, or the slot secret when Slot is set.
	Key []byte

	// IV is the initial counter block prefix.
	IV []byte

	// Slot loads Key into this key slot and encrypts by slot reference.
	// Zero means the key is passed raw.
	Slot uint16

	// Info derives the slot key from Key with HKDF-SHA256 when non-empty.
	Info string

	// KeyFile is a key file ("<slot> = <hex>" lines) loaded before Key.
	KeyFile string

	// Decrypt selects the decrypt direction.
	Decrypt bool

	// Mode is ModeSync or ModeDMA.
	Mode string

	// Chunk is the read and transfer size in bytes.
	Chunk int

	// Zstd compresses before encrypting, or decompresses after decrypting.
	Zstd bool

	// In and Out are file paths. Empty means stdin/stdout.
	In  string
	Out string

	// Verbose enables debug logging on stderr.
	Verbose bool
}

// DefaultOptions returns the flag defaults.
func DefaultOptions() Options {
	return Options{
		Alg:   "aes128",
		Mode:  ModeSync,
		Chunk: 4096,
	}
}

// ParseFlags parses os.Args into Options, exiting on malformed flags.
//
//	-alg    algorithm (default: aes128)
//	-key    key as hex
//	-iv     IV as hex
//	-slot   key slot to load the key into (default: raw key)
//	-info   HKDF info string; derives the slot key from -key
//	-keys   key file to load into the slot bank
//	-d      decrypt
//	-mode   sync or dma (default: sync)
//	-chunk  chunk size in bytes (default: 4096)
//	-zstd   zstd compression around the cipher
//	-in     input file (default: stdin)
//	-out    output file (default: stdout)
//	-v      debug logging
func ParseFlags() Options {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "skectr: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	return opts
}

func parseFlags(fs *flag.FlagSet, args []string) (Options, error) {
	o := DefaultOptions()

	fs.StringVar(&o.Alg, "alg", o.Alg, "Algorithm")
	fs.Func("key", "Key as hex", func(s string) error {
		b, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("key: %w", err)
		}
		o.Key = b
		return nil
	})
	fs.Func("iv", "IV as hex", func(s string) error {
		b, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("iv: %w", err)
		}
		o.IV = b
		return nil
	})
	fs.Func("slot", "Key slot to load the key into (default: raw key)", func(s string) error {
		var v uint16
		if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
			return err
		}
		o.Slot = v
		return nil
	})
	fs.StringVar(&o.Info, "info", "", "HKDF info string; derives the slot key from -key")
	fs.StringVar(&o.KeyFile, "keys", "", "Key file to load into the slot bank")
	fs.BoolVar(&o.Decrypt, "d", false, "Decrypt")
	fs.StringVar(&o.Mode, "mode", o.Mode, "Engine path: sync or dma")
	fs.IntVar(&o.Chunk, "chunk", o.Chunk, "Chunk size in bytes")
	fs.BoolVar(&o.Zstd, "zstd", false, "Compress before encrypting / decompress after decrypting")
	fs.StringVar(&o.In, "in", "", "Input file (default: stdin)")
	fs.StringVar(&o.Out, "out", "", "Output file (default: stdout)")
	fs.BoolVar(&o.Verbose, "v", false, "Debug logging")

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	o.Mode = strings.ToLower(o.Mode)
	if o.Mode != ModeSync && o.Mode != ModeDMA {
		return o, fmt.Errorf("mode must be %s or %s, got %q", ModeSync, ModeDMA, o.Mode)
	}
	if o.Chunk <= 0 {
		return o, fmt.Errorf("chunk must be positive, got %d", o.Chunk)
	}
	if o.Slot == 0 && (o.Info != "" || o.KeyFile != "") {
		return o, fmt.Errorf("-info and -keys require -slot")
	}
	return o, nil
}
