package keyslot

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/backkem/ske/pkg/ske"
)

// ErrNoKeys is returned by Load when the input holds no key lines.
var ErrNoKeys = errors.New("keyslot: no keys loaded")

// Load reads a key file into the store and returns the number of slots set.
// Each line has the form
//
//	<slot> = <hex key>
//
// Blank lines and lines starting with '#' are skipped. A malformed line stops
// loading; slots set before it are kept.
func (s *Store) Load(r io.Reader) (int, error) {
	if r == nil {
		return 0, ErrNoKeys
	}

	n := 0
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		name, value, ok := strings.Cut(text, "=")
		if !ok {
			return n, fmt.Errorf("keyslot: line %d: missing '='", line)
		}
		index, err := strconv.ParseUint(strings.TrimSpace(name), 0, 16)
		if err != nil {
			return n, fmt.Errorf("keyslot: line %d: slot: %w", line, err)
		}
		key, err := hex.DecodeString(strings.TrimSpace(value))
		if err != nil {
			return n, fmt.Errorf("keyslot: line %d: key: %w", line, err)
		}

		err = s.Set(ske.SlotIndex(index), key)
		ske.Zeroize(key)
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, err
	}
	if n == 0 {
		return 0, ErrNoKeys
	}
	return n, nil
}
