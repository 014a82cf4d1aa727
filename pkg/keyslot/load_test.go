package keyslot

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/backkem/ske/pkg/ske"
)

func TestLoad(t *testing.T) {
	t.Parallel()
	// Test keys only.
	file := `
# bench keys
1     = 000102030405060708090a0b0c0d0e0f
0x10  = 603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4

7=0011223344556677`

	s := NewStore(0)
	n, err := s.Load(strings.NewReader(file))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n != 3 || s.Len() != 3 {
		t.Fatalf("loaded %d keys (Len %d), want 3", n, s.Len())
	}

	key, _ := s.Lookup(16)
	if len(key) != 32 || key[0] != 0x60 {
		t.Errorf("slot 16 = %x", key)
	}
	key, _ = s.Lookup(7)
	if !bytes.Equal(key, []byte{0, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}) {
		t.Errorf("slot 7 = %x", key)
	}
}

func TestLoadEmpty(t *testing.T) {
	t.Parallel()
	s := NewStore(0)
	if _, err := s.Load(strings.NewReader("  \n# nothing\n")); err != ErrNoKeys {
		t.Errorf("error = %v, want ErrNoKeys", err)
	}
	if _, err := s.Load(nil); err != ErrNoKeys {
		t.Errorf("nil reader: error = %v, want ErrNoKeys", err)
	}
}

func TestLoadBadInput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		want error
	}{
		{"no separator", "1 000102", nil},
		{"bad slot", "one = 0001", nil},
		{"bad hex", "1 = 00zz", nil},
		{"slot zero", "0 = 00010203", ErrInvalidSlot},
		{"slot out of range", "40000 = 00010203", ErrInvalidSlot},
		{"oversized key", "2 = " + strings.Repeat("ab", MaxKeySize+1), ErrInvalidKey},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore(0)
			_, err := s.Load(strings.NewReader(tc.file))
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadKeepsEarlierSlots(t *testing.T) {
	t.Parallel()
	s := NewStore(0)
	n, err := s.Load(strings.NewReader("3 = 0102030405060708\nbroken\n4 = 0102"))
	if err == nil {
		t.Fatal("Load succeeded")
	}
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
	if _, err := s.Lookup(ske.SlotIndex(3)); err != nil {
		t.Errorf("slot 3 lost: %v", err)
	}
	if _, err := s.Lookup(4); err != ErrSlotEmpty {
		t.Errorf("slot 4: error = %v, want ErrSlotEmpty", err)
	}
}
