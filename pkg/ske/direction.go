package ske

// Direction records whether a session encrypts or decrypts. CTR applies the
// same keystream XOR either way; the direction is carried for the caller's
// bookkeeping and logging.
type Direction int

const (
	// DirectionEncrypt indicates the session turns plaintext into ciphertext.
	DirectionEncrypt Direction = iota

	// DirectionDecrypt indicates the session turns ciphertext into plaintext.
	DirectionDecrypt
)

// String returns a human-readable name for the direction.
func (d Direction) String() string {
	switch d {
	case DirectionEncrypt:
		return "Encrypt"
	case DirectionDecrypt:
		return "Decrypt"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the direction is a defined value.
func (d Direction) IsValid() bool {
	return d == DirectionEncrypt || d == DirectionDecrypt
}
