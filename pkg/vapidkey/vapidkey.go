// Package vapidkey converts application server (VAPID) public keys between the
// unpadded base64url form handed out by the server and the raw bytes the push
// subscription API expects.
package vapidkey

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKeyEncoding is returned when a key is not valid base64url.
var ErrInvalidKeyEncoding = errors.New("invalid key encoding")

// uncompressedP256Len is the length of an uncompressed P-256 point (0x04 || X || Y).
const uncompressedP256Len = 65

// Decode converts a base64url string, with or without "=" padding, into raw bytes.
//
// The input is re-padded to a multiple of four, translated to the standard
// alphabet and decoded. Malformed input never yields a truncated key.
func Decode(key string) ([]byte, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(key), "=")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKeyEncoding)
	}

	padded := trimmed + strings.Repeat("=", (4-len(trimmed)%4)%4)
	std := strings.NewReplacer("-", "+", "_", "/").Replace(padded)

	raw, err := base64.StdEncoding.Strict().DecodeString(std)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	return raw, nil
}

// Encode returns the unpadded base64url form of raw key bytes.
func Encode(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ValidatePublicKey checks that key decodes to an uncompressed P-256 point.
func ValidatePublicKey(key string) error {
	raw, err := Decode(key)
	if err != nil {
		return err
	}
	if len(raw) != uncompressedP256Len || raw[0] != 0x04 {
		return fmt.Errorf("%w: expected %d-byte uncompressed P-256 point, got %d bytes",
			ErrInvalidKeyEncoding, uncompressedP256Len, len(raw))
	}
	return nil
}
