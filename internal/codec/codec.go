// Package codec implements the reversible payload transform applied to
// purchase data before it is written to the contract.
//
// The transform is a tagged base64 wrapper. It carries no confidentiality;
// the Codec interface exists so a real scheme can replace it.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Marker prefixes every encoded value.
const Marker = "FHE-"

// ErrMalformed is returned when a marked value is not valid base64.
var ErrMalformed = errors.New("codec: malformed ciphertext")

// Codec encodes and decodes opaque payload strings.
type Codec interface {
	Encode(plaintext string) string
	Decode(ciphertext string) (string, error)
}

// Placeholder is the tagged base64 codec.
type Placeholder struct{}

// Encode returns Marker followed by the standard base64 of plaintext.
func (Placeholder) Encode(plaintext string) string {
	return Encode(plaintext)
}

// Decode reverses Encode. Input without the marker is returned unchanged.
func (Placeholder) Decode(ciphertext string) (string, error) {
	return Decode(ciphertext)
}

// Encode returns Marker followed by the standard base64 of plaintext.
func Encode(plaintext string) string {
	return Marker + base64.StdEncoding.EncodeToString([]byte(plaintext))
}

// Decode strips the marker and base64-decodes the rest. Values without the
// marker predate encoding and pass through unchanged.
func Decode(ciphertext string) (string, error) {
	body, ok := strings.CutPrefix(ciphertext, Marker)
	if !ok {
		return ciphertext, nil
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(raw), nil
}

// IsEncoded reports whether s carries the marker.
func IsEncoded(s string) bool {
	return strings.HasPrefix(s, Marker)
}
