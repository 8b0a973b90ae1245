// Package address derives and validates disco account addresses.
//
// Address format: bech32(hrp="disco", sha256(ed25519 public key)[:20]),
// which renders as a 44-character string beginning with "disco1".
package address

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// HRP is the human-readable prefix carried by every account address.
const HRP = "disco"

// Len is the length in bytes of the decoded address payload.
const Len = 20

// FromPublicKey derives the account address for an ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	sum := sha256.Sum256(pub)
	return FromBytes(sum[:Len])
}

// MustFromPublicKey is like FromPublicKey but panics on error.
func MustFromPublicKey(pub ed25519.PublicKey) string {
	addr, err := FromPublicKey(pub)
	if err != nil {
		panic(err)
	}
	return addr
}

// FromBytes encodes a raw 20-byte address payload.
func FromBytes(b []byte) (string, error) {
	if len(b) != Len {
		return "", fmt.Errorf("address payload must be %d bytes, got %d", Len, len(b))
	}
	conv, err := bech32.ConvertBits(b, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert address bits: %w", err)
	}
	s, err := bech32.Encode(HRP, conv)
	if err != nil {
		return "", fmt.Errorf("encode address: %w", err)
	}
	return s, nil
}

// Parse decodes an address string and returns its raw payload.
func Parse(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty address")
	}
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if hrp != HRP {
		return nil, fmt.Errorf("unsupported address prefix %q: expected %q", hrp, HRP)
	}
	b, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != Len {
		return nil, fmt.Errorf("address payload must be %d bytes, got %d", Len, len(b))
	}
	return b, nil
}

// Validate reports whether s is a well-formed account address.
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

// Matches reports whether addr is the address derived from pub.
func Matches(addr string, pub ed25519.PublicKey) bool {
	derived, err := FromPublicKey(pub)
	if err != nil {
		return false
	}
	return derived == addr
}
