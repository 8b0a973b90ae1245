package address_test

import (
	"bytes"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/jmerrifield20/disco/pkg/address"
)

func testKey(seed byte) ed25519.PublicKey {
	s := bytes.Repeat([]byte{seed}, ed25519.SeedSize)
	return ed25519.NewKeyFromSeed(s).Public().(ed25519.PublicKey)
}

func TestFromPublicKey(t *testing.T) {
	pub := testKey(1)
	addr, err := address.FromPublicKey(pub)
	if err != nil {
		t.Fatalf("FromPublicKey: %v", err)
	}
	if !strings.HasPrefix(addr, address.HRP+"1") {
		t.Errorf("address = %q, want prefix %q", addr, address.HRP+"1")
	}

	again := address.MustFromPublicKey(pub)
	if again != addr {
		t.Errorf("derivation not deterministic: %q vs %q", addr, again)
	}

	other := address.MustFromPublicKey(testKey(2))
	if other == addr {
		t.Error("distinct keys derived the same address")
	}
}

func TestFromPublicKey_BadLength(t *testing.T) {
	if _, err := address.FromPublicKey(make([]byte, 31)); err == nil {
		t.Error("expected error for short key")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, address.Len)
	s, err := address.FromBytes(payload)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	got, err := address.Parse(s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %x, want %x", got, payload)
	}
}

func TestValidate(t *testing.T) {
	valid := address.MustFromPublicKey(testKey(3))

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", valid, false},
		{"empty", "", true},
		{"garbage", "not-an-address", true},
		{"bad checksum", valid[:len(valid)-1] + flip(valid[len(valid)-1]), true},
		{"wrong prefix", strings.Replace(valid, address.HRP, "cosmos", 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := address.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	pub := testKey(4)
	addr := address.MustFromPublicKey(pub)
	if !address.Matches(addr, pub) {
		t.Error("Matches returned false for derived address")
	}
	if address.Matches(addr, testKey(5)) {
		t.Error("Matches returned true for a different key")
	}
}

func flip(c byte) string {
	if c == 'q' {
		return "p"
	}
	return "q"
}
