// Package tx builds, signs, verifies and encodes transaction envelopes.
//
// A transaction goes through three steps, each a plain function:
//
//	env, err := tx.Build(actx, entry.NewMsgCreateEntry(addr, "", "name"))
//	signed, err := tx.Sign(env, w)
//	raw, err := tx.Encode(signed)
//
// The signature covers SignBytes(env): the deterministic cramberry encoding
// of the chain id, the ordered messages and the sender metadata.
package tx

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/entry"
)

// ErrNilEnvelope is returned when a nil envelope is signed, verified or
// encoded.
var ErrNilEnvelope = discoerrors.Invalid("envelope", "nil envelope")

// MaxMessages bounds the number of messages in one envelope.
const MaxMessages = 64

// MaxMemoLen bounds Body.Memo in bytes.
const MaxMemoLen = 256

// Fee is the most the sender is willing to pay for inclusion.
type Fee struct {
	Amount   uint64 `json:"amount"    cramberry:"1"`
	GasLimit uint64 `json:"gas_limit" cramberry:"2"`
}

// Body carries the ordered messages and the validity window.
type Body struct {
	Messages []entry.Any `json:"messages"       cramberry:"1"`
	Memo     string      `json:"memo,omitempty" cramberry:"2"`
	// TimeoutHeight is the last block height at which the envelope may be
	// included. Zero means no limit.
	TimeoutHeight uint64 `json:"timeout_height" cramberry:"3"`
}

// AuthInfo identifies the sender and orders its transactions.
type AuthInfo struct {
	Signer    string `json:"signer"     cramberry:"1"`
	PublicKey []byte `json:"public_key" cramberry:"2"`
	Sequence  uint64 `json:"sequence"   cramberry:"3"`
	Fee       Fee    `json:"fee"        cramberry:"4"`
}

// Envelope is an unsigned transaction.
type Envelope struct {
	ChainID  string   `json:"chain_id"  cramberry:"1"`
	Body     Body     `json:"body"      cramberry:"2"`
	AuthInfo AuthInfo `json:"auth_info" cramberry:"3"`
}

// SignedEnvelope is an envelope plus the signature over its SignBytes.
type SignedEnvelope struct {
	Envelope  Envelope `json:"envelope"  cramberry:"1"`
	Signature []byte   `json:"signature" cramberry:"2"`
}

// SignBytes returns the canonical bytes a signature commits to.
func SignBytes(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, ErrNilEnvelope
	}
	b, err := cramberry.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal sign bytes: %w", err)
	}
	return b, nil
}

// Msgs decodes the messages carried by env, in order.
func (e *Envelope) Msgs() ([]entry.Msg, error) {
	out := make([]entry.Msg, 0, len(e.Body.Messages))
	for i, a := range e.Body.Messages {
		m, err := entry.Unpack(a)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// PublicKeyEd25519 returns the sender's key as an ed25519.PublicKey.
func (a AuthInfo) PublicKeyEd25519() ed25519.PublicKey {
	return ed25519.PublicKey(a.PublicKey)
}

// Hash returns the transaction hash of raw wire bytes: upper-case hex SHA-256.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
