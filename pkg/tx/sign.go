package tx

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/jmerrifield20/disco/pkg/address"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/wallet"
)

// ErrBadSignature is returned by Verify when the signature does not cover the
// envelope's sign bytes under its declared key.
var ErrBadSignature = errors.New("signature verification failed")

// Sign asks w to sign env for its declared signer. It fails with a
// *discoerrors.SigningError when the wallet does not hold the signer, holds a
// different key for it, or returns a signature that does not verify.
func Sign(env *Envelope, w wallet.Wallet) (*SignedEnvelope, error) {
	if env == nil {
		return nil, ErrNilEnvelope
	}
	signer := env.AuthInfo.Signer
	if w == nil {
		return nil, &discoerrors.SigningError{Address: signer, Err: errors.New("nil wallet")}
	}
	pub, err := wallet.PublicKey(w, signer)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(pub, env.AuthInfo.PublicKey) {
		return nil, &discoerrors.SigningError{Address: signer, Err: errors.New("wallet key does not match envelope public key")}
	}

	sb, err := SignBytes(env)
	if err != nil {
		return nil, err
	}
	sig, err := w.Sign(sb, signer)
	if err != nil {
		var se *discoerrors.SigningError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &discoerrors.SigningError{Address: signer, Err: err}
	}
	if !ed25519.Verify(pub, sb, sig) {
		return nil, &discoerrors.SigningError{Address: signer, Err: ErrBadSignature}
	}

	return &SignedEnvelope{Envelope: *env, Signature: sig}, nil
}

// Verify checks that the signer address belongs to the declared public key
// and that the signature covers the envelope.
func Verify(se *SignedEnvelope) error {
	if se == nil {
		return ErrNilEnvelope
	}
	auth := se.Envelope.AuthInfo
	if len(auth.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("public key must be %d bytes: %w", ed25519.PublicKeySize, ErrBadSignature)
	}
	if !address.Matches(auth.Signer, auth.PublicKey) {
		return fmt.Errorf("public key does not match signer %s: %w", auth.Signer, ErrBadSignature)
	}
	sb, err := SignBytes(&se.Envelope)
	if err != nil {
		return err
	}
	if !ed25519.Verify(auth.PublicKey, sb, se.Signature) {
		return ErrBadSignature
	}
	return nil
}

// Encode returns the wire bytes of a signed envelope.
func Encode(se *SignedEnvelope) ([]byte, error) {
	if se == nil {
		return nil, ErrNilEnvelope
	}
	b, err := cramberry.Marshal(se)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	return b, nil
}

// Decode parses wire bytes into a signed envelope. It does not verify the
// signature.
func Decode(raw []byte) (*SignedEnvelope, error) {
	if len(raw) == 0 {
		return nil, &discoerrors.DecodeError{What: "transaction", Err: errors.New("empty input")}
	}
	var se SignedEnvelope
	if err := cramberry.Unmarshal(raw, &se); err != nil {
		return nil, &discoerrors.DecodeError{What: "transaction", Err: err}
	}
	return &se, nil
}

// EncodeAndHash encodes se and returns the bytes together with their hash.
func EncodeAndHash(se *SignedEnvelope) ([]byte, string, error) {
	raw, err := Encode(se)
	if err != nil {
		return nil, "", err
	}
	return raw, Hash(raw), nil
}
