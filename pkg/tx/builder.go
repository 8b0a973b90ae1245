package tx

import (
	"crypto/ed25519"
	"fmt"

	"github.com/jmerrifield20/disco/pkg/address"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/entry"
)

// AccountContext is everything the builder needs to know about the sender.
// Callers fetch Sequence from the network before each build; nothing here is
// cached between calls.
type AccountContext struct {
	ChainID       string
	Address       string
	PublicKey     ed25519.PublicKey
	Sequence      uint64
	Fee           Fee
	TimeoutHeight uint64
	Memo          string
}

func (a AccountContext) validate() error {
	if a.ChainID == "" {
		return discoerrors.Invalid("chain_id", "required")
	}
	if err := address.Validate(a.Address); err != nil {
		return discoerrors.Invalid("signer", "%v", err)
	}
	if len(a.PublicKey) != ed25519.PublicKeySize {
		return discoerrors.Invalid("public_key", "must be %d bytes", ed25519.PublicKeySize)
	}
	if !address.Matches(a.Address, a.PublicKey) {
		return discoerrors.Invalid("public_key", "does not match signer address")
	}
	if len(a.Memo) > MaxMemoLen {
		return discoerrors.Invalid("memo", "must be at most %d bytes", MaxMemoLen)
	}
	return nil
}

// Build validates and packs msgs into an unsigned envelope for the account.
// Message order is preserved.
func Build(actx AccountContext, msgs ...entry.Msg) (*Envelope, error) {
	if len(msgs) == 0 {
		return nil, discoerrors.ErrEmptyTransaction
	}
	anys := make([]entry.Any, 0, len(msgs))
	for i, m := range msgs {
		a, err := entry.Pack(m)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		anys = append(anys, a)
	}
	return BuildEncoded(actx, anys...)
}

// BuildEncoded is Build for messages that are already in wire form. Each one
// is decoded and validated before it is accepted.
func BuildEncoded(actx AccountContext, msgs ...entry.Any) (*Envelope, error) {
	if len(msgs) == 0 {
		return nil, discoerrors.ErrEmptyTransaction
	}
	if len(msgs) > MaxMessages {
		return nil, discoerrors.Invalid("messages", "at most %d per transaction", MaxMessages)
	}
	if err := actx.validate(); err != nil {
		return nil, err
	}

	body := Body{
		Messages:      make([]entry.Any, 0, len(msgs)),
		Memo:          actx.Memo,
		TimeoutHeight: actx.TimeoutHeight,
	}
	for i, a := range msgs {
		m, err := entry.Unpack(a)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if m.Signer() != actx.Address {
			return nil, discoerrors.Invalid("signer", "message %d is signed by %s, not %s", i, m.Signer(), actx.Address)
		}
		body.Messages = append(body.Messages, entry.Any{
			TypeURL: a.TypeURL,
			Value:   append([]byte(nil), a.Value...),
		})
	}

	return &Envelope{
		ChainID: actx.ChainID,
		Body:    body,
		AuthInfo: AuthInfo{
			Signer:    actx.Address,
			PublicKey: append([]byte(nil), actx.PublicKey...),
			Sequence:  actx.Sequence,
			Fee:       actx.Fee,
		},
	}, nil
}
