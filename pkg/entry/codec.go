package entry

import (
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/jmerrifield20/disco/pkg/discoerrors"
)

// Any is the self-describing wire form of a message: its type URL plus the
// cramberry encoding of its body.
type Any struct {
	TypeURL string `json:"type_url" cramberry:"1"`
	Value   []byte `json:"value"    cramberry:"2"`
}

// Pack validates m and wraps it in an Any.
func Pack(m Msg) (Any, error) {
	if m == nil {
		return Any{}, discoerrors.Invalid("", "nil message")
	}
	if err := m.ValidateBasic(); err != nil {
		return Any{}, err
	}
	body, err := cramberry.Marshal(m)
	if err != nil {
		return Any{}, fmt.Errorf("marshal %s: %w", m.TypeURL(), err)
	}
	return Any{TypeURL: m.TypeURL(), Value: body}, nil
}

// Unpack decodes the message carried by a. Unknown type URLs and malformed
// bodies yield a *discoerrors.DecodeError; a well-formed but invalid message
// yields a *discoerrors.ValidationError.
func Unpack(a Any) (Msg, error) {
	var m Msg
	switch a.TypeURL {
	case TypeURLCreateEntry:
		var c MsgCreateEntry
		if err := cramberry.Unmarshal(a.Value, &c); err != nil {
			return nil, &discoerrors.DecodeError{What: a.TypeURL, Err: err}
		}
		m = &c
	case "":
		return nil, &discoerrors.DecodeError{What: "message", Err: errors.New("missing type url")}
	default:
		return nil, &discoerrors.DecodeError{What: "message", Err: fmt.Errorf("unknown type url %q", a.TypeURL)}
	}
	if err := m.ValidateBasic(); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode returns the deterministic wire bytes of m.
func Encode(m Msg) ([]byte, error) {
	a, err := Pack(m)
	if err != nil {
		return nil, err
	}
	b, err := cramberry.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal any: %w", err)
	}
	return b, nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Msg, error) {
	if len(b) == 0 {
		return nil, &discoerrors.DecodeError{What: "message", Err: errors.New("empty input")}
	}
	var a Any
	if err := cramberry.Unmarshal(b, &a); err != nil {
		return nil, &discoerrors.DecodeError{What: "message", Err: err}
	}
	return Unpack(a)
}
