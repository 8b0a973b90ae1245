package entry

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jmerrifield20/disco/pkg/address"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
)

const (
	// MaxNameLen bounds Entry.Name in bytes.
	MaxNameLen = 256
	// MaxIDLen bounds a caller-chosen Entry.ID in bytes.
	MaxIDLen = 128
)

// Msg is a typed, unsigned intent to mutate state. The set of kinds is
// closed: only types in this package implement it.
type Msg interface {
	// TypeURL identifies the message kind on the wire.
	TypeURL() string
	// ValidateBasic performs stateless checks. It never touches the network.
	ValidateBasic() error
	// Signer is the address whose signature authorizes the message.
	Signer() string

	isMsg()
}

// TypeURLCreateEntry is the wire type of MsgCreateEntry.
const TypeURLCreateEntry = "/disco.entry.v1.MsgCreateEntry"

// MsgCreateEntry asks the node to append an entry owned by Creator. When ID is
// empty the node assigns one.
type MsgCreateEntry struct {
	Creator string `json:"creator" cramberry:"1"`
	ID      string `json:"id"      cramberry:"2"`
	Name    string `json:"name"    cramberry:"3"`
}

// NewMsgCreateEntry builds a create-entry message. Pass an empty id to let
// the node assign one.
func NewMsgCreateEntry(creator, id, name string) *MsgCreateEntry {
	return &MsgCreateEntry{Creator: creator, ID: id, Name: name}
}

func (*MsgCreateEntry) TypeURL() string  { return TypeURLCreateEntry }
func (m *MsgCreateEntry) Signer() string { return m.Creator }
func (*MsgCreateEntry) isMsg()           {}

func (m *MsgCreateEntry) ValidateBasic() error {
	if m.Creator == "" {
		return discoerrors.Invalid("creator", "required")
	}
	if err := address.Validate(m.Creator); err != nil {
		return discoerrors.Invalid("creator", "%v", err)
	}
	if strings.TrimSpace(m.Name) == "" {
		return discoerrors.Invalid("name", "required")
	}
	if len(m.Name) > MaxNameLen {
		return discoerrors.Invalid("name", "must be at most %d bytes", MaxNameLen)
	}
	if !utf8.ValidString(m.Name) || strings.ContainsRune(m.Name, 0) {
		return discoerrors.Invalid("name", "must be valid UTF-8 without NUL bytes")
	}
	return ValidateID(m.ID, true)
}

// ValidateID checks an entry id. Empty ids are allowed only when allowEmpty
// is set (the node assigns one).
func ValidateID(id string, allowEmpty bool) error {
	if id == "" {
		if allowEmpty {
			return nil
		}
		return discoerrors.Invalid("id", "required")
	}
	if len(id) > MaxIDLen {
		return discoerrors.Invalid("id", "must be at most %d bytes", MaxIDLen)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || r == '/' || !unicode.IsPrint(r) {
			return discoerrors.Invalid("id", "contains invalid character %q", r)
		}
	}
	return nil
}
