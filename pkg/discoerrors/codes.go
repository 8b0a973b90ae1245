package discoerrors

import "fmt"

// Code is the result code a node attaches to a transaction, both at intake
// and when the transaction is applied in a block. Zero means success.
type Code uint32

const (
	CodeOK Code = iota
	CodeEncoding
	CodeInvalidSignature
	CodeWrongSequence
	CodeDuplicateTx
	CodeInvalidMsg
	CodeEntryExists
	CodeInsufficientFee
	CodeTxExpired
	CodeWrongChainID
	CodeMempoolFull
	CodeUnknownAccount
)

var codeNames = [...]string{
	CodeOK:               "ok",
	CodeEncoding:         "encoding",
	CodeInvalidSignature: "invalid_signature",
	CodeWrongSequence:    "wrong_sequence",
	CodeDuplicateTx:      "duplicate_tx",
	CodeInvalidMsg:       "invalid_msg",
	CodeEntryExists:      "entry_exists",
	CodeInsufficientFee:  "insufficient_fee",
	CodeTxExpired:        "tx_expired",
	CodeWrongChainID:     "wrong_chain_id",
	CodeMempoolFull:      "mempool_full",
	CodeUnknownAccount:   "unknown_account",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", uint32(c))
}

// OK reports whether c is the success code.
func (c Code) OK() bool { return c == CodeOK }
