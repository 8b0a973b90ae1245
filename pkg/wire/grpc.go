package wire

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"google.golang.org/grpc/encoding"
)

// ServiceName is the gRPC service exposed by a node. Messages are the
// types in this package, serialized with cramberry instead of protobuf.
const ServiceName = "disco.node.v1.Node"

// gRPC method names.
const (
	MethodSubmit      = "Submit"
	MethodTxStatus    = "TxStatus"
	MethodListEntries = "ListEntries"
	MethodGetEntry    = "GetEntry"
	MethodAccount     = "Account"
	MethodStatus      = "Status"
)

// Trailer keys carrying the heights of a stale read, sent alongside a
// FailedPrecondition status.
const (
	TrailerHeight    = "disco-height"
	TrailerMinHeight = "disco-min-height"
)

// FullMethod builds the full gRPC method path.
func FullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", ServiceName, method)
}

const codecName = "cramberry"

// Codec implements grpc/encoding.Codec using cramberry.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	data, err := cramberry.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cramberry marshal: %w", err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := cramberry.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cramberry unmarshal: %w", err)
	}
	return nil
}

func (Codec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(Codec{})
}
