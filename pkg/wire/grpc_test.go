package wire_test

import (
	"testing"

	"google.golang.org/grpc/encoding"

	"github.com/jmerrifield20/disco/pkg/entry"
	"github.com/jmerrifield20/disco/pkg/wire"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec("cramberry")
	if c == nil {
		t.Fatal("cramberry codec not registered")
	}
	if c.Name() != "cramberry" {
		t.Errorf("Name() = %q", c.Name())
	}
}

func TestCodec_ListEntriesResponse(t *testing.T) {
	in := &wire.ListEntriesResponse{
		Entries: []entry.Entry{
			{ID: "0", Creator: "disco1a", Name: "first"},
			{ID: "1", Creator: "disco1b", Name: "second"},
		},
		Pagination: wire.PageResponse{NextKey: "2", Total: 5},
		Height:     9,
		Status:     wire.QueryStatusOK,
	}
	var c wire.Codec
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out wire.ListEntriesResponse
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Entries) != 2 || out.Entries[1] != in.Entries[1] {
		t.Errorf("entries = %+v", out.Entries)
	}
	if out.Pagination != in.Pagination || out.Height != 9 || out.Status != wire.QueryStatusOK {
		t.Errorf("got %+v", out)
	}
}

func TestFullMethod(t *testing.T) {
	if got := wire.FullMethod(wire.MethodSubmit); got != "/disco.node.v1.Node/Submit" {
		t.Errorf("FullMethod = %q", got)
	}
}
