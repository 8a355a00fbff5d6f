package message

import "testing"

func TestSizeReflectsPayloadLength(t *testing.T) {
	m := Message{Payload: []byte("abcdef")}
	if m.Size() != 6 {
		t.Fatalf("expected size 6, got %d", m.Size())
	}
}

func TestTypeString(t *testing.T) {
	cases := map[Type]string{
		Ping:      "PING",
		FindNodes: "FIND_NODES",
		Store:     "STORE",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Fatalf("Type(%d).String() = %q, want %q", typ, got, want)
		}
	}
	if got := Type(255).String(); got != "UNKNOWN(255)" {
		t.Fatalf("unexpected string for unknown type: %q", got)
	}
}
