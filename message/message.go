// Package message defines the typed envelope that every node in the
// simulation exchanges: a type code, source/destination addresses, a
// reply-correlation tag, a hop counter, and an opaque payload.
//
// Grounded on original_source/message.hpp's Message<A> template; Go doesn't
// need the template parameter since the simulation fixes the address type
// to Address (a uint32, matching spec.md's "Address" data model).
package message

import "fmt"

// Address is a simulation-only routing token assigned by the network.
// Address 0 is reserved and never assigned to an inhabitant.
type Address uint32

// Type is the application-level message type code. The zero value, Unknown,
// never appears on the wire; it exists only as a guard against an
// unpopulated Message.
type Type uint8

const (
	Unknown Type = iota
	Ping
	FindNodes
	Store
)

func (t Type) String() string {
	switch t {
	case Ping:
		return "PING"
	case FindNodes:
		return "FIND_NODES"
	case Store:
		return "STORE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Message is the value object exchanged between nodes. The network owns
// transfer semantics (queueing, byte-budget accounting, delivery); a
// Message itself carries no behavior.
type Message struct {
	Type        Type
	Originator  Address
	Destination Address
	// Tag correlates a reply with the request that prompted it. A reply
	// must echo the originating request's Tag (see BaseNode.Send).
	Tag uint64
	// Hops counts network deliveries; incremented once per hop by the
	// network on each delivery.
	Hops uint32
	// Payload is the serialized request/response record (see the
	// kademlia package's wire.go for the concrete record types).
	Payload []byte
}

// Size returns the number of payload bytes this message would occupy on
// the wire, the quantity the network's per-link byte budget accounts
// against.
func (m Message) Size() int {
	return len(m.Payload)
}
