package node

import (
	"go.uber.org/zap"

	"github.com/sid-code/dhtsim/message"
	"github.com/sid-code/dhtsim/rng"
)

// Ping-only message types, local to this demonstration node.
const (
	pingType message.Type = message.Ping
)

// PingOnlyNode is a minimal node built directly on BaseNode with no
// Kademlia logic at all: it only answers PING with a reply that echoes the
// request tag. It exists to exercise the base messaging layer (queueing,
// retry, reply correlation) in isolation, the same separation of concerns
// as original_source/pingonly.hpp's PingOnlyApplication.
type PingOnlyNode struct {
	Base BaseNode
}

// NewPingOnlyNode constructs a PingOnlyNode ready to be added to a network.
func NewPingOnlyNode(rngService *rng.Service, logger *zap.SugaredLogger) *PingOnlyNode {
	p := &PingOnlyNode{}
	p.Base.Init(p, rngService, logger)
	return p
}

// Tick, Recv, UnqueueOut, Requeue, SetAddress, GetAddress, Die satisfy
// network.Node by delegating to the embedded BaseNode.
func (p *PingOnlyNode) Tick(epoch uint64)                { p.Base.Tick(epoch) }
func (p *PingOnlyNode) Recv(m message.Message)           { p.Base.Recv(m) }
func (p *PingOnlyNode) UnqueueOut() (message.Message, bool) { return p.Base.UnqueueOut() }
func (p *PingOnlyNode) Requeue(m message.Message)        { p.Base.Requeue(m) }
func (p *PingOnlyNode) SetAddress(a message.Address)     { p.Base.SetAddress(a) }
func (p *PingOnlyNode) GetAddress() message.Address      { return p.Base.GetAddress() }
func (p *PingOnlyNode) Die()                             { p.Base.Die() }

// Payload markers distinguishing a ping request from its pong reply, since
// message.Message's payload is opaque to the base layer and each node type
// defines its own wire meaning for it (original_source/pingonly.hpp instead
// gives PM_PING/PM_PONG distinct type codes; a single shared Ping type with
// a one-byte payload keeps PingOnlyNode's wire surface trivial).
var (
	payloadPing = []byte{0}
	payloadPong = []byte{1}
)

// Ping sends a PING to other and waits for a pong, subject to the caller's
// retry budget.
func (p *PingOnlyNode) Ping(other message.Address, callbacks Callbacks, maxRetries uint32, timeout uint64) {
	m := message.Message{
		Type:        pingType,
		Originator:  p.Base.GetAddress(),
		Destination: other,
		Payload:     payloadPing,
	}
	p.Base.Send(m, callbacks, maxRetries, timeout)
}

// HandleMessage implements Handler: the base dispatch resolves any pending
// reply first (a pong arriving for an outstanding ping), then a ping
// request gets a pong reply echoing the same tag.
func (p *PingOnlyNode) HandleMessage(m message.Message) {
	p.Base.HandleMessage(m)
	if m.Type != pingType || len(m.Payload) == 0 || m.Payload[0] != payloadPing[0] {
		return
	}
	reply := message.Message{
		Type:        pingType,
		Originator:  p.Base.GetAddress(),
		Destination: m.Originator,
		Tag:         m.Tag,
		Payload:     payloadPong,
	}
	p.Base.Send(reply, Callbacks{}, 0, 0)
}
