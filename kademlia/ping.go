package kademlia

import (
	"github.com/sid-code/dhtsim/message"
	"github.com/sid-code/dhtsim/node"
)

// Ping implements spec.md §4.3.4: send PING to addr, coalescing with any
// ping already in flight to the same address. Either callback may be nil.
func (n *Node) Ping(addr message.Address, success PingSuccessFunc, failure PingFailureFunc) {
	n.ping(addr, success, failure)
}

func (n *Node) ping(addr message.Address, success PingSuccessFunc, failure PingFailureFunc) {
	if waiters, inFlight := n.pingInProgress[addr]; inFlight {
		n.pingInProgress[addr] = append(waiters, pingWaiter{success: success, failure: failure})
		return
	}
	n.pingInProgress[addr] = []pingWaiter{{success: success, failure: failure}}

	m := message.Message{
		Type:        message.Ping,
		Originator:  n.Base.GetAddress(),
		Destination: addr,
		Payload:     MarshalPing(PingMessage{IsPing: true, Sender: n.self}),
	}
	n.Base.Send(m,
		node.Callbacks{
			Success: []node.SuccessFunc{func(reply message.Message) { n.onPingReply(addr) }},
			Failure: []node.FailureFunc{func(orig message.Message) { n.onPingFailure(addr) }},
		},
		n.cfg.PingMaxRetries, n.cfg.PingTimeout,
	)
}

// onPingReply resolves every coalesced waiter on addr with success (spec.md
// §4.3.4: "on success, invoke all waiting success callbacks and clear the
// coalescing entry").
func (n *Node) onPingReply(addr message.Address) {
	waiters := n.pingInProgress[addr]
	delete(n.pingInProgress, addr)
	for _, w := range waiters {
		if w.success != nil {
			w.success()
		}
	}
}

// onPingFailure resolves every coalesced waiter on addr with failure and
// unobserves the unreachable peer.
func (n *Node) onPingFailure(addr message.Address) {
	waiters := n.pingInProgress[addr]
	delete(n.pingInProgress, addr)
	for _, w := range waiters {
		if w.failure != nil {
			w.failure()
		}
	}
	n.unobserve(addr)
}

// handlePing is the server side of spec.md §4.3.4: observe the sender, and
// if this is a request (not our own pong bouncing back), reply with a pong
// echoing the tag.
func (n *Node) handlePing(m message.Message) {
	pm, err := UnmarshalPing(m.Payload)
	if err != nil {
		n.logger.Warnw("malformed ping payload", "from", m.Originator, "error", err)
		return
	}
	n.observe(pm.Sender, m.Originator, n.Base.Epoch())

	if !pm.IsPing {
		return
	}

	reply := message.Message{
		Type:        message.Ping,
		Originator:  n.Base.GetAddress(),
		Destination: m.Originator,
		Tag:         m.Tag,
		Payload:     MarshalPing(PingMessage{IsPing: false, Sender: n.self}),
	}
	n.Base.Send(reply, node.Callbacks{}, 0, 0)
}
