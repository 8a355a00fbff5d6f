package kademlia

import (
	"github.com/sid-code/dhtsim/key"
	"github.com/sid-code/dhtsim/message"
	"github.com/sid-code/dhtsim/node"
)

// GetSuccessFunc is invoked with the stored value on a successful GET.
type GetSuccessFunc func(value []byte)

// GetFailureFunc is invoked when GET finds no reachable holder of the key.
type GetFailureFunc func()

// KeyOf derives the content-addressed key a value would be stored under
// (spec.md §6's DHT node interface: key_of(value) = SHA1(value)).
func KeyOf(value []byte) key.Key { return key.FromBytes(value) }

// Put implements spec.md §4.3.6: it returns the content-addressed key
// immediately and broadcasts STORE to the nodes the ensuing find_nodes
// lookup returns, asynchronously and best-effort (a failed broadcast is not
// observable here; see spec.md §7's error-handling design).
func (n *Node) Put(value []byte) key.Key {
	k := KeyOf(value)
	n.FindNodes(k, func(res FindResult) {
		for _, e := range res.Nodes {
			n.sendStore(e.Address, value)
		}
	}, nil)
	return k
}

func (n *Node) sendStore(addr message.Address, value []byte) {
	m := message.Message{
		Type:        message.Store,
		Originator:  n.Base.GetAddress(),
		Destination: addr,
		Payload:     MarshalStore(StoreMessage{IsRequest: true, Sender: n.self, Value: value}),
	}
	n.Base.Send(m, node.Callbacks{}, 0, 0)
}

// Get implements spec.md §4.3.7: find_value(key) where a value hit
// translates to success and any other outcome translates to failure.
func (n *Node) Get(k key.Key, success GetSuccessFunc, failure GetFailureFunc) {
	n.FindValue(k, func(res FindResult) {
		if success != nil {
			success(res.Value)
		}
	}, func() {
		if failure != nil {
			failure()
		}
	})
}

// handleStore is the server side of spec.md §4.3.6: observe the sender,
// and for a request, insert or refresh the local entry and reply with an
// empty acknowledgment.
func (n *Node) handleStore(m message.Message) {
	sm, err := UnmarshalStore(m.Payload)
	if err != nil {
		n.logger.Warnw("malformed store payload", "from", m.Originator, "error", err)
		return
	}
	n.observe(sm.Sender, m.Originator, n.Base.Epoch())

	if !sm.IsRequest {
		return
	}

	k := KeyOf(sm.Value)
	epoch := n.Base.Epoch()
	if entry, ok := n.store[k]; ok {
		entry.lastTouch = epoch
	} else {
		n.store[k] = &tableEntry{value: sm.Value, added: epoch, lastTouch: epoch}
	}

	reply := message.Message{
		Type:        message.Store,
		Originator:  n.Base.GetAddress(),
		Destination: m.Originator,
		Tag:         m.Tag,
		Payload:     MarshalStore(StoreMessage{IsRequest: false, Sender: n.self}),
	}
	n.Base.Send(reply, node.Callbacks{}, 0, 0)
}
