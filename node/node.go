// Package node provides BaseNode, the messaging layer every node type in
// the simulation inherits: outbound/inbound queueing, reply correlation by
// tag, timeout with exponential-backoff retry, and success/failure callback
// dispatch.
//
// Grounded on original_source/base.hpp's BaseApplication<A> and the
// teacher's network.go inflight-map bookkeeping (adityasissodiya-d7024e),
// adapted from real-UDP request/response waiting to tick-driven queues, per
// spec.md §4.2.
package node

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sid-code/dhtsim/message"
	"github.com/sid-code/dhtsim/rng"
)

// Defaults from spec.md §4.3.9.
const (
	DefaultTimeout       = 20
	DefaultMaxRetries    = 16
	DefaultBackoffFactor = 2
	DefaultQueueLimit    = 1 << 15
)

// SuccessFunc is invoked at most once per pending reply, with the reply
// message, when a matching tag arrives before retries are exhausted.
type SuccessFunc func(message.Message)

// FailureFunc is invoked at most once per pending reply, with the original
// outbound message, when retries are exhausted without a matching reply.
type FailureFunc func(message.Message)

// Callbacks is a coalescible set of success/failure functions, mirroring
// original_source/callback.hpp's CallbackSet: multiple callers waiting on
// the same outcome (e.g. a coalesced ping) all get invoked.
type Callbacks struct {
	Success []SuccessFunc
	Failure []FailureFunc
}

// OnSuccess builds a Callbacks with a single success function.
func OnSuccess(fn SuccessFunc) Callbacks { return Callbacks{Success: []SuccessFunc{fn}} }

// OnFailure builds a Callbacks with a single failure function.
func OnFailure(fn FailureFunc) Callbacks { return Callbacks{Failure: []FailureFunc{fn}} }

// Append merges other's functions into c.
func (c *Callbacks) Append(other Callbacks) {
	c.Success = append(c.Success, other.Success...)
	c.Failure = append(c.Failure, other.Failure...)
}

// Empty reports whether c has neither success nor failure functions
// registered (BaseNode.Send treats an empty Callbacks as fire-and-forget:
// no pending-reply entry is created).
func (c Callbacks) Empty() bool {
	return len(c.Success) == 0 && len(c.Failure) == 0
}

func (c Callbacks) resolveSuccess(m message.Message) {
	for _, fn := range c.Success {
		fn(m)
	}
}

func (c Callbacks) resolveFailure(m message.Message) {
	for _, fn := range c.Failure {
		fn(m)
	}
}

// sentMessage is a pending-reply record, keyed by tag in BaseNode.pending.
// Grounded on original_source/base.hpp's SentMessage.
type sentMessage struct {
	message    message.Message
	callbacks  Callbacks
	timeSent   uint64
	nextSend   uint64
	interval   uint64
	retries    uint32
	maxRetries uint32
}

// Handler receives fully-dispatched inbound messages. BaseNode.Tick calls
// Handler.HandleMessage for every message it drains from the inbound queue;
// a concrete node type (e.g. kademlia.Node) implements this to add
// protocol-specific handling on top of the base reply-correlation dispatch,
// the Go equivalent of original_source's virtual handleMessage override.
type Handler interface {
	HandleMessage(m message.Message)
}

// BaseNode implements the uniform send/recv/retry semantics described in
// spec.md §4.2. It is meant to be embedded by a concrete node type, which
// calls Init to register itself as the Handler.
type BaseNode struct {
	address    message.Address
	epoch      uint64
	dead       bool
	inQueue    []message.Message
	outQueue   []message.Message
	pending    map[uint64]*sentMessage
	queueLimit int
	backoff    int

	handler Handler
	logger  *zap.SugaredLogger
	rng     *rng.Service
}

// Init wires handler as the recipient of dispatched inbound messages and
// must be called once before the node is used. logger may be nil, in which
// case a no-op logger is used.
func (n *BaseNode) Init(handler Handler, rngService *rng.Service, logger *zap.SugaredLogger) {
	n.handler = handler
	n.rng = rngService
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	n.logger = logger
	n.pending = make(map[uint64]*sentMessage)
	n.queueLimit = DefaultQueueLimit
	n.backoff = DefaultBackoffFactor
}

// SetAddress assigns this node's network address. Called by network.Network
// on Add.
func (n *BaseNode) SetAddress(a message.Address) { n.address = a }

// GetAddress returns this node's current network address.
func (n *BaseNode) GetAddress() message.Address { return n.address }

// Die marks the node dead: Send immediately fails, Tick becomes a no-op.
func (n *BaseNode) Die() { n.dead = true }

// Alive reports whether Die has not been called.
func (n *BaseNode) Alive() bool { return !n.dead }

// Epoch returns the last tick epoch this node observed.
func (n *BaseNode) Epoch() uint64 { return n.epoch }

// Recv pushes an inbound message onto the inbound queue, dropping it with a
// diagnostic if the queue is full (spec.md §7, error kind 2).
func (n *BaseNode) Recv(m message.Message) {
	if len(n.inQueue) >= n.queueLimit {
		n.logger.Warnw("inbound queue full, dropping message",
			"address", n.address, "from", m.Originator, "type", m.Type)
		return
	}
	n.inQueue = append(n.inQueue, m)
}

// UnqueueOut pops the next outbound message, if any. Called by the network
// while draining this node's outbound queue for the current tick.
func (n *BaseNode) UnqueueOut() (message.Message, bool) {
	if len(n.outQueue) == 0 {
		return message.Message{}, false
	}
	m := n.outQueue[0]
	n.outQueue = n.outQueue[1:]
	return m, true
}

// Requeue pushes a message back onto the back of the outbound queue
// verbatim. The network calls this when a message would overflow the
// per-link byte budget for this tick (spec.md §4.1).
func (n *BaseNode) Requeue(m message.Message) {
	n.outQueue = append(n.outQueue, m)
}

func (n *BaseNode) enqueueOut(m message.Message) {
	if len(n.outQueue) >= n.queueLimit {
		n.logger.Warnw("outbound queue full, dropping message",
			"address", n.address, "to", m.Destination, "type", m.Type)
		return
	}
	n.outQueue = append(n.outQueue, m)
}

// Send enqueues m for delivery. If callbacks is non-empty, a pending-reply
// record is created keyed by m.Tag (assigning a fresh random tag if m.Tag is
// zero); a timeoutTicks of zero substitutes the spec default
// (DefaultTimeout), while a maxRetries of zero is not substituted (it is a literal
// zero-retry budget and is passed through, matching ping's max_retries=1
// convention of an explicit non-default value. Callers wanting the spec
// default of 16 should pass DefaultMaxRetries explicitly).
func (n *BaseNode) Send(m message.Message, callbacks Callbacks, maxRetries uint32, timeoutTicks uint64) {
	if n.dead {
		callbacks.resolveFailure(m)
		return
	}
	if m.Tag == 0 {
		m.Tag = n.rng.Uint64()
	}
	if timeoutTicks == 0 {
		timeoutTicks = DefaultTimeout
	}
	if !callbacks.Empty() {
		n.pending[m.Tag] = &sentMessage{
			message:    m,
			callbacks:  callbacks,
			timeSent:   n.epoch,
			nextSend:   n.epoch + timeoutTicks,
			interval:   timeoutTicks,
			retries:    0,
			maxRetries: maxRetries,
		}
	}
	n.enqueueOut(m)
}

// resend re-enqueues the message of an existing pending entry without
// creating a new callback registration (a retry).
func (n *BaseNode) resend(m message.Message) {
	n.enqueueOut(m)
}

// Tick advances this node by one epoch: it drains the inbound queue through
// the registered Handler, then sweeps the pending-reply map for timed-out
// entries, retrying or failing each per spec.md §4.2.
func (n *BaseNode) Tick(epoch uint64) {
	n.epoch = epoch
	if n.dead {
		return
	}

	for len(n.inQueue) > 0 {
		m := n.inQueue[0]
		n.inQueue = n.inQueue[1:]
		n.handler.HandleMessage(m)
	}

	n.sweepPending()
}

// sweepPending walks pending replies in ascending-tag order (a deterministic
// order, so that repeated runs with the same RNG seed behave identically)
// and retries or fails each overdue entry.
func (n *BaseNode) sweepPending() {
	if len(n.pending) == 0 {
		return
	}
	tags := make([]uint64, 0, len(n.pending))
	for tag := range n.pending {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	for _, tag := range tags {
		sm, ok := n.pending[tag]
		if !ok || n.epoch < sm.nextSend {
			continue
		}
		if sm.retries < sm.maxRetries {
			n.resend(sm.message)
			sm.timeSent = n.epoch
			// nextSend = epoch + interval*backoff, per spec.md §4.2's formula
			// and the original's retry(). For timeout=2, max_retries=1 this
			// puts final failure at send+6 (retry at +2, fail at +2+2*2),
			// not the send+4 the ping-dead scenario narrates; the formula is
			// the authoritative spec text, so this is a spec-internal
			// inconsistency, not a bug here.
			sm.nextSend = n.epoch + sm.interval*uint64(n.backoff)
			sm.interval = sm.interval * uint64(n.backoff)
			sm.retries++
		} else {
			delete(n.pending, tag)
			sm.callbacks.resolveFailure(sm.message)
		}
	}
}

// HandleMessage is the base dispatch described in spec.md §4.2: it looks up
// m.Tag in the pending map and, if present, invokes the success callback
// and removes the entry. A concrete node type's Handler implementation
// calls this first, then adds protocol-specific handling.
func (n *BaseNode) HandleMessage(m message.Message) {
	sm, ok := n.pending[m.Tag]
	if !ok {
		return
	}
	delete(n.pending, m.Tag)
	sm.callbacks.resolveSuccess(m)
}
