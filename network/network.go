// Package network implements the centralized simulated network described in
// spec.md §4.1: a discrete-tick scheduler that owns every inhabitant's
// address, delivers queued outbound messages subject to a per-link byte
// budget, and advances every inhabitant once per tick in a fixed,
// deterministic order.
//
// Grounded on original_source/network.hpp and network.cpp's
// CentralizedNetwork<A>::tick(); the teacher (adityasissodiya-d7024e) talks
// to real UDP sockets instead and has no equivalent component, so this file
// follows the C++ original's per-link accounting, diverging from it only
// where spec.md §4.1 is explicit and the C++ is a looser simplification (see
// the oversized-message handling below).
package network

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sid-code/dhtsim/message"
	"github.com/sid-code/dhtsim/rng"
)

// Node is anything the network can host: an address, an inbound/outbound
// queue, and a per-tick advance. BaseNode (package node) provides this, and
// every node type in the simulation (PingOnlyNode, kademlia.Node) embeds it.
type Node interface {
	Tick(epoch uint64)
	Recv(m message.Message)
	UnqueueOut() (message.Message, bool)
	Requeue(m message.Message)
	SetAddress(a message.Address)
	GetAddress() message.Address
	Die()
}

// maxAddressAttempts bounds the rejection-sampling loop in Add: once the
// address space is this close to exhausted, further random sampling is a
// poor use of time and Add reports failure instead of spinning.
const maxAddressAttempts = 1000

// DefaultLinkLimit is the per-link byte budget used when Config.LinkLimit is
// zero, matching spec.md §6's "link_limit" default.
const DefaultLinkLimit = 1 << 16

// Config controls Network construction (spec.md §6's network-wide CLI
// options).
type Config struct {
	// LinkLimit is the maximum number of payload bytes one sender delivers to
	// a single destination address in one tick. Zero selects DefaultLinkLimit.
	LinkLimit int
}

// Network is the centralized simulated network: it owns address assignment
// and per-tick delivery for every inhabitant added to it.
type Network struct {
	inhabitants map[message.Address]Node
	epoch       uint64
	linkLimit   int

	rng    *rng.Service
	logger *zap.SugaredLogger
}

// New constructs an empty Network. rngService drives address assignment and
// must not be nil. logger may be nil, in which case a no-op logger is used.
func New(cfg Config, rngService *rng.Service, logger *zap.SugaredLogger) *Network {
	limit := cfg.LinkLimit
	if limit == 0 {
		limit = DefaultLinkLimit
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Network{
		inhabitants: make(map[message.Address]Node),
		linkLimit:   limit,
		rng:         rngService,
		logger:      logger,
	}
}

// Epoch returns the tick count already completed.
func (net *Network) Epoch() uint64 { return net.epoch }

// Len returns the number of inhabitants currently on the network.
func (net *Network) Len() int { return len(net.inhabitants) }

// Get returns the inhabitant at addr, if any.
func (net *Network) Get(addr message.Address) (Node, bool) {
	n, ok := net.inhabitants[addr]
	return n, ok
}

// Addresses returns every inhabitant's address in ascending order.
func (net *Network) Addresses() []message.Address {
	addrs := make([]message.Address, 0, len(net.inhabitants))
	for a := range net.inhabitants {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Add assigns node a fresh address drawn uniformly from the non-zero
// uint32 range, via rejection sampling against addresses already in use,
// and registers it as an inhabitant. It returns the assigned address, or 0
// if no free address could be found within maxAddressAttempts tries (which
// in practice only happens when the address space is nearly saturated).
func (net *Network) Add(node Node) message.Address {
	for attempt := 0; attempt < maxAddressAttempts; attempt++ {
		addr := message.Address(net.rng.Uint32())
		if addr == 0 {
			continue
		}
		if _, taken := net.inhabitants[addr]; taken {
			continue
		}
		node.SetAddress(addr)
		net.inhabitants[addr] = node
		return addr
	}
	net.logger.Errorw("exhausted address attempts adding inhabitant", "attempts", maxAddressAttempts)
	return 0
}

// Remove marks addr's inhabitant dead and drops it from the network; later
// messages addressed to it are silently discarded as undeliverable (spec.md
// §7, error kind 1).
func (net *Network) Remove(addr message.Address) {
	if n, ok := net.inhabitants[addr]; ok {
		n.Die()
		delete(net.inhabitants, addr)
	}
}

// Tick advances the simulation by one epoch: every inhabitant is ticked in
// ascending-address order (the fixed order spec.md's Determinism design
// note requires), and each inhabitant's outbound queue is then drained and
// delivered subject to the per-destination-link byte budget for this tick.
func (net *Network) Tick() {
	net.epoch++

	addrs := net.Addresses()
	for _, addr := range addrs {
		if n, ok := net.inhabitants[addr]; ok {
			n.Tick(net.epoch)
		}
	}

	totalBytes := 0
	for _, addr := range addrs {
		sender, ok := net.inhabitants[addr]
		if !ok {
			continue
		}
		totalBytes += net.drain(sender)
	}

	net.logger.Infow(fmt.Sprintf("[E] T %d %d", net.epoch, totalBytes),
		"epoch", net.epoch, "bytes", totalBytes)
}

// drain delivers sender's outbound queue for this tick, tracking a separate
// byte budget per destination address (spec.md §4.1): a message that would
// push a destination's running total past the per-link limit is re-enqueued
// on sender verbatim and draining halts for sender this tick, leaving the
// rest of its outbound queue for the next tick. A single message that
// already exceeds the limit by itself can never be delivered whole, so it
// is dropped with a diagnostic and draining continues with the next message
// (original_source/network.cpp instead breaks out of the whole drain loop
// on an oversized message; spec.md §4.1 is explicit that only the
// offending message is dropped, so that is what this follows).
func (net *Network) drain(sender Node) int {
	perLink := make(map[message.Address]int)
	delivered := 0

	for {
		m, ok := sender.UnqueueOut()
		if !ok {
			return delivered
		}

		size := m.Size()
		if size > net.linkLimit {
			net.logger.Warnw("dropped oversized message",
				"from", m.Originator, "to", m.Destination, "type", m.Type, "bytes", size, "limit", net.linkLimit)
			continue
		}

		if perLink[m.Destination]+size > net.linkLimit {
			sender.Requeue(m)
			return delivered
		}

		dest, ok := net.inhabitants[m.Destination]
		if !ok {
			net.logger.Warnw("dropped undeliverable message",
				"from", m.Originator, "to", m.Destination, "type", m.Type)
			continue
		}

		m.Hops++
		dest.Recv(m)
		perLink[m.Destination] += size
		delivered += size
	}
}
