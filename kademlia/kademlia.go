// Package kademlia implements the KademliaNode described in spec.md §4.3:
// k-bucket routing, iterative FIND_NODES/FIND_VALUE lookup, PING, STORE,
// and periodic republication/bucket-refresh maintenance, built on top of
// the node package's BaseNode messaging layer.
//
// Grounded throughout on the teacher's kademlia.go/routingtable.go/bucket.go
// (adityasissodiya-d7024e) for Go shape and naming, and on
// original_source/kademlia/kademlia.cpp for the exact protocol semantics the
// teacher's repo doesn't implement (FIND_VALUE, STORE, republication, bucket
// refresh, the async bucket-eviction challenge).
package kademlia

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sid-code/dhtsim/key"
	"github.com/sid-code/dhtsim/message"
	"github.com/sid-code/dhtsim/node"
	"github.com/sid-code/dhtsim/rng"
)

// Config holds the tunables enumerated in spec.md §4.3.9 and §6.
type Config struct {
	K                   int
	Alpha               int
	MaintenancePeriod   uint64
	BucketRefreshPeriod uint64
	DefaultTimeout      uint64
	BackoffFactor       int

	// PingTimeout/PingMaxRetries govern both user-initiated pings and the
	// bucket-eviction liveness challenge (spec.md §4.3.4: "timeout = 2,
	// max_retries = 1").
	PingTimeout    uint64
	PingMaxRetries uint32

	// FindTimeout/FindMaxRetries govern each probe issued by the iterative
	// lookup (spec.md §4.3.5).
	FindTimeout    uint64
	FindMaxRetries uint32
}

// DefaultConfig returns the defaults from spec.md §4.3.9.
func DefaultConfig() Config {
	return Config{
		K:                   20,
		Alpha:               3,
		MaintenancePeriod:   10000,
		BucketRefreshPeriod: 1000,
		DefaultTimeout:      node.DefaultTimeout,
		BackoffFactor:       node.DefaultBackoffFactor,
		PingTimeout:         2,
		PingMaxRetries:      1,
		FindTimeout:         2,
		FindMaxRetries:      1,
	}
}

// tableEntry is a locally stored value (spec.md §3's TableEntry).
type tableEntry struct {
	value      []byte
	added      uint64
	lastTouch  uint64
}

// pingWaiter is one caller's interest in the outcome of an in-flight ping,
// coalesced with every other waiter on the same destination address
// (spec.md §3's PingInProgress).
type pingWaiter struct {
	success PingSuccessFunc
	failure PingFailureFunc
}

// PingSuccessFunc is invoked when a ping this node initiated succeeds.
type PingSuccessFunc func()

// PingFailureFunc is invoked when a ping this node initiated exhausts its
// retries without a reply.
type PingFailureFunc func()

// Node is a full Kademlia participant: the embedded BaseNode provides
// queueing/retry/reply-correlation, and Node adds the routing table,
// iterative lookup, local storage, and maintenance on top, satisfying
// network.Node and node.Handler.
type Node struct {
	Base node.BaseNode

	cfg  Config
	self key.Key

	table          *RoutingTable
	store          map[key.Key]*tableEntry
	finders        map[key.Key]*nodeFinder
	pingInProgress map[message.Address][]pingWaiter

	maintenanceOffset uint64
	replacements      int

	rng    *rng.Service
	logger *zap.SugaredLogger
}

// New constructs a Kademlia node. Its key is derived by hashing a random
// 64-bit value drawn from rngService (spec.md §4.3.1); its maintenance
// offset is drawn uniformly from [0, cfg.MaintenancePeriod) so that nodes
// stagger their periodic work.
func New(cfg Config, rngService *rng.Service, logger *zap.SugaredLogger) *Node {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var seed [8]byte
	v := rngService.Uint64()
	for i := 0; i < 8; i++ {
		seed[i] = byte(v >> (8 * uint(i)))
	}
	self := key.FromBytes(seed[:])

	offset := uint64(0)
	if cfg.MaintenancePeriod > 0 {
		offset = uint64(rngService.Intn(int(cfg.MaintenancePeriod)))
	}

	n := &Node{
		cfg:               cfg,
		self:              self,
		store:             make(map[key.Key]*tableEntry),
		finders:           make(map[key.Key]*nodeFinder),
		pingInProgress:    make(map[message.Address][]pingWaiter),
		maintenanceOffset: offset,
		rng:               rngService,
		logger:            logger,
	}
	n.table = NewRoutingTable(self, cfg.K)
	n.table.SetOnBucketFull(n.challengeBucketFront)
	n.Base.Init(n, rngService, logger)
	return n
}

// Key returns this node's 160-bit identity.
func (n *Node) Key() key.Key { return n.self }

// Table exposes the routing table, mainly for tests and the experiment
// harness's topology inspection.
func (n *Node) Table() *RoutingTable { return n.table }

// Replacements returns the number of bucket-eviction challenges this node
// has resolved in favor of the challenger, for the experiment harness's
// summary reporting (spec.md §6's "[E] ... R" replace tally).
func (n *Node) Replacements() int { return n.replacements }

// network.Node delegation: Node's own identity and liveness live on the
// embedded BaseNode.
func (n *Node) Recv(m message.Message)                  { n.Base.Recv(m) }
func (n *Node) UnqueueOut() (message.Message, bool)     { return n.Base.UnqueueOut() }
func (n *Node) Requeue(m message.Message)               { n.Base.Requeue(m) }
func (n *Node) SetAddress(a message.Address)            { n.Base.SetAddress(a) }
func (n *Node) GetAddress() message.Address             { return n.Base.GetAddress() }
func (n *Node) Die()                                    { n.Base.Die() }

// Tick drains and dispatches inbound messages through the base layer (which
// calls back into HandleMessage), then runs periodic maintenance.
func (n *Node) Tick(epoch uint64) {
	n.Base.Tick(epoch)
	if !n.Base.Alive() {
		return
	}
	n.runMaintenance(epoch)
}

// observe implements spec.md §4.3.2: every inbound message with an
// identifiable sender triggers this before any type-specific handling.
func (n *Node) observe(senderKey key.Key, addr message.Address, epoch uint64) {
	n.table.Observe(senderKey, addr, epoch)
}

// unobserve implements spec.md §4.3.2's companion: remove every trace of a
// peer that failed to reply.
func (n *Node) unobserve(addr message.Address) {
	n.table.Unobserve(addr)
}

// challengeBucketFront is RoutingTable's OnBucketFullFunc: it pings the
// incumbent and reports the outcome back via ResolveChallenge once the ping
// resolves (spec.md §4.3.2's "PING the front entry" eviction rule).
func (n *Node) challengeBucketFront(bucketIndex int, front, challenger BucketEntry) {
	n.ping(front.Address,
		func() { n.table.ResolveChallenge(bucketIndex, front, challenger, true) },
		func() {
			n.table.ResolveChallenge(bucketIndex, front, challenger, false)
			n.replacements++
			n.logEvent("R", "bucket", bucketIndex, "evicted", front.Address, "replaced_by", challenger.Address)
		},
	)
}

// HandleMessage implements node.Handler: the base dispatch resolves any
// pending reply first, then this adds the protocol-specific handling
// (spec.md §4.2's "subclasses override to add protocol-specific handling").
func (n *Node) HandleMessage(m message.Message) {
	n.Base.HandleMessage(m)

	switch m.Type {
	case message.Ping:
		n.handlePing(m)
	case message.FindNodes:
		n.handleFindNodes(m)
	case message.Store:
		n.handleStore(m)
	default:
		n.logger.Warnw("dropped message with unrecognized type", "type", m.Type, "from", m.Originator)
	}
}

func (n *Node) logEvent(tag string, args ...interface{}) {
	n.logger.Infow(fmt.Sprintf("[E] %s", tag), args...)
}
