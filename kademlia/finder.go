package kademlia

import (
	"sort"

	"github.com/sid-code/dhtsim/key"
	"github.com/sid-code/dhtsim/message"
	"github.com/sid-code/dhtsim/node"
)

// FindResult carries the outcome of a completed lookup: Nodes for a
// find_nodes success, or Value for a find_value success.
type FindResult struct {
	Nodes []BucketEntry
	Value []byte
}

// FindSuccessFunc is invoked once when a lookup completes successfully.
type FindSuccessFunc func(FindResult)

// FindFailureFunc is invoked once when a lookup completes without success
// (find_value found nothing; find_nodes never fails outright, see spec.md
// §4.3.5's termination rule).
type FindFailureFunc func()

// nodeFinder is the iterative-lookup state machine described in spec.md
// §3 and §4.3.5 and Design Notes ("represent each long-running operation...
// as a record in a map keyed by target... encode progress as discrete
// state transitions"). Exactly one is live per target on a given node.
type nodeFinder struct {
	target    key.Key
	findValue bool

	success []FindSuccessFunc
	failure []FindFailureFunc

	waiting     int
	uncontacted []BucketEntry
	contacted   []BucketEntry
	seen        map[key.Key]bool
}

// FindNodes starts (or joins) an iterative lookup for target, completing
// with the k nodes closest to target that responded.
func (n *Node) FindNodes(target key.Key, success FindSuccessFunc, failure FindFailureFunc) {
	n.find(target, false, success, failure)
}

// FindValue starts (or joins) an iterative lookup for target, completing
// with the stored value if any reachable node holds it.
func (n *Node) FindValue(target key.Key, success FindSuccessFunc, failure FindFailureFunc) {
	n.find(target, true, success, failure)
}

func (n *Node) find(target key.Key, findValue bool, success FindSuccessFunc, failure FindFailureFunc) {
	if f, exists := n.finders[target]; exists {
		// Coalescing (spec.md §4.3.5, S6): append to the existing finder's
		// callback set rather than issuing a second round of probes.
		if success != nil {
			f.success = append(f.success, success)
		}
		if failure != nil {
			f.failure = append(f.failure, failure)
		}
		return
	}

	f := &nodeFinder{
		target:    target,
		findValue: findValue,
		seen:      make(map[key.Key]bool),
	}
	if success != nil {
		f.success = append(f.success, success)
	}
	if failure != nil {
		f.failure = append(f.failure, failure)
	}
	n.finders[target] = f

	nearest := n.table.GetNearest(n.cfg.K, target, n.self)
	n.finderStep(f, nearest)
}

// finderStep folds newEntries into the frontier and issues probes up to the
// alpha concurrency cap, completing the finder once nothing remains
// uncontacted and no probe is outstanding. Unlike the source, where alpha is
// declared but never bounds simultaneous probes (spec.md's Design Notes),
// this explicitly caps outstanding probes at n.cfg.Alpha per finder.
func (n *Node) finderStep(f *nodeFinder, newEntries []BucketEntry) {
	for _, e := range newEntries {
		if e.Key.Equal(n.self) || f.seen[e.Key] {
			continue
		}
		f.seen[e.Key] = true
		f.uncontacted = append(f.uncontacted, e)
	}

	for f.waiting < n.cfg.Alpha && len(f.uncontacted) > 0 {
		sort.Slice(f.uncontacted, func(i, j int) bool {
			return f.uncontacted[i].Key.CloserTo(f.target, f.uncontacted[j].Key)
		})
		top := f.uncontacted[0]
		f.uncontacted = f.uncontacted[1:]

		f.waiting++
		n.sendFindProbe(f, top)
	}

	if len(f.uncontacted) == 0 && f.waiting == 0 {
		n.completeFinder(f)
	}
}

func (n *Node) sendFindProbe(f *nodeFinder, top BucketEntry) {
	m := message.Message{
		Type:        message.FindNodes,
		Originator:  n.Base.GetAddress(),
		Destination: top.Address,
		Payload: MarshalFindNodes(FindNodesMessage{
			Sender: n.self, IsRequest: true, FindValue: f.findValue, Target: f.target,
		}),
	}
	target := f.target
	n.Base.Send(m,
		node.Callbacks{
			Success: []node.SuccessFunc{func(reply message.Message) { n.onProbeReply(target, top, reply) }},
			Failure: []node.FailureFunc{func(orig message.Message) { n.onProbeFailure(target, top) }},
		},
		n.cfg.FindMaxRetries, n.cfg.FindTimeout,
	)
}

// onProbeReply handles a successful probe response (spec.md §4.3.5): the
// finder for target may already be gone if a concurrent value hit completed
// it first, in which case this is a late reply and a no-op.
func (n *Node) onProbeReply(target key.Key, top BucketEntry, reply message.Message) {
	f, ok := n.finders[target]
	if !ok {
		return
	}
	f.waiting--
	f.contacted = append(f.contacted, top)

	fm, err := UnmarshalFindNodes(reply.Payload)
	if err != nil {
		n.logger.Warnw("malformed find_nodes reply", "from", top.Address, "error", err)
		n.finderStep(f, nil)
		return
	}
	n.observe(fm.Sender, top.Address, n.Base.Epoch())

	if f.findValue && fm.ValueFound {
		n.completeFinderWithValue(f, fm.Value)
		return
	}
	n.finderStep(f, fm.Nearest)
}

// onProbeFailure handles a retry-exhausted probe: the unreachable peer is
// unobserved and the step machine continues with no new entries.
func (n *Node) onProbeFailure(target key.Key, top BucketEntry) {
	f, ok := n.finders[target]
	if !ok {
		return
	}
	f.waiting--
	n.unobserve(top.Address)
	n.finderStep(f, nil)
}

func (n *Node) completeFinder(f *nodeFinder) {
	delete(n.finders, f.target)

	if f.findValue {
		for _, fn := range f.failure {
			fn()
		}
		return
	}

	sorted := append([]BucketEntry(nil), f.contacted...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key.CloserTo(f.target, sorted[j].Key)
	})
	if len(sorted) > n.cfg.K {
		sorted = sorted[:n.cfg.K]
	}
	for _, fn := range f.success {
		fn(FindResult{Nodes: sorted})
	}
}

func (n *Node) completeFinderWithValue(f *nodeFinder, value []byte) {
	delete(n.finders, f.target)
	for _, fn := range f.success {
		fn(FindResult{Value: value})
	}
}

// handleFindNodes is the server side of spec.md §4.3.5: observe the sender,
// then for a request answer with a value hit (if find_value and the key is
// locally stored) or else the k nearest entries excluding the sender's own
// key. A non-request message (a reply, which reaches here after the base
// dispatch has already resolved its pending entry) is only observed and
// otherwise ignored.
func (n *Node) handleFindNodes(m message.Message) {
	fm, err := UnmarshalFindNodes(m.Payload)
	if err != nil {
		n.logger.Warnw("malformed find_nodes payload", "from", m.Originator, "error", err)
		return
	}
	n.observe(fm.Sender, m.Originator, n.Base.Epoch())

	if !fm.IsRequest {
		return
	}

	reply := FindNodesMessage{Sender: n.self, IsRequest: false, FindValue: fm.FindValue, Target: fm.Target}
	if fm.FindValue {
		if entry, ok := n.store[fm.Target]; ok {
			reply.ValueFound = true
			reply.Value = entry.value
		}
	}
	if !reply.ValueFound {
		reply.Nearest = n.table.GetNearest(n.cfg.K, fm.Target, fm.Sender)
	}

	out := message.Message{
		Type:        message.FindNodes,
		Originator:  n.Base.GetAddress(),
		Destination: m.Originator,
		Tag:         m.Tag,
		Payload:     MarshalFindNodes(reply),
	}
	n.Base.Send(out, node.Callbacks{}, 0, 0)
}
