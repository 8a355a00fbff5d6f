package kademlia

import (
	"sort"

	"github.com/sid-code/dhtsim/key"
	"github.com/sid-code/dhtsim/message"
)

// OnBucketFullFunc is invoked when observing a new peer would overflow a
// full bucket. The owning KademliaNode resolves the challenge (by pinging
// front, the least-recently-seen incumbent) and reports back via
// RoutingTable.ResolveChallenge. Mirrors the teacher's SetPingFunc
// dependency-injection (routingtable.go's pingFunc), but asynchronous
// rather than blocking, since a ping here is a multi-tick retry-driven
// operation rather than a single call that can return a bool liveness
// answer on the spot.
type OnBucketFullFunc func(bucketIndex int, front, challenger BucketEntry)

// RoutingTable is the set of key.Bits k-buckets indexed by
// longest-matching-prefix length against the owner's own key. Grounded on
// the teacher's routingtable.go and original_source/kademlia/bucket.hpp's
// RoutingTable<A>, adapted to spec.md §3's async bucket-full challenge
// (the teacher's pingFunc returns a synchronous bool; the simulation's PING
// is multi-tick, so eviction here is two-phase: Observe defers to onFull,
// and the caller reports the outcome later through ResolveChallenge).
type RoutingTable struct {
	self    key.Key
	k       int
	buckets [key.Bits]*bucket
	onFull  OnBucketFullFunc
}

// NewRoutingTable builds an empty routing table for a node whose own key is
// self, with bucket capacity k.
func NewRoutingTable(self key.Key, k int) *RoutingTable {
	rt := &RoutingTable{self: self, k: k}
	for i := range rt.buckets {
		rt.buckets[i] = newBucket()
	}
	return rt
}

// SetOnBucketFull wires the liveness-challenge hook used when a bucket is
// full and a new peer is observed.
func (rt *RoutingTable) SetOnBucketFull(fn OnBucketFullFunc) { rt.onFull = fn }

// bucketIndex returns the bucket a peer key belongs in, or -1 if peerKey is
// the table owner's own key (which never appears in any bucket, spec.md
// §3's invariant).
func (rt *RoutingTable) bucketIndex(peerKey key.Key) int {
	i := key.LongestMatchingPrefix(rt.self, peerKey)
	if i == key.Bits {
		return -1
	}
	return i
}

// Observe records a sighting of peerKey at addr at the given epoch,
// implementing spec.md §4.3.2: hoist if already present, append if there is
// room, otherwise defer to the bucket-full challenge hook.
func (rt *RoutingTable) Observe(peerKey key.Key, addr message.Address, epoch uint64) {
	i := rt.bucketIndex(peerKey)
	if i < 0 {
		return
	}
	b := rt.buckets[i]
	entry := BucketEntry{Key: peerKey, Address: addr, LastSeen: epoch}

	if b.hoistIfPresent(entry) {
		return
	}
	if b.Len() < rt.k {
		b.append(entry)
		return
	}
	front, ok := b.Front()
	if !ok {
		b.append(entry)
		return
	}
	if rt.onFull != nil {
		rt.onFull(i, front, entry)
	}
}

// ResolveChallenge finishes the bucket-full eviction decision deferred by
// Observe: if front answered the liveness ping, it stays and challenger is
// dropped; otherwise front is evicted and challenger takes its place.
//
// Two challenges on the same bucket can coalesce onto one outstanding ping
// (kademlia.Node.ping coalesces by address), so this can run twice for the
// same front: the first resolution actually removes front and has room to
// append; the second finds front already gone and must not append on top of
// an already-full bucket, or the bucket would grow past k.
func (rt *RoutingTable) ResolveChallenge(bucketIndex int, front, challenger BucketEntry, frontAlive bool) {
	if bucketIndex < 0 || bucketIndex >= key.Bits {
		return
	}
	b := rt.buckets[bucketIndex]
	if frontAlive {
		return
	}
	if !b.removeByKey(front.Key) {
		return
	}
	b.append(challenger)
}

// Unobserve removes every entry with the given address from every bucket,
// used when a peer fails to reply (spec.md §4.3.2).
func (rt *RoutingTable) Unobserve(addr message.Address) {
	for _, b := range rt.buckets {
		b.removeByAddress(addr)
	}
}

// GetNearest returns up to n entries across all buckets closest to target by
// XOR distance, ascending, excluding any entry whose key equals exclude
// (spec.md §4.3.3).
func (rt *RoutingTable) GetNearest(n int, target, exclude key.Key) []BucketEntry {
	all := make([]BucketEntry, 0, rt.k)
	for _, b := range rt.buckets {
		all = append(all, b.Entries()...)
	}

	filtered := all[:0]
	for _, e := range all {
		if e.Key.Equal(exclude) {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Key.CloserTo(target, filtered[j].Key)
	})

	if n > len(filtered) {
		n = len(filtered)
	}
	return filtered[:n]
}

// BucketLen returns the number of entries in bucket i.
func (rt *RoutingTable) BucketLen(i int) int {
	if i < 0 || i >= key.Bits {
		return 0
	}
	return rt.buckets[i].Len()
}

// BucketEntries returns every entry in bucket i, least-recently-seen first.
func (rt *RoutingTable) BucketEntries(i int) []BucketEntry {
	if i < 0 || i >= key.Bits {
		return nil
	}
	return rt.buckets[i].Entries()
}

// NumBuckets returns the number of buckets in the table (always key.Bits).
func (rt *RoutingTable) NumBuckets() int { return len(rt.buckets) }
