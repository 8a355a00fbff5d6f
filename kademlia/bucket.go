package kademlia

import (
	"container/list"

	"github.com/sid-code/dhtsim/key"
	"github.com/sid-code/dhtsim/message"
)

// BucketEntry is one routing-table entry: a peer's key, its current network
// address, and the epoch it was last seen at. Grounded on spec.md §3's
// BucketEntry and original_source/kademlia/bucket.hpp's routing_table_entry.
type BucketEntry struct {
	Key      key.Key
	Address  message.Address
	LastSeen uint64
}

// bucket is a k-bucket: an ordered list of BucketEntry, front to back in
// least-recently-seen to most-recently-seen order (spec.md §3). The teacher
// (adityasissodiya-d7024e's bucket.go) also builds its bucket on
// container/list for O(1) hoist-to-front/back and mid-list removal; this
// keeps that shape but drops the teacher's replacement cache and locking,
// neither of which the spec calls for (the routing table is single-owner
// and single-threaded here, see spec.md §5).
type bucket struct {
	list *list.List
}

func newBucket() *bucket {
	return &bucket{list: list.New()}
}

// Len returns the number of entries currently in the bucket.
func (b *bucket) Len() int { return b.list.Len() }

// Front returns the least-recently-seen entry, if any.
func (b *bucket) Front() (BucketEntry, bool) {
	e := b.list.Front()
	if e == nil {
		return BucketEntry{}, false
	}
	return e.Value.(BucketEntry), true
}

// Entries returns every entry, front (least-recently-seen) to back
// (most-recently-seen).
func (b *bucket) Entries() []BucketEntry {
	out := make([]BucketEntry, 0, b.list.Len())
	for e := b.list.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(BucketEntry))
	}
	return out
}

// hoistIfPresent removes any existing entry with entry.Key and re-appends
// entry at the back (most-recently-seen), reporting whether one was found.
func (b *bucket) hoistIfPresent(entry BucketEntry) bool {
	for e := b.list.Front(); e != nil; e = e.Next() {
		if e.Value.(BucketEntry).Key.Equal(entry.Key) {
			b.list.Remove(e)
			b.list.PushBack(entry)
			return true
		}
	}
	return false
}

// append pushes entry onto the back (most-recently-seen) of the bucket.
func (b *bucket) append(entry BucketEntry) {
	b.list.PushBack(entry)
}

// removeByKey removes the first entry whose key matches, if any, reporting
// whether an entry was actually removed.
func (b *bucket) removeByKey(k key.Key) bool {
	for e := b.list.Front(); e != nil; e = e.Next() {
		if e.Value.(BucketEntry).Key.Equal(k) {
			b.list.Remove(e)
			return true
		}
	}
	return false
}

// removeByAddress removes every entry whose address matches (spec.md
// §4.3.2's unobserve operates on address, since a dead peer's key may not be
// known to every caller).
func (b *bucket) removeByAddress(addr message.Address) {
	for e := b.list.Front(); e != nil; {
		next := e.Next()
		if e.Value.(BucketEntry).Address == addr {
			b.list.Remove(e)
		}
		e = next
	}
}
