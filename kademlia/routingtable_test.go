package kademlia

import (
	"testing"

	"github.com/sid-code/dhtsim/key"
)

func keyWithPrefixBit(prefixLen int, tailByte byte) key.Key {
	var k key.Key
	if prefixLen < key.Bits {
		byteIdx := prefixLen / 8
		bitIdx := uint(prefixLen % 8)
		k[byteIdx] = 0x80 >> bitIdx
	}
	k[key.Length-1] = tailByte
	return k
}

// P2 — bucket invariant: every entry's prefix-match length with the owner
// equals the bucket index it lives in.
func TestObserveBucketInvariant(t *testing.T) {
	var self key.Key
	rt := NewRoutingTable(self, 20)

	peerKey := keyWithPrefixBit(5, 1)
	rt.Observe(peerKey, 100, 1)

	i := key.LongestMatchingPrefix(self, peerKey)
	entries := rt.BucketEntries(i)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry in bucket %d, got %d", i, len(entries))
	}
	if got := key.LongestMatchingPrefix(self, entries[0].Key); got != i {
		t.Fatalf("bucket invariant violated: entry's prefix match %d != bucket index %d", got, i)
	}
}

func TestObserveIgnoresSelf(t *testing.T) {
	var self key.Key
	rt := NewRoutingTable(self, 20)
	rt.Observe(self, 1, 1)

	for i := 0; i < rt.NumBuckets(); i++ {
		if rt.BucketLen(i) != 0 {
			t.Fatalf("self-observation must never be stored, found entry in bucket %d", i)
		}
	}
}

// P3 — bucket capacity: a full bucket defers to the onFull hook instead of
// growing past k.
func TestObserveDefersWhenBucketFull(t *testing.T) {
	var self key.Key
	rt := NewRoutingTable(self, 2)

	var challengeCalls int
	var gotIndex int
	var gotFront, gotChallenger BucketEntry
	rt.SetOnBucketFull(func(idx int, front, challenger BucketEntry) {
		challengeCalls++
		gotIndex = idx
		gotFront = front
		gotChallenger = challenger
	})

	i := 7
	k1 := keyWithPrefixBit(i, 1)
	k2 := keyWithPrefixBit(i, 2)
	k3 := keyWithPrefixBit(i, 3)

	rt.Observe(k1, 1, 1)
	rt.Observe(k2, 2, 2)
	if rt.BucketLen(i) != 2 {
		t.Fatalf("expected bucket to fill to capacity 2, got %d", rt.BucketLen(i))
	}

	rt.Observe(k3, 3, 3)
	if challengeCalls != 1 {
		t.Fatalf("expected exactly one bucket-full challenge, got %d", challengeCalls)
	}
	if gotIndex != i {
		t.Fatalf("challenge fired for wrong bucket: got %d want %d", gotIndex, i)
	}
	if !gotFront.Key.Equal(k1) {
		t.Fatalf("expected the least-recently-seen entry (k1) to be challenged")
	}
	if !gotChallenger.Key.Equal(k3) {
		t.Fatalf("expected k3 to be the challenger")
	}
	if rt.BucketLen(i) != 2 {
		t.Fatalf("bucket must not grow past capacity while a challenge is pending")
	}
}

// S3 — bucket eviction: incumbent survives a successful challenge; a failed
// challenge evicts it in favor of the challenger.
func TestResolveChallengeIncumbentSurvives(t *testing.T) {
	var self key.Key
	rt := NewRoutingTable(self, 1)
	i := 3
	front := BucketEntry{Key: keyWithPrefixBit(i, 1), Address: 1, LastSeen: 1}
	challenger := BucketEntry{Key: keyWithPrefixBit(i, 2), Address: 2, LastSeen: 2}
	rt.Observe(front.Key, front.Address, front.LastSeen)

	rt.ResolveChallenge(i, front, challenger, true)

	entries := rt.BucketEntries(i)
	if len(entries) != 1 || !entries[0].Key.Equal(front.Key) {
		t.Fatalf("expected incumbent to survive, got %v", entries)
	}
}

func TestResolveChallengeEvictsDeadIncumbent(t *testing.T) {
	var self key.Key
	rt := NewRoutingTable(self, 1)
	i := 3
	front := BucketEntry{Key: keyWithPrefixBit(i, 1), Address: 1, LastSeen: 1}
	challenger := BucketEntry{Key: keyWithPrefixBit(i, 2), Address: 2, LastSeen: 2}
	rt.Observe(front.Key, front.Address, front.LastSeen)

	rt.ResolveChallenge(i, front, challenger, false)

	entries := rt.BucketEntries(i)
	if len(entries) != 1 || !entries[0].Key.Equal(challenger.Key) {
		t.Fatalf("expected challenger to replace dead incumbent, got %v", entries)
	}
}

func TestUnobserveRemovesAcrossBuckets(t *testing.T) {
	var self key.Key
	rt := NewRoutingTable(self, 20)
	rt.Observe(keyWithPrefixBit(1, 1), 5, 1)
	rt.Observe(keyWithPrefixBit(2, 1), 5, 1)

	rt.Unobserve(5)

	for i := 0; i < rt.NumBuckets(); i++ {
		for _, e := range rt.BucketEntries(i) {
			if e.Address == 5 {
				t.Fatalf("expected address 5 fully removed, still present in bucket %d", i)
			}
		}
	}
}

func TestGetNearestSortsByDistance(t *testing.T) {
	var self key.Key
	rt := NewRoutingTable(self, 20)

	target := keyWithPrefixBit(10, 0)
	near := target
	near[key.Length-1] ^= 0x01
	far := target
	far[key.Length-1] ^= 0xFF

	rt.Observe(near, 1, 1)
	rt.Observe(far, 2, 2)

	nearest := rt.GetNearest(5, target, self)
	if len(nearest) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(nearest))
	}
	if !nearest[0].Key.Equal(near) {
		t.Fatalf("expected the numerically closer key first")
	}
}
