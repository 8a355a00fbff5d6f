package kademlia

import (
	"testing"

	"github.com/sid-code/dhtsim/key"
	"github.com/sid-code/dhtsim/message"
)

func entryWithByte(b byte, addr uint32, seen uint64) BucketEntry {
	var k key.Key
	k[0] = b
	return BucketEntry{Key: k, Address: message.Address(addr), LastSeen: seen}
}

func TestBucketHoistMovesToBack(t *testing.T) {
	b := newBucket()
	e1 := entryWithByte(1, 1, 1)
	e2 := entryWithByte(2, 2, 2)
	b.append(e1)
	b.append(e2)

	hoisted := e1
	hoisted.LastSeen = 99
	if !b.hoistIfPresent(hoisted) {
		t.Fatalf("expected existing entry to be hoisted")
	}

	entries := b.Entries()
	if len(entries) != 2 {
		t.Fatalf("hoist must not change bucket size, got %d", len(entries))
	}
	if entries[len(entries)-1].LastSeen != 99 {
		t.Fatalf("hoisted entry should be most-recently-seen (at the back)")
	}
	front, _ := b.Front()
	if !front.Key.Equal(e2.Key) {
		t.Fatalf("e2 should now be least-recently-seen")
	}
}

func TestBucketRemoveByAddress(t *testing.T) {
	b := newBucket()
	b.append(entryWithByte(1, 10, 1))
	b.append(entryWithByte(2, 20, 2))

	b2 := newBucket()
	b2.append(entryWithByte(3, 10, 3))
	b2.append(entryWithByte(4, 20, 4))

	b2.removeByAddress(10)
	if b2.Len() != 1 {
		t.Fatalf("expected 1 entry left, got %d", b2.Len())
	}
	front, _ := b2.Front()
	if front.Address != 20 {
		t.Fatalf("expected the address-20 entry to survive")
	}
}
