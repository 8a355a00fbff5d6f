package kademlia

import "github.com/sid-code/dhtsim/key"

// runMaintenance implements spec.md §4.3.8: staggered by maintenanceOffset,
// a node periodically sweeps its locally stored values (republication) and
// its routing table's quiet buckets (bucket refresh).
func (n *Node) runMaintenance(epoch uint64) {
	if n.cfg.MaintenancePeriod > 0 && epoch%n.cfg.MaintenancePeriod == n.maintenanceOffset {
		n.runTableMaintenance(epoch)
	}
	if n.cfg.BucketRefreshPeriod > 0 && epoch%n.cfg.BucketRefreshPeriod == n.maintenanceOffset%n.cfg.BucketRefreshPeriod {
		n.runBucketRefresh(epoch)
	}
}

// runTableMaintenance evicts values that have gone stale past
// MaintenancePeriod since their last STORE, and republishes the rest to the
// k nodes nearest their key when added <= last_touch. A repeated STORE only
// raises lastTouch and never changes added, so that check holds for every
// entry still in the table and each surviving entry is republished.
// Grounded on original_source/kademlia/kademlia.cpp's run_table_maintenance.
func (n *Node) runTableMaintenance(epoch uint64) {
	for k, entry := range n.store {
		if epoch >= entry.lastTouch+n.cfg.MaintenancePeriod {
			delete(n.store, k)
			continue
		}
		if entry.added <= entry.lastTouch {
			nearest := n.table.GetNearest(n.cfg.K, k, n.self)
			for _, e := range nearest {
				n.sendStore(e.Address, entry.value)
			}
		}
	}
}

// runBucketRefresh looks up a random key in each bucket that has gone quiet
// (its most-recently-seen entry is older than BucketRefreshPeriod), to
// surface new peers in that prefix range. Implements the intended behavior
// spec.md's Design Notes call for, not the inverted-loop-condition bug in
// the source that silences this entirely.
func (n *Node) runBucketRefresh(epoch uint64) {
	for i := 0; i < n.table.NumBuckets(); i++ {
		entries := n.table.BucketEntries(i)
		if len(entries) == 0 {
			continue
		}
		mostRecent := entries[len(entries)-1]
		if mostRecent.LastSeen+n.cfg.BucketRefreshPeriod <= epoch {
			n.FindNodes(n.randomKeyInBucket(i), nil, nil)
		}
	}
}

// randomKeyInBucket generates a key sharing self's first i bits (the
// bucket-i prefix) with bit i forced to differ and the rest drawn uniformly
// at random, so the key lands in bucket i exactly rather than possibly
// landing deeper.
func (n *Node) randomKeyInBucket(i int) key.Key {
	random := n.rng.Bytes(key.Length)
	var out key.Key
	copy(out[:], random)

	fullBytes := i / 8
	bitInByte := i % 8
	copy(out[:fullBytes], n.self[:fullBytes])
	if fullBytes >= key.Length {
		return out
	}

	if bitInByte > 0 {
		mask := byte(0xFF << uint(8-bitInByte))
		out[fullBytes] = (n.self[fullBytes] & mask) | (out[fullBytes] &^ mask)
	}

	flip := byte(0x80 >> uint(bitInByte))
	if n.self[fullBytes]&flip == 0 {
		out[fullBytes] |= flip
	} else {
		out[fullBytes] &^= flip
	}
	return out
}
