package pinger

import (
	"net/netip"

	"github.com/google/btree"
)

type indexEntry struct {
	addr        netip.Addr
	hostIndices []int
	// next host to credit when several hosts share addr
	cursor int
}

func (ent *indexEntry) Less(than btree.Item) bool {
	return ent.addr.Less(than.(*indexEntry).addr)
}

func indexKey(addr netip.Addr) netip.Addr {
	return addr.Unmap().WithZone("")
}

// correlationIndex maps the source address of a reply back to the host it belongs to.
// Each receiver owns its own index, so it needs no locking.
type correlationIndex struct {
	tree *btree.BTree
}

func newCorrelationIndex() *correlationIndex {
	return &correlationIndex{tree: btree.New(2)}
}

func (ci *correlationIndex) Add(addr netip.Addr, hostIndex int) {
	key := &indexEntry{addr: indexKey(addr)}
	if item := ci.tree.Get(key); item != nil {
		ent := item.(*indexEntry)
		ent.hostIndices = append(ent.hostIndices, hostIndex)
		return
	}
	key.hostIndices = []int{hostIndex}
	ci.tree.ReplaceOrInsert(key)
}

// Lookup finds the host a datagram from addr belongs to. Hosts listed more than once
// under the same address are credited in turn.
func (ci *correlationIndex) Lookup(addr netip.Addr) (int, bool) {
	item := ci.tree.Get(&indexEntry{addr: indexKey(addr)})
	if item == nil {
		return 0, false
	}
	ent := item.(*indexEntry)
	hostIndex := ent.hostIndices[ent.cursor]
	ent.cursor = (ent.cursor + 1) % len(ent.hostIndices)
	return hostIndex, true
}

func (ci *correlationIndex) Len() int {
	return ci.tree.Len()
}
