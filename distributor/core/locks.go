package core

import (
	"bytes"
	"sort"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// claimKey identifies one claim serialization domain. Claims for the same
// (campaign, recipient) pair must not interleave between the entitlement
// check and the ledger write; claims for different pairs may run freely.
type claimKey struct {
	campaignID uint64
	account    ethcommon.Address
}

// claimLocks hands out one mutex per claim key. Entries are reference
// counted and dropped when the last holder releases, so the map stays
// bounded by the number of in-flight claims.
type claimLocks struct {
	mu      sync.Mutex
	entries map[claimKey]*claimLock
}

type claimLock struct {
	mu   sync.Mutex
	refs int
}

func newClaimLocks() *claimLocks {
	return &claimLocks{
		entries: make(map[claimKey]*claimLock),
	}
}

// lock acquires the key's mutex, creating the entry on first use.
func (c *claimLocks) lock(key claimKey) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &claimLock{}
		c.entries[key] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()
}

// unlock releases the key's mutex and drops the entry once unreferenced.
func (c *claimLocks) unlock(key claimKey) {
	c.mu.Lock()
	entry := c.entries[key]
	entry.refs--
	if entry.refs == 0 {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	entry.mu.Unlock()
}

// lockAll acquires a set of keys in one global order so two overlapping
// batches cannot deadlock against each other. Returns the keys in
// acquisition order for unlockAll.
func (c *claimLocks) lockAll(keys []claimKey) []claimKey {
	ordered := make([]claimKey, len(keys))
	copy(ordered, keys)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].campaignID != ordered[j].campaignID {
			return ordered[i].campaignID < ordered[j].campaignID
		}
		return bytes.Compare(ordered[i].account.Bytes(), ordered[j].account.Bytes()) < 0
	})

	for _, key := range ordered {
		c.lock(key)
	}
	return ordered
}

// unlockAll releases keys acquired by lockAll, in reverse order.
func (c *claimLocks) unlockAll(keys []claimKey) {
	for i := len(keys) - 1; i >= 0; i-- {
		c.unlock(keys[i])
	}
}
