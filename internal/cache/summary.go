package cache

import (
	"strconv"
	"time"

	"kas/internal/ledger"
)

// SummaryCache holds monthly summaries per owner and window. Each entry
// remembers the ledger revision it was computed at and is only served while
// the caller still reads that revision.
type SummaryCache struct {
	lru *LRUCache[revisioned]
}

type revisioned struct {
	revision int64
	months   []ledger.MonthSummary
}

func NewSummaryCache(maxSize int, ttl time.Duration) *SummaryCache {
	return &SummaryCache{lru: NewLRUCache[revisioned](maxSize, ttl)}
}

// ownerPrefix length-prefixes the owner id so no owner's prefix is a prefix
// of another owner's keys.
func ownerPrefix(ownerID string) string {
	return strconv.Itoa(len(ownerID)) + ":" + ownerID + "|"
}

func summaryKey(ownerID string, w ledger.Window) string {
	if len(w) == 0 {
		return ownerPrefix(ownerID)
	}
	return ownerPrefix(ownerID) + w[0].String()
}

// Get returns the summary of ownerID for w when it was stored at revision.
// An entry from another revision is dropped.
func (c *SummaryCache) Get(ownerID string, w ledger.Window, revision int64) ([]ledger.MonthSummary, bool) {
	key := summaryKey(ownerID, w)
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if e.revision != revision {
		c.lru.Delete(key)
		return nil, false
	}
	return e.months, true
}

func (c *SummaryCache) Set(ownerID string, w ledger.Window, revision int64, months []ledger.MonthSummary) {
	c.lru.Set(summaryKey(ownerID, w), revisioned{revision: revision, months: months})
}

// Invalidate drops every cached window of ownerID.
func (c *SummaryCache) Invalidate(ownerID string) int {
	return c.lru.DeletePrefix(ownerPrefix(ownerID))
}

func (c *SummaryCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

func (c *SummaryCache) Size() int {
	return c.lru.Size()
}

func (c *SummaryCache) Stats() Stats {
	return c.lru.Stats()
}
