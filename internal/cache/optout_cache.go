package cache

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/observer"
)

// OptOutStatus is the result of a probabilistic opt-out cache check.
type OptOutStatus int

const (
	// StatusUnknown means the phone is in neither filter; consult the database.
	StatusUnknown OptOutStatus = iota
	// StatusMaybeOptedOut means the phone is probably opted out (bloom false
	// positives possible); callers must verify against the contact record
	// before suppressing a send.
	StatusMaybeOptedOut
	// StatusMaybeActive means the phone was recently confirmed not opted out.
	StatusMaybeActive
)

// OptOutCacheStats holds counters exposed for health reporting.
type OptOutCacheStats struct {
	Hits           int64
	Misses         int64
	FalsePositives int64
	HitRate        float64
	OptedOutSize   uint32
	ActiveSize     uint32
}

// OptOutCache uses dual bloom filters to short-circuit opt-out checks on the
// outbound path without a database round trip per send.
type OptOutCache struct {
	optedOutFilter *bloom.BloomFilter // Tracks phones that have opted out
	activeFilter   *bloom.BloomFilter // Tracks phones confirmed deliverable
	mu             sync.RWMutex
	hits           atomic.Int64
	misses         atomic.Int64
	falsePositives atomic.Int64
	companyID      string
}

// NewOptOutCache creates a dual bloom filter cache sized for the expected
// number of opted-out and active contacts.
func NewOptOutCache(companyID string, expectedOptedOut, expectedActive uint, fpRate float64) *OptOutCache {
	return &OptOutCache{
		optedOutFilter: bloom.NewWithEstimates(expectedOptedOut, fpRate),
		activeFilter:   bloom.NewWithEstimates(expectedActive, fpRate),
		companyID:      companyID,
	}
}

// generateKey creates a cache key from a normalized phone using FNV-1a hash.
func (c *OptOutCache) generateKey(phoneNumber string) string {
	h := fnv.New64a()
	h.Write([]byte(c.companyID + ":" + phoneNumber))
	return fmt.Sprintf("%x", h.Sum64())
}

// CheckOptOutStatus performs a fast probabilistic check of opt-out status.
func (c *OptOutCache) CheckOptOutStatus(phoneNumber string) OptOutStatus {
	key := c.generateKey(phoneNumber)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.optedOutFilter.TestString(key) {
		// Might be opted out (possible false positive)
		c.hits.Add(1)
		observer.IncCacheCheck(c.companyID, "bloom_optedout", "possible_hit")
		return StatusMaybeOptedOut
	}

	if c.activeFilter.TestString(key) {
		c.hits.Add(1)
		observer.IncCacheCheck(c.companyID, "bloom_active", "possible_hit")
		return StatusMaybeActive
	}

	c.misses.Add(1)
	observer.IncCacheCheck(c.companyID, "bloom", "miss")
	return StatusUnknown
}

// MarkOptedOut records a phone as opted out.
func (c *OptOutCache) MarkOptedOut(phoneNumber string) {
	key := c.generateKey(phoneNumber)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.optedOutFilter.AddString(key)
}

// MarkActive records a phone as confirmed deliverable. Bloom filters cannot
// delete, so an opted-out phone that re-subscribes still tests positive in the
// opted-out filter; the database verification path resolves that.
func (c *OptOutCache) MarkActive(phoneNumber string) {
	key := c.generateKey(phoneNumber)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeFilter.AddString(key)
}

// RecordFalsePositive tracks when a filter gave an incorrect positive.
func (c *OptOutCache) RecordFalsePositive(filterType string) {
	c.falsePositives.Add(1)
	observer.IncCacheCheck(c.companyID, "bloom_"+filterType, "false_positive")
}

// GetStats returns cache statistics.
func (c *OptOutCache) GetStats() OptOutCacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	fps := c.falsePositives.Load()
	total := hits + misses

	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	c.mu.RLock()
	optedOutSize := c.optedOutFilter.ApproximatedSize()
	activeSize := c.activeFilter.ApproximatedSize()
	c.mu.RUnlock()

	return OptOutCacheStats{
		Hits:           hits,
		Misses:         misses,
		FalsePositives: fps,
		HitRate:        hitRate,
		OptedOutSize:   optedOutSize,
		ActiveSize:     activeSize,
	}
}
