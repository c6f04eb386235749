package store

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/solask/emberdb/internal/core/value"
)

// Policy selects the eviction victim when the memory budget is exceeded.
type Policy uint8

const (
	NoEviction Policy = iota
	AllKeysLRU
	AllKeysLFU
	VolatileLRU
	VolatileLFU
	AllKeysRandom
	VolatileRandom
)

// policyNames maps configuration surface names to policies. The set is
// fixed; anything else is a fatal configuration error.
var policyNames = map[string]Policy{
	"noeviction":      NoEviction,
	"allkeys-lru":     AllKeysLRU,
	"allkeys-lfu":     AllKeysLFU,
	"volatile-lru":    VolatileLRU,
	"volatile-lfu":    VolatileLFU,
	"allkeys-random":  AllKeysRandom,
	"volatile-random": VolatileRandom,
}

// ParsePolicy resolves a policy name. Unrecognized names are rejected,
// never silently defaulted.
func ParsePolicy(name string) (Policy, error) {
	p, ok := policyNames[name]
	if !ok {
		return 0, fmt.Errorf("store: unknown eviction policy %q", name)
	}
	return p, nil
}

// String returns the configuration surface name of the policy.
func (p Policy) String() string {
	for name, pol := range policyNames {
		if pol == p {
			return name
		}
	}
	return "unknown"
}

// Memory estimate constants. These are tunable approximations, not
// allocator accounting; only the relative ordering matters (larger
// collections must report larger usage).
const (
	baseOverhead      = 2048
	perElemOverhead   = 8
	perPairOverhead   = 16
	perExpiryOverhead = 40
	perAccessOverhead = 40
	perCountOverhead  = 32

	// maxEvictionsPerPass bounds one budget enforcement pass, a safety
	// valve against estimate drift looping forever.
	maxEvictionsPerPass = 1000

	// evictTargetNum/Den: evict down to 90% of the budget.
	evictTargetNum = 9
	evictTargetDen = 10
)

// MemoryManager tracks per-key recency and frequency metadata and
// enforces the configured memory budget. It is co-owned by the Store and
// shares its lock; every method below requires the store's write lock.
type MemoryManager struct {
	maxMemory int64
	policy    Policy

	lastAccess  map[string]time.Time
	accessCount map[string]uint64

	// evictions counts keys removed by budget enforcement since start.
	evictions uint64
}

func newMemoryManager() *MemoryManager {
	return &MemoryManager{
		policy:      AllKeysLRU,
		lastAccess:  make(map[string]time.Time),
		accessCount: make(map[string]uint64),
	}
}

// trackAccess records a read or write of key at now.
func (m *MemoryManager) trackAccess(key string, now time.Time) {
	m.lastAccess[key] = now
	m.accessCount[key]++
}

// removeTracking drops the metadata for a deleted or evicted key. It is
// always called together with the keyspace removal.
func (m *MemoryManager) removeTracking(key string) {
	delete(m.lastAccess, key)
	delete(m.accessCount, key)
}

func (m *MemoryManager) reset() {
	m.lastAccess = make(map[string]time.Time)
	m.accessCount = make(map[string]uint64)
}

// estimateUsage sums an approximate footprint over every entry plus the
// bookkeeping maps and a base constant.
func (m *MemoryManager) estimateUsage(data map[string]value.Value, expires map[string]time.Time) int64 {
	var total int64
	for key, v := range data {
		total += int64(len(key))
		total += valueSize(v)
	}
	total += int64(len(expires)) * perExpiryOverhead
	total += int64(len(m.lastAccess)) * perAccessOverhead
	total += int64(len(m.accessCount)) * perCountOverhead
	total += baseOverhead
	return total
}

func valueSize(v value.Value) int64 {
	switch v.Kind {
	case value.KindString:
		return int64(len(v.Str))
	case value.KindInteger:
		return 8
	case value.KindList:
		var n int64
		for _, e := range v.List {
			n += int64(len(e))
		}
		return n + int64(len(v.List))*perElemOverhead
	case value.KindSet:
		var n int64
		for e := range v.Set {
			n += int64(len(e))
		}
		return n + int64(len(v.Set))*perElemOverhead
	case value.KindHash:
		var n int64
		for f, val := range v.Hash {
			n += int64(len(f) + len(val))
		}
		return n + int64(len(v.Hash))*perPairOverhead
	default:
		return 0
	}
}

// enforceBudget brings usage back under the budget before a write is
// applied. Under noeviction an exceeded budget is a hard failure and
// nothing is mutated; under every other policy keys are evicted one at a
// time until usage falls to 90% of the budget, the keyspace is empty, or
// the per-pass eviction bound is hit.
func (m *MemoryManager) enforceBudget(s *Store) error {
	if m.maxMemory <= 0 {
		return nil
	}
	usage := m.estimateUsage(s.data, s.expires)
	if usage <= m.maxMemory {
		return nil
	}
	if m.policy == NoEviction {
		return fmt.Errorf("%w: used %d bytes, budget %d bytes", ErrOutOfMemory, usage, m.maxMemory)
	}

	target := m.maxMemory * evictTargetNum / evictTargetDen
	evicted := 0
	for usage > target && len(s.data) > 0 && evicted < maxEvictionsPerPass {
		victim, ok := m.selectVictim(s.data, s.expires)
		if !ok {
			break
		}
		s.removeLocked(victim)
		evicted++
		m.evictions++
		usage = m.estimateUsage(s.data, s.expires)
	}
	return nil
}

// selectVictim picks one key to evict per the active policy. Volatile
// policies restrict the candidate scope to keys with an expiry set.
func (m *MemoryManager) selectVictim(data map[string]value.Value, expires map[string]time.Time) (string, bool) {
	switch m.policy {
	case AllKeysLRU:
		return m.lruVictim(data, expires, false)
	case VolatileLRU:
		return m.lruVictim(data, expires, true)
	case AllKeysLFU:
		return m.lfuVictim(data, expires, false)
	case VolatileLFU:
		return m.lfuVictim(data, expires, true)
	case AllKeysRandom:
		return randomVictim(data, expires, false)
	case VolatileRandom:
		return randomVictim(data, expires, true)
	default:
		return "", false
	}
}

func (m *MemoryManager) lruVictim(data map[string]value.Value, expires map[string]time.Time, volatileOnly bool) (string, bool) {
	var oldest string
	var oldestAt time.Time
	found := false

	for key := range data {
		if volatileOnly {
			if _, ok := expires[key]; !ok {
				continue
			}
		}
		at, ok := m.lastAccess[key]
		if !ok {
			// Never accessed: oldest by definition.
			return key, true
		}
		if !found || at.Before(oldestAt) {
			oldest, oldestAt, found = key, at, true
		}
	}
	return oldest, found
}

func (m *MemoryManager) lfuVictim(data map[string]value.Value, expires map[string]time.Time, volatileOnly bool) (string, bool) {
	var least string
	var leastCount uint64
	found := false

	for key := range data {
		if volatileOnly {
			if _, ok := expires[key]; !ok {
				continue
			}
		}
		count := m.accessCount[key]
		if !found || count < leastCount {
			least, leastCount, found = key, count, true
		}
	}
	return least, found
}

func randomVictim(data map[string]value.Value, expires map[string]time.Time, volatileOnly bool) (string, bool) {
	candidates := make([]string, 0, len(data))
	for key := range data {
		if volatileOnly {
			if _, ok := expires[key]; !ok {
				continue
			}
		}
		candidates = append(candidates, key)
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.IntN(len(candidates))], true
}
