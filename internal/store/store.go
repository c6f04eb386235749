package store

import (
	"errors"
	"sync"
	"time"

	"github.com/solask/emberdb/internal/core/value"
)

// Errors surfaced to the command dispatch layer. Both are normal
// consequences of client input and never terminate the engine.
var (
	// ErrWrongType is returned when an operation expects a different
	// variant than the one stored under the key.
	ErrWrongType = errors.New("store: operation against a key holding the wrong kind of value")

	// ErrOutOfMemory is returned by writes when the memory budget is
	// exceeded under the noeviction policy. The write is not applied.
	ErrOutOfMemory = errors.New("store: memory budget exceeded")
)

// TTLStatus classifies the result of a TTL query.
type TTLStatus int

const (
	// TTLMissing reports that the key does not exist.
	TTLMissing TTLStatus = iota
	// TTLPersistent reports that the key exists without an expiry.
	TTLPersistent
	// TTLSet reports that the key expires after the returned duration.
	TTLSet
)

// Store is the keyspace engine: the key to value mapping, the expiry
// deadlines kept in a separate map, and the co-located memory manager.
// One RWMutex guards all three; every operation that may mutate,
// including lazy expiry inside a nominal read, takes the write side.
type Store struct {
	mu      sync.RWMutex
	data    map[string]value.Value
	expires map[string]time.Time
	mem     *MemoryManager

	// now is injectable for deterministic expiry tests.
	now func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithMemoryBudget sets the maximum memory budget in bytes and the
// eviction policy used when it is exceeded.
func WithMemoryBudget(maxBytes int64, policy Policy) Option {
	return func(s *Store) {
		s.mem.maxMemory = maxBytes
		s.mem.policy = policy
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty keyspace with no memory budget.
func New(opts ...Option) *Store {
	s := &Store{
		data:    make(map[string]value.Value),
		expires: make(map[string]time.Time),
		mem:     newMemoryManager(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the value stored under key. A key whose deadline
// has passed is removed before the lookup, so an expired key reads as
// absent. Successful reads record an access for the eviction policies.
func (s *Store) Get(key string) (value.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expireIfDue(key) {
		return value.Value{}, false
	}
	v, ok := s.data[key]
	if !ok {
		return value.Value{}, false
	}
	s.mem.trackAccess(key, s.now())
	return v.Clone(), true
}

// Set unconditionally stores the value and clears any prior expiry: a
// plain SET removes the TTL. Fails with ErrOutOfMemory when the budget
// is exceeded under noeviction, leaving the keyspace untouched.
func (s *Store) Set(key string, v value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.enforceBudget(s); err != nil {
		return err
	}
	s.data[key] = v.Clone()
	delete(s.expires, key)
	s.mem.trackAccess(key, s.now())
	return nil
}

// SetWithTTL stores the value with an absolute deadline of now+ttl.
func (s *Store) SetWithTTL(key string, v value.Value, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.enforceBudget(s); err != nil {
		return err
	}
	s.data[key] = v.Clone()
	s.expires[key] = s.now().Add(ttl)
	s.mem.trackAccess(key, s.now())
	return nil
}

// Delete removes the key, its expiry and its access metadata. It reports
// whether the key had existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(key)
}

// Exists reports whether the key exists, applying the same lazy expiry
// as Get and recording an access on a hit.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expireIfDue(key) {
		return false
	}
	if _, ok := s.data[key]; !ok {
		return false
	}
	s.mem.trackAccess(key, s.now())
	return true
}

// Expire installs a deadline of now+ttl on an existing key. It reports
// false when the key is absent (or already expired) without installing
// anything.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expireIfDue(key) {
		return false
	}
	if _, ok := s.data[key]; !ok {
		return false
	}
	s.expires[key] = s.now().Add(ttl)
	return true
}

// Persist removes the expiry from a key, making it persistent. It
// reports true only when a deadline was actually removed.
func (s *Store) Persist(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expireIfDue(key) {
		return false
	}
	if _, ok := s.expires[key]; !ok {
		return false
	}
	delete(s.expires, key)
	return true
}

// TTL returns the remaining lifetime of a key. Status distinguishes a
// missing key, a persistent key, and a key with a deadline. A key whose
// deadline has already passed is reaped and reported missing.
func (s *Store) TTL(key string) (time.Duration, TTLStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deadline, ok := s.expires[key]; ok {
		now := s.now()
		if now.After(deadline) {
			s.removeLocked(key)
			return 0, TTLMissing
		}
		return deadline.Sub(now), TTLSet
	}
	if _, ok := s.data[key]; ok {
		return 0, TTLPersistent
	}
	return 0, TTLMissing
}

// Type returns the variant kind stored under the key.
func (s *Store) Type(key string) (value.Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expireIfDue(key) {
		return 0, false
	}
	v, ok := s.data[key]
	if !ok {
		return 0, false
	}
	s.mem.trackAccess(key, s.now())
	return v.Kind, true
}

// Keys returns every key currently in the data map. Keys whose deadline
// has passed but that no operation has touched yet are still listed;
// lazy expiry fires on per-key access, not on enumeration.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Size returns the number of entries in the data map.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Clear removes every key and resets the memory manager's tracking.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]value.Value)
	s.expires = make(map[string]time.Time)
	s.mem.reset()
}

// Update applies fn to the value stored under key, in place and under
// the write lock. The second return reports whether the key existed; fn
// errors (typically ErrWrongType) are returned unchanged and leave the
// stored value intact. A mutation that grows the value consults the
// memory budget first and is not applied when the budget refuses it.
// On success the resulting value is returned as a copy so callers can
// inspect or persist it.
func (s *Store) Update(key string, fn func(v *value.Value) error) (value.Value, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expireIfDue(key) {
		return value.Value{}, false, nil
	}
	cur, ok := s.data[key]
	if !ok {
		return value.Value{}, false, nil
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return value.Value{}, true, err
	}
	if valueSize(next) > valueSize(cur) {
		if err := s.mem.enforceBudget(s); err != nil {
			return value.Value{}, true, err
		}
	}
	s.data[key] = next
	s.mem.trackAccess(key, s.now())
	return next.Clone(), true, nil
}

// Upsert is Update for keys that may not exist yet: an absent key is
// seeded with init (subject to the memory budget) before fn runs. The
// expiry of an existing key is left untouched.
func (s *Store) Upsert(key string, init value.Value, fn func(v *value.Value) error) (value.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDue(key)
	cur, ok := s.data[key]
	if !ok {
		if err := s.mem.enforceBudget(s); err != nil {
			return value.Value{}, err
		}
		cur = init
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return value.Value{}, err
	}
	// Growth of an existing key is a write like any other and faces
	// the same budget check as Set.
	if ok && valueSize(next) > valueSize(cur) {
		if err := s.mem.enforceBudget(s); err != nil {
			return value.Value{}, err
		}
	}
	s.data[key] = next
	s.mem.trackAccess(key, s.now())
	return next.Clone(), nil
}

// Export returns deep copies of the data and expiry maps for the
// persistence layer. The snapshot is point-in-time consistent: both maps
// are copied under one read lock acquisition.
func (s *Store) Export() (map[string]value.Value, map[string]time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := make(map[string]value.Value, len(s.data))
	for k, v := range s.data {
		data[k] = v.Clone()
	}
	expires := make(map[string]time.Time, len(s.expires))
	for k, t := range s.expires {
		expires[k] = t
	}
	return data, expires
}

// Import replaces the keyspace contents wholesale, used during startup
// recovery. Entries in expires without a data entry are dropped to keep
// the two maps consistent; access metadata starts empty, so restored
// keys rank as never accessed until first touched.
func (s *Store) Import(data map[string]value.Value, expires map[string]time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]value.Value, len(data))
	for k, v := range data {
		s.data[k] = v.Clone()
	}
	s.expires = make(map[string]time.Time, len(expires))
	for k, t := range expires {
		if _, ok := s.data[k]; ok {
			s.expires[k] = t
		}
	}
	s.mem.reset()
}

// MemoryUsage returns the estimated footprint in bytes.
func (s *Store) MemoryUsage() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem.estimateUsage(s.data, s.expires)
}

// MemoryBudget returns the configured budget (0 = unlimited) and policy.
func (s *Store) MemoryBudget() (int64, Policy) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem.maxMemory, s.mem.policy
}

// Evictions returns the number of keys removed by budget enforcement
// since the store was created.
func (s *Store) Evictions() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem.evictions
}

// expireIfDue reaps the key if its deadline has passed. Must be called
// with the write lock held; reports whether the key was removed.
func (s *Store) expireIfDue(key string) bool {
	deadline, ok := s.expires[key]
	if !ok {
		return false
	}
	if !s.now().After(deadline) {
		return false
	}
	s.removeLocked(key)
	return true
}

// removeLocked removes data, expiry and access metadata together so the
// keyspace invariants hold on every delete path. Write lock required.
func (s *Store) removeLocked(key string) bool {
	_, existed := s.data[key]
	delete(s.data, key)
	delete(s.expires, key)
	s.mem.removeTracking(key)
	return existed
}
