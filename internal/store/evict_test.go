package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/solask/emberdb/internal/core/value"
)

func TestParsePolicy(t *testing.T) {
	for name := range policyNames {
		p, err := ParsePolicy(name)
		if err != nil {
			t.Fatalf("ParsePolicy(%q): %v", name, err)
		}
		if p.String() != name {
			t.Fatalf("Policy.String() = %q, want %q", p.String(), name)
		}
	}

	if _, err := ParsePolicy("allkeys-lru-ish"); err == nil {
		t.Fatalf("ParsePolicy accepted unknown policy name")
	}
}

func TestMemoryManager_EstimateOrdering(t *testing.T) {
	s := New()

	small := s.MemoryUsage()

	if err := s.Set("k", value.String(strings.Repeat("x", 4096))); err != nil {
		t.Fatalf("Set: %v", err)
	}
	withString := s.MemoryUsage()
	if withString <= small {
		t.Fatalf("usage %d not larger than empty %d", withString, small)
	}

	if err := s.Set("l", value.List("a", "b", "c", "d")); err != nil {
		t.Fatalf("Set list: %v", err)
	}
	withList := s.MemoryUsage()
	if withList <= withString {
		t.Fatalf("usage %d not larger after list insert (%d)", withList, withString)
	}
}

func TestStore_NoEvictionBudgetFailure(t *testing.T) {
	s := New(WithMemoryBudget(100, NoEviction))

	// The base overhead alone exceeds a 100 byte budget, so the very
	// first write must be refused and nothing applied.
	err := s.Set("k", value.String("v"))
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Set err = %v, want ErrOutOfMemory", err)
	}
	if s.Size() != 0 {
		t.Fatalf("Size = %d after rejected write, want 0", s.Size())
	}
}

func TestStore_EvictionLRUScenario(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	// Entry footprint: 2 byte key + 1000 byte string + tracking
	// overhead, on top of the 2048 byte base. A 4000 byte budget holds
	// one entry comfortably, two entries push past it.
	payload := strings.Repeat("v", 1000)
	s := New(WithMemoryBudget(4000, AllKeysLRU), WithClock(clock))

	if err := s.Set("k1", value.String(payload)); err != nil {
		t.Fatalf("Set k1: %v", err)
	}
	now = now.Add(time.Second)
	if err := s.Set("k2", value.String(payload)); err != nil {
		t.Fatalf("Set k2: %v", err)
	}

	// Read k1 so k2 becomes the least recently used key.
	now = now.Add(time.Second)
	if _, ok := s.Get("k1"); !ok {
		t.Fatalf("Get k1 missing")
	}

	now = now.Add(time.Second)
	if err := s.Set("k3", value.String(payload)); err != nil {
		t.Fatalf("Set k3: %v", err)
	}

	if s.Exists("k2") {
		t.Fatalf("k2 survived eviction, want it evicted as LRU")
	}
	if !s.Exists("k1") || !s.Exists("k3") {
		t.Fatalf("wrong survivors: k1=%v k3=%v", s.Exists("k1"), s.Exists("k3"))
	}
}

func TestStore_EvictionLFU(t *testing.T) {
	now := time.Now()
	payload := strings.Repeat("v", 1000)
	s := New(WithMemoryBudget(4000, AllKeysLFU), WithClock(func() time.Time { return now }))

	if err := s.Set("hot", value.String(payload)); err != nil {
		t.Fatalf("Set hot: %v", err)
	}
	if err := s.Set("cold", value.String(payload)); err != nil {
		t.Fatalf("Set cold: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, ok := s.Get("hot"); !ok {
			t.Fatalf("Get hot missing")
		}
	}

	if err := s.Set("new", value.String(payload)); err != nil {
		t.Fatalf("Set new: %v", err)
	}

	if s.Exists("cold") {
		t.Fatalf("cold survived LFU eviction")
	}
	if !s.Exists("hot") {
		t.Fatalf("hot evicted despite highest access count")
	}
}

func TestStore_VolatileScopeOnlyEvictsVolatile(t *testing.T) {
	now := time.Now()
	payload := strings.Repeat("v", 1000)
	s := New(WithMemoryBudget(4000, VolatileLRU), WithClock(func() time.Time { return now }))

	if err := s.Set("keep", value.String(payload)); err != nil {
		t.Fatalf("Set keep: %v", err)
	}
	now = now.Add(time.Second)
	if err := s.SetWithTTL("vol", value.String(payload), time.Hour); err != nil {
		t.Fatalf("SetWithTTL vol: %v", err)
	}

	now = now.Add(time.Second)
	if err := s.Set("next", value.String(payload)); err != nil {
		t.Fatalf("Set next: %v", err)
	}

	if s.Exists("vol") {
		t.Fatalf("volatile key survived volatile-lru eviction")
	}
	if !s.Exists("keep") {
		t.Fatalf("persistent key evicted under volatile-lru")
	}
}

func TestStore_NeverAccessedKeyEvictedFirst(t *testing.T) {
	now := time.Now()
	payload := strings.Repeat("v", 1000)
	s := New(WithMemoryBudget(4000, AllKeysLRU), WithClock(func() time.Time { return now }))

	// Imported keys carry no access metadata, so they rank oldest.
	s.Import(map[string]value.Value{"restored": value.String(payload)}, nil)

	if err := s.Set("fresh", value.String(payload)); err != nil {
		t.Fatalf("Set fresh: %v", err)
	}
	if err := s.Set("more", value.String(payload)); err != nil {
		t.Fatalf("Set more: %v", err)
	}

	if s.Exists("restored") {
		t.Fatalf("never-accessed key survived eviction")
	}
}

func TestStore_EvictionRandomScope(t *testing.T) {
	now := time.Now()
	payload := strings.Repeat("v", 1000)
	s := New(WithMemoryBudget(4000, VolatileRandom), WithClock(func() time.Time { return now }))

	if err := s.Set("stable", value.String(payload)); err != nil {
		t.Fatalf("Set stable: %v", err)
	}
	if err := s.SetWithTTL("v1", value.String(payload), time.Hour); err != nil {
		t.Fatalf("SetWithTTL v1: %v", err)
	}

	if err := s.Set("push", value.String(payload)); err != nil {
		t.Fatalf("Set push: %v", err)
	}

	if !s.Exists("stable") {
		t.Fatalf("persistent key evicted under volatile-random")
	}
	if s.Exists("v1") {
		t.Fatalf("volatile key survived, want it evicted (sole candidate)")
	}
}

func TestStore_CollectionGrowthOverBudget(t *testing.T) {
	s := New(WithMemoryBudget(6000, NoEviction))

	if err := s.Set("q", value.List("seed")); err != nil {
		t.Fatalf("Set q: %v", err)
	}

	// Append 1KB chunks until the budget refuses the growth.
	chunk := strings.Repeat("x", 1024)
	push := func(v *value.Value) error {
		v.List = append(v.List, chunk)
		return nil
	}

	var err error
	pushed := 0
	for i := 0; i < 50; i++ {
		if _, _, err = s.Update("q", push); err != nil {
			break
		}
		pushed++
	}
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Update err = %v after %d pushes, want ErrOutOfMemory", err, pushed)
	}
	if pushed == 0 {
		t.Fatalf("first push already refused, budget leaves no headroom")
	}

	// The refused append must not be applied.
	v, ok := s.Get("q")
	if !ok {
		t.Fatalf("q missing after refused growth")
	}
	if got := len(v.List); got != pushed+1 {
		t.Fatalf("len(q) = %d, want %d (refused append applied)", got, pushed+1)
	}

	// Upsert on the existing key faces the same check.
	if _, err := s.Upsert("q", value.List(), push); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Upsert err = %v, want ErrOutOfMemory", err)
	}
}

func TestStore_ShrinkAllowedOverBudget(t *testing.T) {
	s := New(WithMemoryBudget(6000, NoEviction))

	if err := s.Set("q", value.List("seed")); err != nil {
		t.Fatalf("Set q: %v", err)
	}
	chunk := strings.Repeat("x", 1024)
	for {
		_, _, err := s.Update("q", func(v *value.Value) error {
			v.List = append(v.List, chunk)
			return nil
		})
		if errors.Is(err, ErrOutOfMemory) {
			break
		}
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	// A pop shrinks the value and must go through even over budget.
	v, _, err := s.Update("q", func(v *value.Value) error {
		v.List = v.List[:len(v.List)-1]
		return nil
	})
	if err != nil {
		t.Fatalf("shrinking Update err = %v, want nil", err)
	}
	if len(v.List) == 0 {
		t.Fatalf("unexpected empty list after single pop")
	}
}

func TestStore_CollectionGrowthEvicts(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	payload := strings.Repeat("v", 1000)
	s := New(WithMemoryBudget(8000, AllKeysLRU), WithClock(clock))

	for _, key := range []string{"f1", "f2", "f3"} {
		if err := s.Set(key, value.String(payload)); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
		now = now.Add(time.Second)
	}
	if err := s.Set("q", value.List("seed")); err != nil {
		t.Fatalf("Set q: %v", err)
	}

	// Growing the list keeps q freshest, so the filler keys are the
	// LRU victims once the budget runs out.
	chunk := strings.Repeat("x", 1024)
	for i := 0; i < 6; i++ {
		now = now.Add(time.Second)
		if _, _, err := s.Update("q", func(v *value.Value) error {
			v.List = append(v.List, chunk)
			return nil
		}); err != nil {
			t.Fatalf("Update push %d: %v", i, err)
		}
	}

	if s.Evictions() == 0 {
		t.Fatalf("Evictions = 0 after growth past budget, want > 0")
	}
	if !s.Exists("q") {
		t.Fatalf("q evicted, want filler keys as victims")
	}
}
