package benchmark

import (
	"crypto/rand"
	"fmt"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/solask/emberdb/internal/core/value"
	"github.com/solask/emberdb/internal/store"
)

// KeyCounts defines the keyspace sizes for scaling benchmarks.
var KeyCounts = []int{5000, 10000, 50000, 100000}

// SmallKeyCounts for quick benchmarks.
var SmallKeyCounts = []int{1000, 5000, 10000}

// newKey generates a unique key with the given prefix.
func newKey(prefix string) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, _ := ulid.New(ulid.Timestamp(time.Now()), entropy)
	return prefix + ":" + strings.ToLower(id.String())
}

// payload returns a string value of n bytes.
func payload(n int) string {
	return strings.Repeat("x", n)
}

// prefillStore fills a store with count string keys and returns them.
func prefillStore(s *store.Store, count int) []string {
	keys := make([]string, count)
	for i := range keys {
		keys[i] = fmt.Sprintf("key:%d", i)
		s.Set(keys[i], value.String(payload(64)))
	}
	return keys
}

// reportMemory reports heap usage as custom benchmark metrics.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithKeyCounts runs a benchmark function at each keyspace size.
func runWithKeyCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("keys_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
