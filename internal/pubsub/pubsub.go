package pubsub

import (
	"regexp"
	"sync"
)

// Message is one published datum as seen by a subscriber. Pattern is
// set only when the delivery happened through a pattern subscription.
type Message struct {
	Channel string
	Pattern string
	Payload string
}

// Subscriber is one registered consumer. Its queue outlives individual
// channel subscriptions and is closed when the subscriber is removed.
type Subscriber struct {
	id    uint64
	queue *Queue

	channels map[string]struct{}
	patterns map[string]struct{}
}

// ID returns the subscriber's registry-unique identifier.
func (s *Subscriber) ID() uint64 { return s.id }

// Queue returns the subscriber's message queue.
func (s *Subscriber) Queue() *Queue { return s.queue }

type patternEntry struct {
	re   *regexp.Regexp
	subs map[uint64]*Subscriber
}

// Broker is the pub/sub registry. It uses its own lock, independent of
// the keyspace, and never holds it across delivery to a subscriber's
// connection: a publish only appends to in-memory queues.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64

	subs     map[uint64]*Subscriber
	channels map[string]map[uint64]*Subscriber
	patterns map[string]*patternEntry
}

// NewBroker creates an empty registry.
func NewBroker() *Broker {
	return &Broker{
		subs:     make(map[uint64]*Subscriber),
		channels: make(map[string]map[uint64]*Subscriber),
		patterns: make(map[string]*patternEntry),
	}
}

// CreateSubscriber registers a new subscriber with no subscriptions.
// IDs increase monotonically and are never reused.
func (b *Broker) CreateSubscriber() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscriber{
		id:       b.nextID,
		queue:    newQueue(),
		channels: make(map[string]struct{}),
		patterns: make(map[string]struct{}),
	}
	b.subs[sub.id] = sub
	return sub
}

// Subscribe adds an exact channel subscription and returns the
// subscriber's total subscription count.
func (b *Broker) Subscribe(sub *Subscriber, channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return b.countLocked(sub)
	}
	sub.channels[channel] = struct{}{}
	set, ok := b.channels[channel]
	if !ok {
		set = make(map[uint64]*Subscriber)
		b.channels[channel] = set
	}
	set[sub.id] = sub
	return b.countLocked(sub)
}

// Unsubscribe drops an exact channel subscription and returns the
// subscriber's total subscription count.
func (b *Broker) Unsubscribe(sub *Subscriber, channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(sub.channels, channel)
	if set, ok := b.channels[channel]; ok {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(b.channels, channel)
		}
	}
	return b.countLocked(sub)
}

// PSubscribe adds a pattern subscription. An unparsable pattern is
// rejected; valid subscriptions return the total subscription count.
func (b *Broker) PSubscribe(sub *Subscriber, pattern string) (int, error) {
	re, err := compileGlob(pattern)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return b.countLocked(sub), nil
	}
	sub.patterns[pattern] = struct{}{}
	entry, ok := b.patterns[pattern]
	if !ok {
		entry = &patternEntry{re: re, subs: make(map[uint64]*Subscriber)}
		b.patterns[pattern] = entry
	}
	entry.subs[sub.id] = sub
	return b.countLocked(sub), nil
}

// PUnsubscribe drops a pattern subscription and returns the
// subscriber's total subscription count.
func (b *Broker) PUnsubscribe(sub *Subscriber, pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(sub.patterns, pattern)
	if entry, ok := b.patterns[pattern]; ok {
		delete(entry.subs, sub.id)
		if len(entry.subs) == 0 {
			delete(b.patterns, pattern)
		}
	}
	return b.countLocked(sub)
}

// Channels returns a copy of the subscriber's exact channel names.
func (b *Broker) Channels(sub *Subscriber) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(sub.channels))
	for ch := range sub.channels {
		out = append(out, ch)
	}
	return out
}

// Patterns returns a copy of the subscriber's pattern strings.
func (b *Broker) Patterns(sub *Subscriber) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(sub.patterns))
	for p := range sub.patterns {
		out = append(out, p)
	}
	return out
}

// Count returns the subscriber's total subscription count.
func (b *Broker) Count(sub *Subscriber) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.countLocked(sub)
}

func (b *Broker) countLocked(sub *Subscriber) int {
	return len(sub.channels) + len(sub.patterns)
}

// Publish delivers the payload to every exact subscriber of the channel
// and every subscriber whose pattern matches it, and returns the number
// of queued deliveries. A subscriber reached both ways is counted and
// delivered once per route, as the protocol requires.
func (b *Broker) Publish(channel, payload string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.channels[channel] {
		if sub.queue.Push(Message{Channel: channel, Payload: payload}) {
			delivered++
		}
	}
	for pattern, entry := range b.patterns {
		if !entry.re.MatchString(channel) {
			continue
		}
		for _, sub := range entry.subs {
			if sub.queue.Push(Message{Channel: channel, Pattern: pattern, Payload: payload}) {
				delivered++
			}
		}
	}
	return delivered
}

// RemoveSubscriber purges every subscription the subscriber holds,
// closes its queue, and prunes empty channel and pattern sets.
// Idempotent: removing an unknown or already-removed subscriber is a
// no-op.
func (b *Broker) RemoveSubscriber(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)

	for channel := range sub.channels {
		if set, ok := b.channels[channel]; ok {
			delete(set, sub.id)
			if len(set) == 0 {
				delete(b.channels, channel)
			}
		}
	}
	for pattern := range sub.patterns {
		if entry, ok := b.patterns[pattern]; ok {
			delete(entry.subs, sub.id)
			if len(entry.subs) == 0 {
				delete(b.patterns, pattern)
			}
		}
	}
	sub.channels = make(map[string]struct{})
	sub.patterns = make(map[string]struct{})
	sub.queue.Close()
}

// NumSubscribers returns the number of registered subscribers.
func (b *Broker) NumSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
