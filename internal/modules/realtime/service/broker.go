package realtime

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBrokerClosed   = errors.New("broker closed")
	ErrSlowSubscriber = errors.New("subscriber queue stayed full past the grace period")
	ErrUnsubscribed   = errors.New("unsubscribed")
)

// Publisher hands events to live subscribers of a topic.
type Publisher interface {
	Publish(topic string, ev Event) error
}

type BrokerOptions struct {
	QueueSize int
	SlowGrace time.Duration
	Now       func() time.Time
}

// Broker is the in-process fan-out registry. Publish never blocks on a
// subscriber: each subscriber owns a bounded queue.
type Broker struct {
	queueSize int
	slowGrace time.Duration
	now       func() time.Time

	mu     sync.RWMutex
	topics map[string]*topic
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
}

type topic struct {
	name string
	mu   sync.Mutex
	subs map[string]*Subscription
}

type Subscription struct {
	ID    string
	Topic string

	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
	err       error

	// fullSince is guarded by the owning topic's mutex.
	fullSince time.Time
}

// Messages yields events in publication order.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Done is closed once the subscription ends for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscription ended. Valid after Done is closed.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

func (s *Subscription) close(err error) {
	s.closeOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

type BrokerStats struct {
	Topics      int    `json:"topics"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Evicted     uint64 `json:"evicted"`
}

func NewBroker(opts BrokerOptions) *Broker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.SlowGrace <= 0 {
		opts.SlowGrace = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Broker{
		queueSize: opts.QueueSize,
		slowGrace: opts.SlowGrace,
		now:       opts.Now,
		topics:    make(map[string]*topic),
	}
}

func (b *Broker) Subscribe(name string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	t, ok := b.topics[name]
	if !ok {
		t = &topic{name: name, subs: make(map[string]*Subscription)}
		b.topics[name] = t
	}

	sub := &Subscription{
		ID:    uuid.NewString(),
		Topic: name,
		ch:    make(chan Message, b.queueSize),
		done:  make(chan struct{}),
	}

	t.mu.Lock()
	t.subs[sub.ID] = sub
	t.mu.Unlock()

	return sub, nil
}

// Unsubscribe removes sub. The topic entry goes away with its last subscriber.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.remove(sub, ErrUnsubscribed)
}

func (b *Broker) remove(sub *Subscription, reason error) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	if t, ok := b.topics[sub.Topic]; ok {
		t.mu.Lock()
		delete(t.subs, sub.ID)
		empty := len(t.subs) == 0
		t.mu.Unlock()
		if empty {
			delete(b.topics, sub.Topic)
		}
	}
	b.mu.Unlock()

	sub.close(reason)
}

// Publish stamps ev with the server time and queues it for every subscriber
// of topic. Publishing to a topic without subscribers is a no-op.
func (b *Broker) Publish(name string, ev Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	t, ok := b.topics[name]
	if !ok {
		b.mu.RUnlock()
		return nil
	}

	// The topic lock is held from stamping to the last enqueue so concurrent
	// publishers cannot interleave within a subscriber's queue.
	t.mu.Lock()
	msg, err := Encode(name, ev, b.now())
	if err != nil {
		t.mu.Unlock()
		b.mu.RUnlock()
		return err
	}
	slow := b.fanOut(t, msg)
	t.mu.Unlock()
	b.mu.RUnlock()

	b.published.Add(1)
	b.evict(slow)
	return nil
}

// Deliver fans out an already encoded message, keeping its original timestamp.
func (b *Broker) Deliver(msg Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	t, ok := b.topics[msg.Topic]
	if !ok {
		b.mu.RUnlock()
		return nil
	}
	t.mu.Lock()
	slow := b.fanOut(t, msg)
	t.mu.Unlock()
	b.mu.RUnlock()

	b.published.Add(1)
	b.evict(slow)
	return nil
}

// fanOut must be called with t.mu held. It returns the subscribers whose
// queue has been full for longer than the grace period.
func (b *Broker) fanOut(t *topic, msg Message) []*Subscription {
	var slow []*Subscription
	now := b.now()

	for _, sub := range t.subs {
		select {
		case sub.ch <- msg:
			sub.fullSince = time.Time{}
			continue
		default:
		}

		// Queue full: drop the oldest message to make room for the newest.
		select {
		case <-sub.ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- msg:
		default:
			b.dropped.Add(1)
		}

		if sub.fullSince.IsZero() {
			sub.fullSince = now
			log.Printf("⚠️ [broker] subscriber %s on %s is lagging, dropping oldest events", sub.ID, t.name)
		} else if now.Sub(sub.fullSince) > b.slowGrace {
			slow = append(slow, sub)
		}
	}
	return slow
}

func (b *Broker) evict(slow []*Subscription) {
	for _, sub := range slow {
		log.Printf("🔌 [broker] disconnecting slow subscriber %s on %s", sub.ID, sub.Topic)
		b.evicted.Add(1)
		b.remove(sub, ErrSlowSubscriber)
	}
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *Broker) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.topics[name]
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (b *Broker) HasTopic(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.topics[name]
	return ok
}

func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	stats := BrokerStats{Topics: len(b.topics)}
	for _, t := range b.topics {
		t.mu.Lock()
		stats.Subscribers += len(t.subs)
		t.mu.Unlock()
	}
	b.mu.RUnlock()

	stats.Published = b.published.Load()
	stats.Dropped = b.dropped.Load()
	stats.Evicted = b.evicted.Load()
	return stats
}

// Drain ends every subscription and rejects further use. Safe to call twice.
func (b *Broker) Drain() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	topics := b.topics
	b.topics = make(map[string]*topic)
	b.mu.Unlock()

	count := 0
	for _, t := range topics {
		t.mu.Lock()
		for _, sub := range t.subs {
			sub.close(ErrBrokerClosed)
			count++
		}
		t.mu.Unlock()
	}
	log.Printf("🛑 [broker] drained %d subscribers across %d topics", count, len(topics))
}
