// Package inmemory provides an in-memory Broker implementation usable
// as a test double and for --test mode, grounded on the pack's
// in-memory broker test doubles: a per-topic ordered slice protected
// by a mutex, with lease state tracked via time.AfterFunc timers.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
)

type entry struct {
	msg     domain.Message
	leased  bool
	leaseID string
	timer   *time.Timer
}

// Broker is an in-memory, single-process Broker. Safe for concurrent
// use by multiple daemon instances within the same process (tests
// simulating multiple Spawners).
type Broker struct {
	mu          sync.Mutex
	topics      map[string][]*entry
	leaseLength time.Duration
	deadLetter  string
}

// New constructs an in-memory Broker. deadLetterTopic names the topic
// LogFailed republishes to; leaseLength is the default lease duration L.
func New(deadLetterTopic string, leaseLength time.Duration) *Broker {
	if leaseLength <= 0 {
		leaseLength = domain.DefaultLeaseDuration
	}
	return &Broker{
		topics:      make(map[string][]*entry),
		leaseLength: leaseLength,
		deadLetter:  deadLetterTopic,
	}
}

// Publish enqueues msg on topic, auto-creating the topic on first use.
func (b *Broker) Publish(_ context.Context, topic string, msg domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := msg
	cp.Topic = topic
	cp.Attributes = msg.CloneAttributes()
	cp.LeaseID = ""
	b.topics[topic] = append(b.topics[topic], &entry{msg: cp})
	return nil
}

// Pull returns up to maxCount available (non-leased) messages from
// topic, leasing each one returned. Never blocks; an empty slice means
// nothing was immediately available.
func (b *Broker) Pull(_ context.Context, topic string, maxCount int) ([]domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Message
	for _, e := range b.topics[topic] {
		if len(out) >= maxCount {
			break
		}
		if e.leased {
			continue
		}
		e.leased = true
		e.leaseID = uuid.NewString()
		e.timer = time.AfterFunc(b.leaseLength, func(ent *entry) func() {
			return func() { b.expireLease(topic, ent) }
		}(e))

		leased := e.msg
		leased.Attributes = e.msg.CloneAttributes()
		leased.LeaseID = e.leaseID
		out = append(out, leased)
	}
	return out, nil
}

func (b *Broker) expireLease(topic string, e *entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Only expire if this entry is still present and still holds the
	// same lease (Ack may have already removed it).
	for _, cur := range b.topics[topic] {
		if cur == e && cur.leased && cur.leaseID == e.leaseID {
			cur.leased = false
			cur.leaseID = ""
			cur.timer = nil
		}
	}
}

// Ack permanently removes the message identified by msg.LeaseID from
// its topic. Idempotent: acking an already-removed message is a no-op.
func (b *Broker) Ack(_ context.Context, msg domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.topics[msg.Topic]
	for i, e := range entries {
		if e.leaseID != "" && e.leaseID == msg.LeaseID {
			if e.timer != nil {
				e.timer.Stop()
			}
			b.topics[msg.Topic] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil // already acked or expired: idempotent
}

// KeepAlive extends the lease identified by msg.LeaseID by the
// broker's default lease duration. A no-op for messages that are not
// (or no longer) leased under that ID.
func (b *Broker) KeepAlive(_ context.Context, msg domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.topics[msg.Topic] {
		if e.leased && e.leaseID == msg.LeaseID {
			if e.timer != nil {
				e.timer.Stop()
			}
			e.timer = time.AfterFunc(b.leaseLength, func(ent *entry) func() {
				return func() { b.expireLease(msg.Topic, ent) }
			}(e))
			return nil
		}
	}
	return nil // no-op for non-leased messages
}

// LogFailed republishes msg on the dead-letter topic with an added
// error_<timestamp> attribute describing the failure.
func (b *Broker) LogFailed(ctx context.Context, msg domain.Message, reason string) error {
	attrs := msg.CloneAttributes()
	attrs[fmt.Sprintf("error_%d", time.Now().UnixNano())] = reason
	return b.Publish(ctx, b.deadLetter, domain.Message{Body: msg.Body, Attributes: attrs})
}

// Len returns the number of messages currently stored on topic
// (leased or not), for use by tests asserting queue contents.
func (b *Broker) Len(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
