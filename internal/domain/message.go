// Package domain defines the core types and ports shared by every
// broker backend and both daemons: Message, WorkCommand, the Broker
// capability set, and the WorkModule contract. It is a leaf package —
// it imports nothing from the rest of the tree — so that brokers and
// daemons can depend on it without depending on each other.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels), checked with errors.Is at call sites.
var (
	ErrNoCoveringTier    = errors.New("topic table: no covering tier")
	ErrEmptyTopicTable   = errors.New("topic table: no rows loaded")
	ErrLeaseNotHeld      = errors.New("broker: lease not held")
	ErrBrokerUnavailable = errors.New("broker: unavailable")
	ErrNoSeedBrokers     = errors.New("broker: no seed brokers configured")
)

// Message is the immutable unit of work moving through the pipeline.
// Body may be empty; Attributes is always non-nil. A Message returned
// from a Pull carries exactly one lease token (LeaseID), which is used
// by KeepAlive and Ack to address the specific lease instead of the
// logical message. WorkModule code receives it but has no use for it.
type Message struct {
	Body       []byte
	Attributes map[string]string

	// Topic is the topic the message was pulled from. Set by the
	// broker on Pull; zero value before that.
	Topic string

	// LeaseID identifies this specific lease so a broker backend can
	// tell a fresh pull of the same logical message apart from a stale
	// one whose lease has already expired.
	LeaseID string
}

// CloneAttributes returns a deep copy of the message's attribute map so callers
// can mutate it (e.g. stripping docker_id) without affecting the
// broker's bookkeeping copy.
func (m Message) CloneAttributes() map[string]string {
	out := make(map[string]string, len(m.Attributes))
	for k, v := range m.Attributes {
		out[k] = v
	}
	return out
}

// WorkCommand describes the child process the Spawner should run for a
// given message: either a direct shell command or a container.
type WorkCommand struct {
	Argv             []string
	WorkingDirectory string
	IsContainer      bool
	ContainerImage   string
}

// Broker is the capability set used by both daemons. Concrete backends
// live in internal/broker/inmemory and internal/broker/kafka.
type Broker interface {
	// Publish enqueues a message on topic. Topic auto-creation
	// semantics depend on the backend.
	Publish(ctx context.Context, topic string, msg Message) error

	// Pull returns up to maxCount messages, non-blocking. An empty
	// slice (with a nil error) means no message was immediately
	// available; a deadline-exceeded condition from the backend must
	// be mapped to this case, never propagated as an error.
	Pull(ctx context.Context, topic string, maxCount int) ([]Message, error)

	// Ack permanently removes msg from its topic. Idempotent.
	Ack(ctx context.Context, msg Message) error

	// KeepAlive extends msg's lease by the backend's default lease
	// duration. Must be safe to call repeatedly and a no-op for
	// messages that are not (or no longer) leased.
	KeepAlive(ctx context.Context, msg Message) error

	// LogFailed republishes msg on the dead-letter topic with an added
	// error_<timestamp> attribute describing the failure.
	LogFailed(ctx context.Context, msg Message, reason string) error
}

// WorkModule is the user-supplied, pluggable contract (spec §4.3). The
// daemons never introspect a WorkModule beyond these four calls.
type WorkModule interface {
	// PreProcess runs once before the child is spawned; side effects
	// only (e.g. staging input files). Returns false to dead-letter.
	PreProcess(ctx context.Context, msg Message) (bool, error)

	// GetCommand is deterministic from the message contents.
	GetCommand(ctx context.Context, msg Message) (WorkCommand, error)

	// PostProcess runs once after the child exits 0; side effects only
	// (e.g. publishing outputs, optionally chaining new intake work).
	// Returns false to dead-letter.
	PostProcess(ctx context.Context, msg Message) (bool, error)

	// Prioritize returns a numeric score for msg. If
	// msg.Attributes["priority"] is set, implementations should parse
	// it as an integer and return that; otherwise a user-defined score.
	Prioritize(ctx context.Context, msg Message) (float64, error)
}

// DefaultLeaseDuration is the broker backend default lease duration L
// referenced throughout spec §4.1, used when a backend isn't given an
// explicit override.
const DefaultLeaseDuration = 60 * time.Second
