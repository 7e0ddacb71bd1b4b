// Package kafka provides a Broker backed by Kafka/Redpanda for durable
// topic storage, paired with Redis for per-message lease bookkeeping.
// Kafka's consumer-group offset model has no notion of a per-message
// lease, so leases are tracked out-of-band: Pull fetches the next
// uncommitted record and atomically claims a lease key in Redis before
// handing the message to the caller; Ack commits the record's offset
// and releases the lease; KeepAlive extends the lease only if the
// caller still holds it, via an atomic Lua script.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
)

// wireMessage is the JSON envelope written to Kafka record values.
type wireMessage struct {
	Body       []byte            `json:"body"`
	Attributes map[string]string `json:"attributes"`
}

// Broker implements domain.Broker on top of a shared franz-go client
// and a Redis client used purely for lease bookkeeping.
type Broker struct {
	client        *kgo.Client
	redis         *redis.Client
	deadLetter    string
	leaseDuration time.Duration

	acquireScript *redis.Script
	extendScript  *redis.Script
	releaseScript *redis.Script

	logger *slog.Logger
}

// Config bundles the dials a Broker needs at construction time.
type Config struct {
	Brokers         []string
	RedisAddr       string
	DeadLetterTopic string
	LeaseDuration   time.Duration
	Logger          *slog.Logger
}

// New builds the Kafka and Redis clients and returns a Broker. Neither
// client connects here; both connect on first use.
func New(cfg Config) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, domain.ErrNoSeedBrokers
	}

	tracerProvider := otel.GetTracerProvider()
	hooks := kotel.NewKotel(kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(tracerProvider))))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.WithHooks(hooks.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka broker: new client: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	leaseDuration := cfg.LeaseDuration
	if leaseDuration <= 0 {
		leaseDuration = domain.DefaultLeaseDuration
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		client:        client,
		redis:         rdb,
		deadLetter:    cfg.DeadLetterTopic,
		leaseDuration: leaseDuration,
		acquireScript: redis.NewScript(acquireLeaseScript),
		extendScript:  redis.NewScript(extendLeaseScript),
		releaseScript: redis.NewScript(releaseLeaseScript),
		logger:        logger,
	}, nil
}

// Close releases the underlying Kafka and Redis clients.
func (b *Broker) Close() error {
	b.client.Close()
	return b.redis.Close()
}

// Publish writes msg to topic as a single unkeyed Kafka record.
func (b *Broker) Publish(ctx context.Context, topic string, msg domain.Message) error {
	payload, err := json.Marshal(wireMessage{Body: msg.Body, Attributes: msg.Attributes})
	if err != nil {
		return fmt.Errorf("kafka broker: marshal message: %w", err)
	}

	record := &kgo.Record{Topic: topic, Value: payload}
	result := b.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("kafka broker: produce to %s: %w", topic, err)
	}
	return nil
}

// Pull fetches up to maxCount records from topic that are not
// currently leased in Redis, claiming a lease for each one returned.
// Kafka has no random-access "peek a specific record" primitive, so
// this polls the client's next batch of fetches and filters by lease.
func (b *Broker) Pull(ctx context.Context, topic string, maxCount int) ([]domain.Message, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	fetches := b.client.PollFetches(fetchCtx)
	if fetches.IsClientClosed() {
		return nil, domain.ErrBrokerUnavailable
	}
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, fe := range errs {
			if fe.Err == context.DeadlineExceeded {
				continue
			}
			b.logger.Error("kafka fetch error", slog.String("topic", fe.Topic), slog.Any("err", fe.Err))
		}
	}

	var out []domain.Message
	fetches.EachRecord(func(rec *kgo.Record) {
		if rec.Topic != topic || len(out) >= maxCount {
			return
		}

		var wm wireMessage
		if err := json.Unmarshal(rec.Value, &wm); err != nil {
			b.logger.Error("kafka broker: malformed record, skipping", slog.Any("err", err))
			return
		}

		leaseKey := leaseKeyFor(topic, rec.Partition, rec.Offset)
		leaseID := uuid.NewString()
		acquired, err := b.acquireScript.Run(ctx, b.redis, []string{leaseKey}, leaseID, int(b.leaseDuration.Seconds())).Int()
		if err != nil || acquired == 0 {
			return // already leased elsewhere, or Redis error: leave for a later Pull
		}
		if wm.Attributes == nil {
			wm.Attributes = map[string]string{}
		}

		out = append(out, domain.Message{
			Body:       wm.Body,
			Attributes: wm.Attributes,
			Topic:      topic,
			LeaseID:    encodeLeaseToken(rec.Partition, rec.Offset, leaseID),
		})
	})

	return out, nil
}

// Ack releases the Redis lease and commits the record's Kafka offset
// so it will not be redelivered to this consumer group.
func (b *Broker) Ack(ctx context.Context, msg domain.Message) error {
	partition, offset, leaseID, err := decodeLeaseToken(msg.LeaseID)
	if err != nil {
		return nil // already acked: token was consumed or never issued
	}

	leaseKey := leaseKeyFor(msg.Topic, partition, offset)
	if _, err := b.releaseScript.Run(ctx, b.redis, []string{leaseKey}, leaseID).Result(); err != nil {
		b.logger.Warn("kafka broker: release lease failed", slog.Any("err", err))
	}

	if err := b.client.CommitRecords(ctx, &kgo.Record{Topic: msg.Topic, Partition: partition, Offset: offset}); err != nil {
		return fmt.Errorf("kafka broker: commit offset: %w", err)
	}
	return nil
}

// KeepAlive extends the lease identified by msg.LeaseID, provided the
// caller still owns it; otherwise it is a no-op.
func (b *Broker) KeepAlive(ctx context.Context, msg domain.Message) error {
	partition, offset, leaseID, err := decodeLeaseToken(msg.LeaseID)
	if err != nil {
		return nil
	}
	leaseKey := leaseKeyFor(msg.Topic, partition, offset)
	_, err = b.extendScript.Run(ctx, b.redis, []string{leaseKey}, leaseID, int(b.leaseDuration.Seconds())).Result()
	if err != nil {
		b.logger.Warn("kafka broker: extend lease failed", slog.Any("err", err))
	}
	return nil
}

// LogFailed republishes msg on the configured dead-letter topic with
// an added error_<timestamp> attribute.
func (b *Broker) LogFailed(ctx context.Context, msg domain.Message, reason string) error {
	attrs := msg.CloneAttributes()
	attrs[fmt.Sprintf("error_%d", time.Now().UnixNano())] = reason
	return b.Publish(ctx, b.deadLetter, domain.Message{Body: msg.Body, Attributes: attrs})
}

func leaseKeyFor(topic string, partition int32, offset int64) string {
	return fmt.Sprintf("dispatchd:lease:%s:%d:%d", topic, partition, offset)
}

func encodeLeaseToken(partition int32, offset int64, leaseID string) string {
	return fmt.Sprintf("%d:%d:%s", partition, offset, leaseID)
}

func decodeLeaseToken(token string) (partition int32, offset int64, leaseID string, err error) {
	var p int32
	var o int64
	n, scanErr := fmt.Sscanf(token, "%d:%d:%s", &p, &o, &leaseID)
	if scanErr != nil || n != 3 {
		return 0, 0, "", fmt.Errorf("kafka broker: malformed lease token %q", token)
	}
	return p, o, leaseID, nil
}

// acquireLeaseScript claims leaseKey for leaseID if it is unheld,
// setting a TTL of ttlSeconds. Returns 1 if claimed, 0 otherwise.
const acquireLeaseScript = `
local key = KEYS[1]
local lease_id = ARGV[1]
local ttl = tonumber(ARGV[2])
if redis.call("EXISTS", key) == 1 then
  return 0
end
redis.call("SET", key, lease_id, "EX", ttl)
return 1
`

// extendLeaseScript refreshes leaseKey's TTL only if it is still held
// by leaseID.
const extendLeaseScript = `
local key = KEYS[1]
local lease_id = ARGV[1]
local ttl = tonumber(ARGV[2])
if redis.call("GET", key) == lease_id then
  redis.call("EXPIRE", key, ttl)
  return 1
end
return 0
`

// releaseLeaseScript deletes leaseKey only if it is still held by
// leaseID, so a late release from an expired lease can't clobber a
// newer holder's claim.
const releaseLeaseScript = `
local key = KEYS[1]
local lease_id = ARGV[1]
if redis.call("GET", key) == lease_id then
  redis.call("DEL", key)
  return 1
end
return 0
`
