// Package prioritizer implements the work-prioritizer daemon: it
// drains the intake topic one message at a time, scores each message
// via the WorkModule, resolves a destination tier from the topic
// table, republishes there, and acks the intake message on both the
// routed and the dead-lettered path. If that ack fails, the message is
// redelivered once its lease expires.
package prioritizer

import (
	"context"
	"log/slog"
	"time"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/observability"
)

// Prioritizer pulls from a single intake topic and fans out to the
// priority-tiered topics resolved by Resolver.
type Prioritizer struct {
	Broker      domain.Broker
	WorkModule  domain.WorkModule
	Resolver    TierResolver
	IntakeTopic string
	Logger      *slog.Logger
}

// TierResolver maps a score to a destination topic name. Satisfied by
// *topictable.TopicTable.
type TierResolver interface {
	TierFor(score float64) string
}

// Run drains the intake topic until ctx is cancelled.
func (p *Prioritizer) Run(ctx context.Context) {
	log := p.log()

	for {
		select {
		case <-ctx.Done():
			log.Info("prioritizer stopping: context done")
			return
		default:
		}

		msgs, err := p.Broker.Pull(ctx, p.IntakeTopic, 1)
		if err != nil {
			log.Error("pull failed", slog.Any("err", err))
			if !sleepOrDone(ctx, 5*time.Second) {
				return
			}
			continue
		}
		if len(msgs) == 0 {
			if !sleepOrDone(ctx, 10*time.Second) {
				return
			}
			continue
		}

		for _, msg := range msgs {
			p.handleMessage(ctx, msg)
		}
	}
}

func (p *Prioritizer) handleMessage(ctx context.Context, msg domain.Message) {
	log := p.log()
	msg.Topic = p.IntakeTopic

	score, err := p.WorkModule.Prioritize(ctx, msg)
	if err != nil {
		log.Error("prioritize failed, dead-lettering", slog.Any("err", err))
		p.deadLetter(ctx, msg, "prioritize failed: "+err.Error())
		return
	}

	destTopic := p.Resolver.TierFor(score)
	log.Info("routing message", slog.Float64("score", score), slog.String("topic", destTopic))

	out := msg
	out.Attributes = msg.CloneAttributes()
	out.LeaseID = ""
	if err := p.Broker.Publish(ctx, destTopic, out); err != nil {
		log.Error("publish to destination tier failed, dead-lettering", slog.Any("err", err))
		p.deadLetter(ctx, msg, "publish failed: "+err.Error())
		return
	}

	if err := p.Broker.Ack(ctx, msg); err != nil {
		log.Error("ack failed", slog.Any("err", err))
		return
	}
	observability.MessagesAcked.WithLabelValues(p.IntakeTopic).Inc()
}

func (p *Prioritizer) deadLetter(ctx context.Context, msg domain.Message, reason string) {
	if err := p.Broker.LogFailed(ctx, msg, reason); err != nil {
		p.log().Error("log_failed failed", slog.Any("err", err))
	}
	observability.MessagesDeadLettered.WithLabelValues(reason).Inc()
	if err := p.Broker.Ack(ctx, msg); err != nil {
		p.log().Error("ack after dead-letter failed", slog.Any("err", err))
	}
}

func (p *Prioritizer) log() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
