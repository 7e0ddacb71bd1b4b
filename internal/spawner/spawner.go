// Package spawner implements the work-spawner daemon: it drains the
// priority-tiered topics strictly highest-first, and for each message
// it pulls, runs the WorkModule's pre/post hooks around a supervised
// child process (shell or container), acking on success and routing
// to the dead-letter topic on any failure.
package spawner

import (
	"context"
	"log/slog"
	"time"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/observability"
)

const keepAliveInterval = 5 * time.Second

// Spawner drains the priority-tiered topics and supervises one child
// process at a time per message, mirroring work_spawner's single
// Spawner instance design (parallelism is future work there too).
type Spawner struct {
	Broker       domain.Broker
	WorkModule   domain.WorkModule
	Tiers        []string // ordered highest priority first
	ChildTimeout time.Duration
	Logger       *slog.Logger
}

// Run drains tiers until ctx is cancelled. After handling any message
// it resets back to the highest-priority tier, so lower tiers only
// ever get pulled from once the higher ones are empty.
func (s *Spawner) Run(ctx context.Context) {
	log := s.log()
	index := 0

	for {
		select {
		case <-ctx.Done():
			log.Info("spawner stopping: context done")
			return
		default:
		}

		if index >= len(s.Tiers) {
			log.Debug("no work found across any tier, sleeping")
			if !sleepOrDone(ctx, 10*time.Second) {
				return
			}
			index = 0
			continue
		}

		tier := s.Tiers[index]
		observability.TierPulls.WithLabelValues(tier).Inc()

		msgs, err := s.Broker.Pull(ctx, tier, 1)
		if err != nil {
			log.Error("pull failed", slog.String("tier", tier), slog.Any("err", err))
			if !sleepOrDone(ctx, 5*time.Second) {
				return
			}
			continue
		}
		if len(msgs) == 0 {
			index++
			continue
		}

		for _, msg := range msgs {
			select {
			case <-ctx.Done():
				log.Info("spawner stopping mid-batch: context done")
				return
			default:
			}
			s.handleMessage(ctx, tier, msg)
		}

		index = 0 // always restart at the highest-priority tier
	}
}

// handleMessage runs the full pre_process -> spawn -> post_process
// state machine for one pulled message, acking or dead-lettering on
// every exit path except interruption, where the message is left
// unacked so its lease expires and it is redelivered (at-least-once).
func (s *Spawner) handleMessage(ctx context.Context, tier string, msg domain.Message) {
	log := s.log().With(slog.String("tier", tier))
	msg.Topic = tier

	if err := s.Broker.KeepAlive(ctx, msg); err != nil {
		log.Warn("keep_alive failed before pre_process", slog.Any("err", err))
	}
	observability.KeepAlivesSent.Inc()

	ok, err := s.WorkModule.PreProcess(ctx, msg)
	if err != nil || !ok {
		log.Error("pre_process failed, dead-lettering", slog.Any("err", err))
		s.deadLetter(ctx, msg, "pre_process failed")
		return
	}

	cmd, err := s.WorkModule.GetCommand(ctx, msg)
	if err != nil {
		log.Error("get_command failed, dead-lettering", slog.Any("err", err))
		s.deadLetter(ctx, msg, "get_command failed: "+err.Error())
		return
	}

	// docker_id drives container dispatch; the attribute is stripped
	// from the message seen by the child env so it never leaks into
	// the spawned process as a stray environment variable.
	childMsg := msg
	childMsg.Attributes = msg.CloneAttributes()
	if dockerID, hasDocker := childMsg.Attributes["docker_id"]; hasDocker {
		cmd.IsContainer = true
		cmd.ContainerImage = dockerID
		delete(childMsg.Attributes, "docker_id")
	}

	done := make(chan childResult, 1)
	go func() { done <- runChild(ctx, cmd, childMsg.Attributes, s.childTimeout()) }()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	var result childResult
waitLoop:
	for {
		select {
		case result = <-done:
			break waitLoop
		case <-ticker.C:
			if err := s.Broker.KeepAlive(ctx, msg); err != nil {
				log.Warn("keep_alive failed during child run", slog.Any("err", err))
			}
			observability.KeepAlivesSent.Inc()
		case <-ctx.Done():
			log.Info("spawner interrupted mid-child: not acking, lease will expire for redelivery")
			return
		}
	}

	if result.Err != nil {
		outcome := "failed"
		if result.TimedOut {
			outcome = "timed_out"
		}
		observability.ChildDuration.WithLabelValues(outcome).Observe(result.Duration.Seconds())
		log.Error("child process did not complete successfully", slog.Any("err", result.Err))
		s.deadLetter(ctx, msg, result.Err.Error())
		return
	}
	observability.ChildDuration.WithLabelValues("success").Observe(result.Duration.Seconds())

	if err := s.Broker.KeepAlive(ctx, msg); err != nil {
		log.Warn("keep_alive failed before post_process", slog.Any("err", err))
	}

	ok, err = s.WorkModule.PostProcess(ctx, msg)
	if err != nil || !ok {
		log.Error("post_process failed, dead-lettering", slog.Any("err", err))
		s.deadLetter(ctx, msg, "post_process failed")
		return
	}

	if err := s.Broker.Ack(ctx, msg); err != nil {
		log.Error("ack failed", slog.Any("err", err))
		return
	}
	observability.MessagesAcked.WithLabelValues(tier).Inc()
}

func (s *Spawner) deadLetter(ctx context.Context, msg domain.Message, reason string) {
	if err := s.Broker.LogFailed(ctx, msg, reason); err != nil {
		s.log().Error("log_failed failed", slog.Any("err", err))
	}
	observability.MessagesDeadLettered.WithLabelValues(reason).Inc()
	if err := s.Broker.Ack(ctx, msg); err != nil {
		s.log().Error("ack after dead-letter failed", slog.Any("err", err))
	}
}

func (s *Spawner) childTimeout() time.Duration {
	if s.ChildTimeout <= 0 {
		return 60 * time.Second
	}
	return s.ChildTimeout
}

func (s *Spawner) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// sleepOrDone sleeps for d unless ctx is cancelled first. Returns
// false if ctx was cancelled, meaning the caller should stop running.
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
