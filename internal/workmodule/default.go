// Package workmodule provides the default WorkModule implementation
// wired into cmd/dispatchd. It is the Go analogue of a user-supplied
// "domain specific work" module: PreProcess and PostProcess are no-op
// hooks a real deployment would replace with staging/publishing logic,
// GetCommand returns a fixed diagnostic command, and Prioritize reads
// the score from the message's priority attribute when present.
package workmodule

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
)

// DefaultScore is returned by Prioritize when a message carries no
// priority attribute.
const DefaultScore = 5.0

// Default is the reference WorkModule. Zero value is ready to use.
type Default struct {
	Logger *slog.Logger
}

// PreProcess stages nothing; it only logs the message for now. Real
// deployments replace this with payload unpacking, e.g. copying
// config/starter files into a working directory.
func (d Default) PreProcess(_ context.Context, msg domain.Message) (bool, error) {
	d.log().Debug("pre_process", slog.Int("body_len", len(msg.Body)))
	return true, nil
}

// PostProcess runs after the child exits 0. Real deployments replace
// this with result collection, e.g. moving output directories to
// durable storage.
func (d Default) PostProcess(_ context.Context, msg domain.Message) (bool, error) {
	d.log().Debug("post_process", slog.Int("body_len", len(msg.Body)))
	return true, nil
}

// GetCommand returns the diagnostic shell command this reference
// module runs for every message: it carries no message-specific
// arguments because the default module has no domain logic of its own.
func (d Default) GetCommand(_ context.Context, _ domain.Message) (domain.WorkCommand, error) {
	return domain.WorkCommand{
		Argv:             []string{"true"},
		WorkingDirectory: ".",
	}, nil
}

// Prioritize returns the integer value of msg.Attributes["priority"]
// if present and well-formed, else DefaultScore.
func (d Default) Prioritize(_ context.Context, msg domain.Message) (float64, error) {
	raw, ok := msg.Attributes["priority"]
	if !ok {
		return DefaultScore, nil
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		d.log().Warn("unparseable priority attribute, using default score",
			slog.String("priority", raw), slog.Any("err", err))
		return DefaultScore, nil
	}
	return float64(score), nil
}

func (d Default) log() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
