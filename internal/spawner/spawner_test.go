package spawner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/broker/inmemory"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/spawner"
)

// fakeWorkModule lets each test script fixed PreProcess/PostProcess outcomes
// and a trivially fast child command: `true` unless argv overrides it.
type fakeWorkModule struct {
	preOK  bool
	postOK bool
	argv   []string
}

func (f fakeWorkModule) PreProcess(context.Context, domain.Message) (bool, error)  { return f.preOK, nil }
func (f fakeWorkModule) PostProcess(context.Context, domain.Message) (bool, error) { return f.postOK, nil }
func (f fakeWorkModule) Prioritize(context.Context, domain.Message) (float64, error) {
	return 0, nil
}
func (f fakeWorkModule) GetCommand(context.Context, domain.Message) (domain.WorkCommand, error) {
	argv := f.argv
	if argv == nil {
		argv = []string{"true"}
	}
	return domain.WorkCommand{Argv: argv}, nil
}

func TestSpawnerHappyPathAcksMessage(t *testing.T) {
	b := inmemory.New("failed-work", time.Minute)
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "tier-high", domain.Message{Body: []byte("job-1")}))

	s := &spawner.Spawner{
		Broker:       b,
		WorkModule:   fakeWorkModule{preOK: true, postOK: true},
		Tiers:        []string{"tier-high", "tier-low"},
		ChildTimeout: time.Second,
	}

	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	s.Run(runCtx)

	assert.Equal(t, 0, b.Len("tier-high"))
	assert.Equal(t, 0, b.Len("failed-work"))
}

func TestSpawnerDeadLettersOnPreProcessFailure(t *testing.T) {
	b := inmemory.New("failed-work", time.Minute)
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "tier-high", domain.Message{Body: []byte("job-1")}))

	s := &spawner.Spawner{
		Broker:       b,
		WorkModule:   fakeWorkModule{preOK: false, postOK: true},
		Tiers:        []string{"tier-high"},
		ChildTimeout: time.Second,
	}

	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	s.Run(runCtx)

	assert.Equal(t, 0, b.Len("tier-high"))
	assert.Equal(t, 1, b.Len("failed-work"))
}

func TestSpawnerDeadLettersOnChildFailure(t *testing.T) {
	b := inmemory.New("failed-work", time.Minute)
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "tier-high", domain.Message{Body: []byte("job-1")}))

	s := &spawner.Spawner{
		Broker:       b,
		WorkModule:   fakeWorkModule{preOK: true, postOK: true, argv: []string{"false"}},
		Tiers:        []string{"tier-high"},
		ChildTimeout: time.Second,
	}

	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	s.Run(runCtx)

	assert.Equal(t, 0, b.Len("tier-high"))
	assert.Equal(t, 1, b.Len("failed-work"))
}

func TestSpawnerPreemptsLowerTierWhenHigherHasWork(t *testing.T) {
	b := inmemory.New("failed-work", time.Minute)
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "tier-low", domain.Message{Body: []byte("low-job")}))
	require.NoError(t, b.Publish(ctx, "tier-high", domain.Message{Body: []byte("high-job")}))

	var order []string
	s := &spawner.Spawner{
		Broker: b,
		WorkModule: orderTrackingModule{
			fakeWorkModule: fakeWorkModule{preOK: true, postOK: true},
			order:          &order,
		},
		Tiers:        []string{"tier-high", "tier-low"},
		ChildTimeout: time.Second,
	}

	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	s.Run(runCtx)

	require.Len(t, order, 2)
	assert.Equal(t, "high-job", order[0])
	assert.Equal(t, "low-job", order[1])
}

type orderTrackingModule struct {
	fakeWorkModule
	order *[]string
}

func (m orderTrackingModule) PreProcess(_ context.Context, msg domain.Message) (bool, error) {
	*m.order = append(*m.order, string(msg.Body))
	return true, nil
}
