package prioritizer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/broker/inmemory"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/prioritizer"
)

type scoreFromAttrModule struct{}

func (scoreFromAttrModule) PreProcess(context.Context, domain.Message) (bool, error) { return true, nil }
func (scoreFromAttrModule) PostProcess(context.Context, domain.Message) (bool, error) {
	return true, nil
}
func (scoreFromAttrModule) GetCommand(context.Context, domain.Message) (domain.WorkCommand, error) {
	return domain.WorkCommand{Argv: []string{"true"}}, nil
}
func (scoreFromAttrModule) Prioritize(_ context.Context, msg domain.Message) (float64, error) {
	switch msg.Attributes["priority"] {
	case "critical":
		return 95, nil
	case "low":
		return 1, nil
	default:
		return 20, nil
	}
}

type fixedTierResolver struct{ byScore map[float64]string }

func (r fixedTierResolver) TierFor(score float64) string {
	if t, ok := r.byScore[score]; ok {
		return t
	}
	return "tier-medium"
}

func TestPrioritizerRoutesToResolvedTier(t *testing.T) {
	b := inmemory.New("failed-work", time.Minute)
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "work-to-prioritize", domain.Message{
		Body:       []byte("job"),
		Attributes: map[string]string{"priority": "critical"},
	}))

	p := &prioritizer.Prioritizer{
		Broker:      b,
		WorkModule:  scoreFromAttrModule{},
		Resolver:    fixedTierResolver{byScore: map[float64]string{95: "tier-critical", 1: "tier-low"}},
		IntakeTopic: "work-to-prioritize",
	}

	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	p.Run(runCtx)

	assert.Equal(t, 0, b.Len("work-to-prioritize"))
	assert.Equal(t, 1, b.Len("tier-critical"))
	assert.Equal(t, 0, b.Len("failed-work"))
}

func TestPrioritizerFallsBackToCatchAllTier(t *testing.T) {
	b := inmemory.New("failed-work", time.Minute)
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "work-to-prioritize", domain.Message{Body: []byte("job")}))

	p := &prioritizer.Prioritizer{
		Broker:      b,
		WorkModule:  scoreFromAttrModule{},
		Resolver:    fixedTierResolver{byScore: map[float64]string{}},
		IntakeTopic: "work-to-prioritize",
	}

	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	p.Run(runCtx)

	assert.Equal(t, 1, b.Len("tier-medium"))
}
