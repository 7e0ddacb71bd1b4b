package workmodule_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/workmodule"
)

func TestPrioritizeUsesAttributeWhenPresent(t *testing.T) {
	m := workmodule.Default{}
	score, err := m.Prioritize(context.Background(), domain.Message{
		Attributes: map[string]string{"priority": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, score)
}

func TestPrioritizeFallsBackToDefault(t *testing.T) {
	m := workmodule.Default{}
	score, err := m.Prioritize(context.Background(), domain.Message{})
	require.NoError(t, err)
	assert.Equal(t, workmodule.DefaultScore, score)
}

func TestPrioritizeFallsBackOnUnparseableAttribute(t *testing.T) {
	m := workmodule.Default{}
	score, err := m.Prioritize(context.Background(), domain.Message{
		Attributes: map[string]string{"priority": "not-a-number"},
	})
	require.NoError(t, err)
	assert.Equal(t, workmodule.DefaultScore, score)
}

func TestPreAndPostProcessSucceed(t *testing.T) {
	m := workmodule.Default{}
	ok, err := m.PreProcess(context.Background(), domain.Message{Body: []byte("x")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.PostProcess(context.Background(), domain.Message{Body: []byte("x")})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetCommandReturnsRunnableCommand(t *testing.T) {
	m := workmodule.Default{}
	cmd, err := m.GetCommand(context.Background(), domain.Message{})
	require.NoError(t, err)
	assert.NotEmpty(t, cmd.Argv)
	assert.False(t, cmd.IsContainer)
}
