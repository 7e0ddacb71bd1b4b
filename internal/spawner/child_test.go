package spawner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
)

func TestRunChildSucceeds(t *testing.T) {
	result := runChild(context.Background(), domain.WorkCommand{Argv: []string{"true"}}, nil, time.Second)
	require.NoError(t, result.Err)
	assert.False(t, result.TimedOut)
}

func TestRunChildReportsNonZeroExit(t *testing.T) {
	result := runChild(context.Background(), domain.WorkCommand{Argv: []string{"false"}}, nil, time.Second)
	require.Error(t, result.Err)
	assert.False(t, result.TimedOut)
}

func TestRunChildReportsTimeout(t *testing.T) {
	result := runChild(context.Background(), domain.WorkCommand{Argv: []string{"sleep", "5"}}, nil, 50*time.Millisecond)
	require.Error(t, result.Err)
	assert.True(t, result.TimedOut)
}

func TestRunChildPassesAttributesAsEnv(t *testing.T) {
	result := runChild(context.Background(),
		domain.WorkCommand{Argv: []string{"sh", "-c", "echo $DISPATCHD_ATTR_JOB_NAME"}},
		map[string]string{"job_name": "hello"},
		time.Second)
	require.NoError(t, result.Err)
	assert.Equal(t, "hello", strings.TrimSpace(result.Stdout))
}

func TestRunChildRejectsEmptyArgv(t *testing.T) {
	result := runChild(context.Background(), domain.WorkCommand{}, nil, time.Second)
	require.Error(t, result.Err)
}
