package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
)

func TestLeaseTokenRoundTrip(t *testing.T) {
	token := encodeLeaseToken(3, 1024, "11111111-1111-1111-1111-111111111111")

	partition, offset, leaseID, err := decodeLeaseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int32(3), partition)
	assert.Equal(t, int64(1024), offset)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", leaseID)
}

func TestDecodeMalformedTokenErrors(t *testing.T) {
	_, _, _, err := decodeLeaseToken("not-a-token")
	assert.Error(t, err)
}

func TestLeaseKeyIsStableForSamePartitionOffset(t *testing.T) {
	a := leaseKeyFor("tier-high", 1, 42)
	b := leaseKeyFor("tier-high", 1, 42)
	assert.Equal(t, a, b)

	c := leaseKeyFor("tier-high", 1, 43)
	assert.NotEqual(t, a, c)
}

func TestNewRejectsEmptyBrokerList(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, domain.ErrNoSeedBrokers)
}
