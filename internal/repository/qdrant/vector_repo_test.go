package qdrant

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID_StableAndDistinct(t *testing.T) {
	a := PointID("665f1c2e9b1d4a0012345678")
	b := PointID("665f1c2e9b1d4a0012345678")
	c := PointID("665f1c2e9b1d4a0087654321")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestNewVectorIndexRepository_LazyConnect(t *testing.T) {
	// grpc.NewClient does not dial until the first RPC
	repo, err := NewVectorIndexRepository("localhost", 6334, "tickets")
	require.NoError(t, err)
	assert.NoError(t, repo.Close())
}
