package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseStore_Exclusive(t *testing.T) {
	_, client := newTestClient(t)
	a := NewLeaseStore(client)
	b := NewLeaseStore(client)
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must wait")

	ok, err = a.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "holder can extend")
}

func TestLeaseStore_ReleaseOnlyByOwner(t *testing.T) {
	s, client := newTestClient(t)
	a := NewLeaseStore(client)
	b := NewLeaseStore(client)
	ctx := context.Background()

	_, err := a.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	require.NoError(t, b.Release(ctx, "sweep"))
	assert.True(t, s.Exists("ledger:lease:sweep"), "non-owner release is a no-op")

	require.NoError(t, a.Release(ctx, "sweep"))
	assert.False(t, s.Exists("ledger:lease:sweep"))

	ok, err := b.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseStore_Expires(t *testing.T) {
	s, client := newTestClient(t)
	a := NewLeaseStore(client)
	b := NewLeaseStore(client)
	ctx := context.Background()

	_, err := a.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	s.FastForward(2 * time.Second)

	ok, err := b.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
