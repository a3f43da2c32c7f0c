package livequery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPgxPoolAcquireCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// the context is checked before the pool is touched
	conn, err := NewPool(nil).Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, conn)
}
