package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIdempotency_NoKeyAlwaysCallsThrough(t *testing.T) {
	m := newIdempotencyManager(zap.NewNop())
	defer m.close()

	calls := 0
	for i := 0; i < 3; i++ {
		_, _ = m.withIdempotency(context.Background(), "tenant-a", "", func() (Response, error) {
			calls++
			return Response{Text: "x"}, nil
		})
	}
	assert.Equal(t, 3, calls)
}

func TestIdempotency_SameKeyReplaysFirstResult(t *testing.T) {
	m := newIdempotencyManager(zap.NewNop())
	defer m.close()

	calls := 0
	first, err := m.withIdempotency(context.Background(), "tenant-a", "k1", func() (Response, error) {
		calls++
		return Response{Text: "first"}, nil
	})
	require.NoError(t, err)

	second, err := m.withIdempotency(context.Background(), "tenant-a", "k1", func() (Response, error) {
		calls++
		return Response{Text: "second"}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestIdempotency_SameKeyDifferentTenantsDontShare(t *testing.T) {
	m := newIdempotencyManager(zap.NewNop())
	defer m.close()

	calls := 0
	_, _ = m.withIdempotency(context.Background(), "tenant-a", "k1", func() (Response, error) {
		calls++
		return Response{Text: "a"}, nil
	})
	_, _ = m.withIdempotency(context.Background(), "tenant-b", "k1", func() (Response, error) {
		calls++
		return Response{Text: "b"}, nil
	})
	assert.Equal(t, 2, calls)
}

func TestIdempotency_CachesErrorToo(t *testing.T) {
	m := newIdempotencyManager(zap.NewNop())
	defer m.close()

	wantErr := errors.New("boom")
	calls := 0
	_, err1 := m.withIdempotency(context.Background(), "tenant-a", "k1", func() (Response, error) {
		calls++
		return Response{}, wantErr
	})
	_, err2 := m.withIdempotency(context.Background(), "tenant-a", "k1", func() (Response, error) {
		calls++
		return Response{}, nil
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, wantErr, err1)
	assert.Equal(t, wantErr, err2)
}
