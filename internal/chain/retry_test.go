package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = RetryPolicy{Retries: 2, MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	retried := 0
	err := Retry(context.Background(), fastPolicy, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("timeout")
		}
		return nil
	}, func(int, error) { retried++ })
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, retried)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	want := errors.New("still down")
	err := Retry(context.Background(), fastPolicy, func(context.Context) error {
		calls++
		return want
	}, nil)
	require.ErrorIs(t, err, want)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	want := errors.New("bad config")
	err := Retry(context.Background(), fastPolicy, func(context.Context) error {
		calls++
		return Permanent(want)
	}, nil)
	require.ErrorIs(t, err, want)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := RetryPolicy{Retries: 5, MinBackoff: time.Hour}
	err := Retry(ctx, slow, func(context.Context) error { return errors.New("x") }, nil)
	require.ErrorIs(t, err, context.Canceled)
}

type stubBlockReader struct {
	failures int
	calls    int
}

func (s *stubBlockReader) LatestBlockNumber(context.Context) (uint64, error) {
	s.calls++
	if s.calls <= s.failures {
		return 0, errors.New("rpc timeout")
	}
	return 1234, nil
}

func TestLatestBlockNumberRetries(t *testing.T) {
	reader := &stubBlockReader{failures: 2}
	got, err := LatestBlockNumber(context.Background(), reader, fastPolicy, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), got)

	reader = &stubBlockReader{failures: 3}
	_, err = LatestBlockNumber(context.Background(), reader, fastPolicy, nil)
	require.Error(t, err, "retries are spent")
}
