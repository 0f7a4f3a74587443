package connector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultBreakerConfig(t *testing.T) {
	cfg := DefaultBreakerConfig()
	assert.Equal(t, 60*time.Second, cfg.Window)
	assert.Equal(t, 20, cfg.MinCalls)
	assert.Equal(t, 0.5, cfg.FailureRate)
	assert.Equal(t, 30*time.Second, cfg.OpenDuration)
	assert.Equal(t, 1, cfg.HalfOpenMaxCalls)
}

func TestBreaker_StaysClosedBelowMinCalls(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Window: time.Minute, MinCalls: 20, FailureRate: 0.5,
		OpenDuration: time.Hour, HalfOpenMaxCalls: 1,
	}, zap.NewNop())

	for i := 0; i < 19; i++ {
		require.NoError(t, b.Allow())
		b.Record(false)
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_OpensAtFailureRate(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Window: time.Minute, MinCalls: 20, FailureRate: 0.5,
		OpenDuration: time.Hour, HalfOpenMaxCalls: 1,
	}, zap.NewNop())

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Allow())
		b.Record(true)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Allow())
		b.Record(false)
	}
	assert.Equal(t, BreakerOpen, b.State())
	assert.Error(t, b.Allow())
}

func TestBreaker_HalfOpenProbeAfterCooldown(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Window: time.Minute, MinCalls: 2, FailureRate: 0.5,
		OpenDuration: 30 * time.Millisecond, HalfOpenMaxCalls: 1,
	}, zap.NewNop())

	require.NoError(t, b.Allow())
	b.Record(false)
	require.NoError(t, b.Allow())
	b.Record(false)
	require.Equal(t, BreakerOpen, b.State())

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, b.Allow(), "probe call after cooldown should be admitted")
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.Error(t, b.Allow(), "a second concurrent probe is rejected")

	b.Record(true)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Window: time.Minute, MinCalls: 2, FailureRate: 0.5,
		OpenDuration: 30 * time.Millisecond, HalfOpenMaxCalls: 1,
	}, zap.NewNop())

	require.NoError(t, b.Allow())
	b.Record(false)
	require.NoError(t, b.Allow())
	b.Record(false)
	require.Equal(t, BreakerOpen, b.State())

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreaker_WindowPrunesOldCalls(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Window: 20 * time.Millisecond, MinCalls: 2, FailureRate: 0.5,
		OpenDuration: time.Hour, HalfOpenMaxCalls: 1,
	}, zap.NewNop())

	require.NoError(t, b.Allow())
	b.Record(false)
	time.Sleep(30 * time.Millisecond) // the failure above ages out of the window

	require.NoError(t, b.Allow())
	b.Record(true)
	require.NoError(t, b.Allow())
	b.Record(true)
	assert.Equal(t, BreakerClosed, b.State(), "aged-out failure must not count toward the rate")
}
