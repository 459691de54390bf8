package helpers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("loading markets: %w", NewFetchError("fetch markets failed", cause))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "fetch markets failed: connection refused", fe.Error())
	assert.ErrorIs(t, err, cause)

	var te *TransportError
	assert.False(t, errors.As(err, &te))
}

func TestRetryWithBackoffEventualSuccess(t *testing.T) {
	calls := 0
	res, err := RetryWithBackoff(context.Background(), "op", 3, time.Millisecond, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffExhausted(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), "op", 2, time.Millisecond, func() (int, error) {
		calls++
		return 0, fmt.Errorf("fail %d", calls)
	})

	assert.EqualError(t, err, "fail 2")
	assert.Equal(t, 2, calls)
}

func TestRetryWithBackoffContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryWithBackoff(ctx, "op", 5, time.Hour, func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoffStopsOnPermanent(t *testing.T) {
	calls := 0
	notFound := errors.New("bad status: 404")
	_, err := RetryWithBackoff(context.Background(), "op", 5, time.Millisecond, func() (int, error) {
		calls++
		return 0, Permanent(notFound)
	})

	assert.Same(t, notFound, err)
	assert.Equal(t, 1, calls)
	assert.Nil(t, Permanent(nil))
}

func TestConfigurationErrorUnwraps(t *testing.T) {
	cause := errors.New("port out of range")
	err := NewConfigurationError("config validation failed", cause)

	assert.EqualError(t, err, "config validation failed: port out of range")
	assert.ErrorIs(t, err, cause)
}

func TestErrorMonitorKeepsNewestHundred(t *testing.T) {
	m := NewErrorMonitor()
	for i := 0; i < 150; i++ {
		m.LogError(fmt.Errorf("Error %d", i), "", nil)
	}

	logs := m.Logs()
	require.Len(t, logs, 100)
	assert.Equal(t, "Error 149", logs[0].Message)
	assert.Equal(t, "Error 50", logs[99].Message)
	assert.Equal(t, SeverityMedium, logs[0].Severity)

	m.Clear()
	assert.Empty(t, m.Logs())
}

func TestErrorMonitorRecordsContext(t *testing.T) {
	m := NewErrorMonitor()
	m.LogError(errors.New("Test error"), SeverityHigh, map[string]interface{}{"test": true})
	m.LogError(nil, SeverityHigh, nil)

	logs := m.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "Test error", logs[0].Message)
	assert.Equal(t, SeverityHigh, logs[0].Severity)
	assert.Equal(t, true, logs[0].Context["test"])
}
