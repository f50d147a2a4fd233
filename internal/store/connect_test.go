// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/pkg/errutil"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func fastOptions(attempts uint64) ConnectOptions {
	return ConnectOptions{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestWaitForPing_SucceedsAfterRetries(t *testing.T) {
	p := &flakyPinger{failures: 2}
	require.NoError(t, waitForPing(context.Background(), p, fastOptions(5)))
	assert.Equal(t, 3, p.calls)
}

func TestWaitForPing_GivesUp(t *testing.T) {
	p := &flakyPinger{failures: 10}
	err := waitForPing(context.Background(), p, fastOptions(3))
	require.Error(t, err)
	assert.Equal(t, 3, p.calls)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWaitForPing_ZeroAttemptsPingsOnce(t *testing.T) {
	p := &flakyPinger{failures: 10}
	err := waitForPing(context.Background(), p, fastOptions(0))
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestWaitForPing_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &flakyPinger{failures: 10}
	err := waitForPing(ctx, p, ConnectOptions{Attempts: 100, BaseDelay: time.Hour, MaxDelay: time.Hour})
	require.Error(t, err)
	assert.LessOrEqual(t, p.calls, 1)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", fastOptions(1))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}
