// Copyright (c) 2018 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package flextimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForTick(t *testing.T, c <-chan time.Time, timeout time.Duration) time.Time {
	t.Helper()
	select {
	case fired, ok := <-c:
		require.True(t, ok, "ticker channel closed unexpectedly")
		return fired
	case <-time.After(timeout):
		t.Fatalf("no tick within %v", timeout)
	}
	return time.Time{}
}

func TestFixedPeriodTicker(t *testing.T) {
	ticker := NewRangeTicker(50*time.Millisecond, 50*time.Millisecond)
	defer ticker.StopTicker()

	start := time.Now()
	waitForTick(t, ticker.C, 2*time.Second)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestUpdateTakesEffectBeforePendingFire(t *testing.T) {
	// Long initial period; the update must preempt it.
	ticker := NewRangeTicker(10*time.Second, 10*time.Second)
	defer ticker.StopTicker()

	start := time.Now()
	ticker.UpdateRangeTicker(30*time.Millisecond, 30*time.Millisecond)
	waitForTick(t, ticker.C, 2*time.Second)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTickNow(t *testing.T) {
	ticker := NewRangeTicker(10*time.Second, 10*time.Second)
	defer ticker.StopTicker()

	ticker.TickNow()
	start := time.Now()
	waitForTick(t, ticker.C, 2*time.Second)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStopClosesChannel(t *testing.T) {
	ticker := NewRangeTicker(10*time.Second, 10*time.Second)
	ticker.StopTicker()

	select {
	case _, ok := <-ticker.C:
		assert.False(t, ok, "expected closed channel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after StopTicker")
	}
}

func TestRandomRangeWithinBounds(t *testing.T) {
	ticker := NewRangeTicker(10*time.Millisecond, 60*time.Millisecond)
	defer ticker.StopTicker()

	start := time.Now()
	waitForTick(t, ticker.C, 2*time.Second)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
}
