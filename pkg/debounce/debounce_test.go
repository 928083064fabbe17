// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_FiresAfterDelay(t *testing.T) {
	t.Parallel()

	d := New(20 * time.Millisecond)
	defer d.Stop()

	var fired int64
	d.Do(func() { atomic.AddInt64(&fired, 1) })

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fired) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncer_CoalescesBurstToLastFunc(t *testing.T) {
	t.Parallel()

	d := New(50 * time.Millisecond)
	defer d.Stop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		d.Do(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{4}, got)
}

func TestDebouncer_StopFlushesPending(t *testing.T) {
	t.Parallel()

	d := New(time.Hour)

	var fired int64
	d.Do(func() { atomic.AddInt64(&fired, 1) })
	d.Stop()

	assert.EqualValues(t, 1, atomic.LoadInt64(&fired))
}

func TestDebouncer_DoAfterStopRunsInline(t *testing.T) {
	t.Parallel()

	d := New(time.Hour)
	d.Stop()

	var fired int64
	d.Do(func() { atomic.AddInt64(&fired, 1) })
	assert.EqualValues(t, 1, atomic.LoadInt64(&fired))
}

func TestDebouncer_QueuedReflectsPendingTimer(t *testing.T) {
	t.Parallel()

	d := New(100 * time.Millisecond)
	defer d.Stop()

	assert.False(t, d.Queued())
	d.Do(func() {})
	require.Eventually(t, d.Queued, time.Second, time.Millisecond)
}
