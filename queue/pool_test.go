// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesQueuedTasks(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	var mu sync.Mutex
	processed := make(map[string]int)
	done := make(chan struct{}, 3)

	pool := NewPool(q, 2, func(ctx context.Context, orderID string) error {
		mu.Lock()
		processed[orderID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	require.NoError(t, q.Enqueue(ctx, "order-1"))
	require.NoError(t, q.Enqueue(ctx, "order-2"))
	require.NoError(t, q.Enqueue(ctx, "order-3"))

	pool.Start()
	defer pool.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, processed, 3)
	for orderID, count := range processed {
		assert.Equal(t, 1, count, "task %s handled %d times", orderID, count)
	}
}

func TestPoolHandlerErrorDoesNotStopWorkers(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	done := make(chan string, 2)
	pool := NewPool(q, 1, func(ctx context.Context, orderID string) error {
		done <- orderID
		if orderID == "order-bad" {
			return errors.New("handler failure")
		}
		return nil
	})

	require.NoError(t, q.Enqueue(ctx, "order-bad"))
	require.NoError(t, q.Enqueue(ctx, "order-good"))

	pool.Start()
	defer pool.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker stopped after handler error")
		}
	}
}

func TestPoolStopWaitsForInFlightTask(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	started := make(chan struct{})
	finished := false
	var mu sync.Mutex

	pool := NewPool(q, 1, func(ctx context.Context, orderID string) error {
		close(started)
		time.Sleep(200 * time.Millisecond)
		mu.Lock()
		finished = true
		mu.Unlock()
		return nil
	})

	require.NoError(t, q.Enqueue(ctx, "order-1"))
	pool.Start()

	<-started
	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished, "Stop returned before the in-flight task finished")
}

func TestPoolMinimumOneWorker(t *testing.T) {
	q := newTestQueue(t)
	pool := NewPool(q, 0, func(ctx context.Context, orderID string) error { return nil })
	assert.Equal(t, 1, pool.workers)
}
