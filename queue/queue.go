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

// Package queue implements the durable generation task queue. Order ids are
// pushed onto a Redis list at submission time and popped by the worker pool;
// a queued task survives a worker restart because it stays in Redis until a
// worker claims it. Ordering between different orders is not guaranteed.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// DefaultKey is the Redis list holding pending generation tasks.
	DefaultKey = "careplan:generation:queue"

	// popTimeout bounds each blocking pop so workers can observe shutdown.
	popTimeout = 2 * time.Second
)

// ErrEmpty is returned by Dequeue when no task arrived within the poll window.
var ErrEmpty = errors.New("queue is empty")

// Queue is a Redis-backed FIFO of order ids awaiting generation.
type Queue struct {
	client *redis.Client
	key    string
}

// New creates a queue on an existing Redis client.
func New(client *redis.Client, key string) *Queue {
	if key == "" {
		key = DefaultKey
	}
	return &Queue{client: client, key: key}
}

// Connect parses a Redis URL (redis://host:port/db), opens a connection
// pool, and verifies connectivity. An empty key selects DefaultKey.
func Connect(redisURL, key string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return New(client, key), nil
}

// Enqueue pushes one generation task keyed by order id.
func (q *Queue) Enqueue(ctx context.Context, orderID string) error {
	if err := q.client.LPush(ctx, q.key, orderID).Err(); err != nil {
		return fmt.Errorf("failed to enqueue order %s: %w", orderID, err)
	}
	return nil
}

// Dequeue claims the next task, blocking up to the poll window. Returns
// ErrEmpty when nothing arrived so callers can poll again.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	vals, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrEmpty
		}
		return "", fmt.Errorf("failed to dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(vals) != 2 {
		return "", ErrEmpty
	}
	return vals[1], nil
}

// Depth returns the number of queued tasks, for the queue-size gauge.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return n, nil
}

// Ping reports Redis reachability for health checks.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (q *Queue) Close() error {
	return q.client.Close()
}
