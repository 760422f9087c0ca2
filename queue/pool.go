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
	"time"

	"axonflow/careplan/shared/logger"
)

// Handler processes one claimed generation task. Errors are the handler's to
// classify and record; the pool only logs them.
type Handler func(ctx context.Context, orderID string) error

// Pool runs a fixed number of workers, each pulling tasks from the queue
// until Stop is called. Tasks for the same order never overlap because the
// handler's pending-only pickup guard drops the late claim, not the pool.
type Pool struct {
	queue   *Queue
	handler Handler
	workers int
	log     *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool. workers must be at least 1.
func NewPool(q *Queue, workers int, handler Handler) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:   q,
		handler: handler,
		workers: workers,
		log:     logger.New("generation-pool"),
	}
}

// Start launches the workers. It returns immediately.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.log.Info("", "generation worker pool started", map[string]interface{}{
		"workers": p.workers,
	})
}

// Stop signals the workers and waits for in-flight tasks to finish. A task
// already claimed runs to completion, including its retry cycle.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info("", "generation worker pool stopped", nil)
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		orderID, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrEmpty) || ctx.Err() != nil {
				continue
			}
			p.log.ErrorWithErr("", "failed to claim task", err, map[string]interface{}{
				"worker": id,
			})
			// Pause before re-polling so a dead Redis does not spin the loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := p.handler(ctx, orderID); err != nil {
			p.log.ErrorWithErr(orderID, "generation task ended with error", err, map[string]interface{}{
				"worker": id,
			})
		}
	}
}
