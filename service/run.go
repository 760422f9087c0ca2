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

package service

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"axonflow/careplan/config"
	"axonflow/careplan/llm"
	"axonflow/careplan/metrics"
	"axonflow/careplan/queue"
	"axonflow/careplan/shared/logger"
	"axonflow/careplan/store"
	"axonflow/careplan/worker"
)

// queueDepthInterval paces the careplan_queue_size gauge refresh.
const queueDepthInterval = 10 * time.Second

// Run boots the service: config, database, queue, provider, workers, HTTP.
// Blocks until SIGINT/SIGTERM, then drains workers and shuts the listener
// down gracefully.
func Run() error {
	log := logger.New("service")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.ResolveProviderKey(ctx); err != nil {
		return fmt.Errorf("resolve provider credentials: %w", err)
	}

	provider, err := llm.CreateProvider(cfg.Provider)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}
	log.Info("", "LLM provider ready", map[string]interface{}{
		"provider": provider.Name(),
		"type":     string(provider.Type()),
	})

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	if err := st.InitSchema(); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	q, err := queue.Connect(cfg.RedisURL, cfg.QueueKey)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer q.Close()

	executor := worker.NewExecutor(st, provider).
		WithPolicy(cfg.RetryPolicy()).
		WithRequestTimeout(cfg.RequestTimeout())

	pool := queue.NewPool(q, cfg.Workers, executor.RunGeneration)
	pool.Start()
	defer pool.Stop()

	go watchQueueDepth(ctx, q)

	server := NewServer(st, q, provider)
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: c.Handler(server.Routes()),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "Care plan service listening", map[string]interface{}{"port": cfg.Port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("", "Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorWithErr("", "HTTP shutdown failed", err, nil)
	}

	return nil
}

// watchQueueDepth refreshes the queue size gauge until ctx is canceled.
func watchQueueDepth(ctx context.Context, q *queue.Queue) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := q.Depth(ctx); err == nil {
				metrics.QueueSize.Set(float64(depth))
			}
		}
	}
}
