// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package worker executes care-plan generation tasks. The executor owns the
// retry loop: attempts and backoff are driven here, in-process, so an order
// is claimed from the queue exactly once and stays in status processing for
// the whole retry budget. Re-delivered or duplicate tasks are shed by the
// pending-only claim in the store, not by the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"axonflow/careplan/llm"
	"axonflow/careplan/metrics"
	"axonflow/careplan/shared/logger"
	"axonflow/careplan/store"
)

// DefaultRequestTimeout bounds a single provider call. Distinct from the
// backoff intervals, which pace the attempts.
const DefaultRequestTimeout = 120 * time.Second

// Executor runs one generation task end to end: claim the order, call the
// provider with retries, persist the plan, settle the order status.
type Executor struct {
	store          *store.Store
	provider       llm.Provider
	policy         RetryPolicy
	requestTimeout time.Duration
	log            *logger.Logger
	sleep          sleepFunc
}

// NewExecutor builds an executor with the default retry policy and request
// timeout. Use the With* methods to override tuning from config.
func NewExecutor(st *store.Store, provider llm.Provider) *Executor {
	return &Executor{
		store:          st,
		provider:       provider,
		policy:         DefaultRetryPolicy(),
		requestTimeout: DefaultRequestTimeout,
		log:            logger.New("worker"),
		sleep:          sleepWithContext,
	}
}

// WithPolicy overrides the retry policy.
func (e *Executor) WithPolicy(policy RetryPolicy) *Executor {
	if policy.MaxAttempts > 0 {
		e.policy = policy
	}
	return e
}

// WithRequestTimeout overrides the per-attempt provider call timeout.
func (e *Executor) WithRequestTimeout(d time.Duration) *Executor {
	if d > 0 {
		e.requestTimeout = d
	}
	return e
}

// RunGeneration processes one queued generation task. It is safe to call
// with the same order ID from multiple workers: only the caller that wins
// the pending-to-processing transition proceeds, every other call returns
// after logging the duplicate claim.
//
// Outcomes recorded in careplan_generation_total: success, error,
// already_exists, order_not_found.
func (e *Executor) RunGeneration(ctx context.Context, orderID string) error {
	start := time.Now()

	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.GenerationTotal.WithLabelValues("order_not_found").Inc()
			e.log.Warn(orderID, "Generation task for unknown order dropped", nil)
			return nil
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	if err := e.store.MarkProcessing(ctx, orderID); err != nil {
		if store.IsAlreadyProcessing(err) {
			metrics.GenerationTotal.WithLabelValues("already_exists").Inc()
			e.log.Info(orderID, "Order already claimed, dropping duplicate task", map[string]interface{}{
				"status": string(order.Status),
			})
			return nil
		}
		return fmt.Errorf("claim order %s: %w", orderID, err)
	}

	resp, genErr := e.generateWithRetry(ctx, order)
	if genErr != nil {
		metrics.GenerationTotal.WithLabelValues("error").Inc()
		metrics.GenerationDuration.Observe(time.Since(start).Seconds())
		if markErr := e.store.MarkFailed(ctx, orderID, genErr.Error()); markErr != nil {
			e.log.ErrorWithErr(orderID, "Failed to mark order failed", markErr, nil)
		}
		e.log.ErrorWithErr(orderID, "Care plan generation failed", genErr, map[string]interface{}{
			"error_code": llm.ErrorCode(genErr),
		})
		return genErr
	}

	meta := store.GenerationMetadata{
		Provider:         e.provider.Name(),
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Duration:         resp.Latency,
	}
	if _, err := e.store.CreateCarePlan(ctx, orderID, resp.Content, meta); err != nil {
		if !store.IsConflict(err) {
			metrics.GenerationTotal.WithLabelValues("error").Inc()
			if markErr := e.store.MarkFailed(ctx, orderID, err.Error()); markErr != nil {
				e.log.ErrorWithErr(orderID, "Failed to mark order failed", markErr, nil)
			}
			return fmt.Errorf("persist care plan for order %s: %w", orderID, err)
		}
		// A plan already exists (manual upload raced the generation). The
		// generated content is discarded; the order still settles.
		e.log.Warn(orderID, "Care plan already present, keeping existing plan", nil)
	}

	if err := e.store.MarkCompleted(ctx, orderID); err != nil {
		return fmt.Errorf("complete order %s: %w", orderID, err)
	}

	elapsed := time.Since(start)
	metrics.GenerationTotal.WithLabelValues("success").Inc()
	metrics.GenerationDuration.Observe(elapsed.Seconds())
	e.log.InfoWithDuration(orderID, "Care plan generated", float64(elapsed.Milliseconds()), map[string]interface{}{
		"provider":          e.provider.Name(),
		"model":             resp.Model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	})
	return nil
}

// generateWithRetry drives the provider call through the retry budget. Only
// retryable provider errors consume backoff; auth and request shape errors
// abort immediately.
func (e *Executor) generateWithRetry(ctx context.Context, order *store.Order) (*llm.CompletionResponse, error) {
	req := llm.CompletionRequest{
		Prompt:       BuildPrompt(order),
		SystemPrompt: systemPrompt,
	}

	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
		attemptStart := time.Now()
		resp, err := e.provider.Complete(attemptCtx, req)
		cancel()

		if err == nil {
			metrics.RecordLLMUsage(e.provider.Name(), resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, time.Since(attemptStart))
			return resp, nil
		}

		lastErr = err
		metrics.RecordLLMError(e.provider.Name(), llm.ErrorCode(err) == llm.ErrCodeTimeout, time.Since(attemptStart))
		if ierr := e.store.IncrementAttempts(ctx, order.ID, err.Error()); ierr != nil {
			e.log.ErrorWithErr(order.ID, "Failed to record attempt", ierr, nil)
		}

		if !llm.IsRetryable(err) {
			e.log.ErrorWithErr(order.ID, "Fatal provider error, not retrying", err, map[string]interface{}{
				"attempt":    attempt,
				"error_code": llm.ErrorCode(err),
			})
			return nil, err
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		backoff := e.policy.BackoffFor(attempt)
		metrics.RetryTotal.Inc()
		e.log.Warn(order.ID, "Provider call failed, backing off", map[string]interface{}{
			"attempt":    attempt,
			"error_code": llm.ErrorCode(err),
			"backoff_ms": backoff.Milliseconds(),
		})
		if err := e.sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("generation for order %s interrupted: %w", order.ID, err)
		}
	}

	return nil, &RetriesExhaustedError{
		OrderID:  order.ID,
		Attempts: e.policy.MaxAttempts,
		LastErr:  lastErr,
	}
}
