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

// Package metrics defines all Prometheus metrics for the care-plan pipeline
// in one place, keeping names consistent and registration single-shot.
//
// Naming convention: careplan_<name>_<unit>.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"axonflow/careplan/common/usage"
)

var (
	// OrderCreatedTotal counts order creation outcomes at the API layer.
	OrderCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careplan_order_created_total",
			Help: "Total number of orders created",
		},
		[]string{"status"}, // success, validation_error, duplicate_blocked, error
	)

	// DuplicateDetectionTotal counts duplicate gate outcomes per entity.
	DuplicateDetectionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careplan_duplicate_detection_total",
			Help: "Duplicate detection results by type",
		},
		[]string{"entity_type", "result"}, // entity_type: order; result: exact_match, none
	)

	// GenerationTotal counts generation attempts by terminal outcome.
	GenerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careplan_generation_total",
			Help: "Total care plan generation attempts",
		},
		[]string{"status"}, // success, error, already_exists, order_not_found
	)

	// GenerationDuration tracks end-to-end generation time including the LLM call.
	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "careplan_generation_duration_seconds",
			Help:    "Time spent generating care plans (including LLM call)",
			Buckets: []float64{1.0, 2.5, 5.0, 10.0, 20.0, 30.0, 60.0, 120.0},
		},
	)

	// QueueSize gauges the number of tasks waiting in the generation queue.
	QueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "careplan_queue_size",
			Help: "Number of care plans pending generation",
		},
	)

	// QueuedTotal counts enqueue outcomes.
	QueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careplan_queued_total",
			Help: "Care plan generation tasks queued",
		},
		[]string{"status"}, // success, error
	)

	// RetryTotal counts generation retries across all orders.
	RetryTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "careplan_retry_total",
			Help: "Care plan generation retries",
		},
	)

	// LLMRequestTotal counts provider calls by outcome.
	LLMRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careplan_llm_request_total",
			Help: "Total LLM API requests",
		},
		[]string{"provider", "status"}, // status: success/error/timeout
	)

	// LLMRequestDuration tracks per-provider call latency.
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "careplan_llm_request_duration_seconds",
			Help:    "LLM API request latency",
			Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 20.0, 30.0, 60.0},
		},
		[]string{"provider"},
	)

	// LLMTokensTotal counts tokens by provider and type.
	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careplan_llm_tokens_total",
			Help: "Total LLM tokens used",
		},
		[]string{"provider", "token_type"}, // token_type: prompt/completion
	)

	// LLMCostDollarsTotal accumulates estimated spend per provider and model.
	LLMCostDollarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careplan_llm_cost_dollars_total",
			Help: "Estimated LLM cost in dollars",
		},
		[]string{"provider", "model"},
	)

	// APIRequestTotal counts HTTP requests per endpoint.
	APIRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careplan_api_request_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// APIRequestDuration tracks HTTP handler latency per endpoint.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "careplan_api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"method", "endpoint"},
	)
)

func init() {
	prometheus.MustRegister(OrderCreatedTotal)
	prometheus.MustRegister(DuplicateDetectionTotal)
	prometheus.MustRegister(GenerationTotal)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(QueueSize)
	prometheus.MustRegister(QueuedTotal)
	prometheus.MustRegister(RetryTotal)
	prometheus.MustRegister(LLMRequestTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(LLMTokensTotal)
	prometheus.MustRegister(LLMCostDollarsTotal)
	prometheus.MustRegister(APIRequestTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// RecordLLMUsage records token counts, latency, and estimated cost for one
// successful provider call.
func RecordLLMUsage(provider, model string, promptTokens, completionTokens int, elapsed time.Duration) {
	LLMRequestTotal.WithLabelValues(provider, "success").Inc()
	LLMRequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	LLMTokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	LLMTokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	cents := usage.CalculateCost(model, promptTokens, completionTokens)
	LLMCostDollarsTotal.WithLabelValues(provider, model).Add(usage.CostDollars(cents))
}

// RecordLLMError records a failed provider call. Timeouts get their own
// status so latency budget exhaustion stands out from hard errors.
func RecordLLMError(provider string, timeout bool, elapsed time.Duration) {
	status := "error"
	if timeout {
		status = "timeout"
	}
	LLMRequestTotal.WithLabelValues(provider, status).Inc()
	LLMRequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}
