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

package llm

import (
	"context"
	"time"
)

// Provider is the unified interface implemented by every LLM backend.
// Implementations must be safe for concurrent use; one instance is shared
// process-wide by all generation workers.
type Provider interface {
	// Name returns the identifier used for routing, logging, and metrics.
	Name() string

	// Type returns the provider type (e.g. "claude", "openai").
	Type() ProviderType

	// Complete generates a completion for the given request. The context
	// carries the per-attempt timeout; an exceeded deadline is reported as
	// a transport-class ProviderError.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// HealthCheck verifies the provider is operational. Implementations
	// should complete within a few seconds.
	HealthCheck(ctx context.Context) (*HealthCheckResult, error)
}

// HealthStatus represents the health state of a provider.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthCheckResult contains health check details for operational tooling.
type HealthCheckResult struct {
	Status      HealthStatus  `json:"status"`
	Latency     time.Duration `json:"latency"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
}

// validateRequest enforces the input contract shared by all providers.
func validateRequest(provider string, req CompletionRequest) error {
	if req.Prompt == "" {
		return &ProviderError{
			Provider: provider,
			Code:     ErrCodeInvalidRequest,
			Message:  "prompt must not be empty",
		}
	}
	return nil
}
