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
	"fmt"
	"sync"
	"time"
)

// MockDefaultModel is the model identifier reported by the mock provider.
const MockDefaultModel = "mock-model-v1"

// NewMockProviderFactory creates a deterministic in-process provider for
// local development and tests. It never makes network calls.
func NewMockProviderFactory(config ProviderConfig) (Provider, error) {
	name := config.Name
	if name == "" {
		name = string(ProviderTypeMock)
	}

	model := config.Model
	if model == "" {
		model = MockDefaultModel
	}

	return &MockProvider{name: name, model: model}, nil
}

// MockProvider returns canned completions with synthetic token counts.
// Failures can be injected per-call for exercising the retry controller.
type MockProvider struct {
	name  string
	model string

	mu       sync.Mutex
	failures []error
	calls    int
}

// Name returns the provider instance name.
func (p *MockProvider) Name() string {
	return p.name
}

// Type returns the provider type.
func (p *MockProvider) Type() ProviderType {
	return ProviderTypeMock
}

// FailWith queues errors to be returned by subsequent Complete calls, in
// order, before successful completions resume.
func (p *MockProvider) FailWith(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, errs...)
}

// Calls returns the number of Complete invocations so far.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Complete returns a canned care-plan body derived from the prompt.
func (p *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := validateRequest(p.name, req); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, transportError(p.name, err)
	}

	p.mu.Lock()
	p.calls++
	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Unlock()

	content := fmt.Sprintf("MOCK CARE PLAN\n\n%s\n\nThis plan was produced by the mock provider for development use.", req.Prompt)

	// Rough 4-chars-per-token heuristic keeps usage numbers plausible.
	promptTokens := (len(req.Prompt) + len(req.SystemPrompt)) / 4
	completionTokens := len(content) / 4

	return &CompletionResponse{
		Content: content,
		Model:   p.model,
		Usage: UsageStats{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Latency: time.Millisecond,
	}, nil
}

// HealthCheck always reports healthy.
func (p *MockProvider) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	return &HealthCheckResult{
		Status:      HealthStatusHealthy,
		Message:     "mock provider is always operational",
		LastChecked: time.Now(),
	}, nil
}
