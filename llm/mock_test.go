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
	"strings"
	"testing"
)

func TestMockProviderComplete(t *testing.T) {
	provider, err := NewMockProviderFactory(ProviderConfig{Type: ProviderTypeMock})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}

	resp, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "Generate a plan"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if !strings.Contains(resp.Content, "MOCK CARE PLAN") {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Model != MockDefaultModel {
		t.Errorf("model = %q, want %q", resp.Model, MockDefaultModel)
	}
	if resp.Usage.TotalTokens != resp.Usage.PromptTokens+resp.Usage.CompletionTokens {
		t.Errorf("usage does not add up: %+v", resp.Usage)
	}
}

func TestMockProviderFailureInjection(t *testing.T) {
	provider, _ := NewMockProviderFactory(ProviderConfig{Type: ProviderTypeMock})
	mock := provider.(*MockProvider)

	injected := NewProviderError("mock", ErrCodeServerError, "injected")
	mock.FailWith(injected, injected)

	ctx := context.Background()
	req := CompletionRequest{Prompt: "p"}

	// Two injected failures, then success.
	for i := 0; i < 2; i++ {
		if _, err := mock.Complete(ctx, req); err != injected {
			t.Fatalf("call %d: err = %v, want injected error", i+1, err)
		}
	}
	if _, err := mock.Complete(ctx, req); err != nil {
		t.Fatalf("third call should succeed: %v", err)
	}
	if mock.Calls() != 3 {
		t.Errorf("calls = %d, want 3", mock.Calls())
	}
}

func TestMockProviderEmptyPrompt(t *testing.T) {
	provider, _ := NewMockProviderFactory(ProviderConfig{Type: ProviderTypeMock})

	_, err := provider.Complete(context.Background(), CompletionRequest{})
	if got := ErrorCode(err); got != ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", got, ErrCodeInvalidRequest)
	}
}

func TestMockProviderHealthCheck(t *testing.T) {
	provider, _ := NewMockProviderFactory(ProviderConfig{Type: ProviderTypeMock})

	result, err := provider.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if result.Status != HealthStatusHealthy {
		t.Errorf("status = %q, want healthy", result.Status)
	}
}
