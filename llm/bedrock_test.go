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
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// stubBedrockClient returns canned InvokeModel results.
type stubBedrockClient struct {
	output *bedrockruntime.InvokeModelOutput
	err    error
	input  *bedrockruntime.InvokeModelInput
}

func (s *stubBedrockClient) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	s.input = params
	return s.output, s.err
}

func TestBedrockComplete(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{
		"model":       BedrockDefaultModel,
		"stop_reason": "end_turn",
		"content": []map[string]string{
			{"type": "text", "text": "Bedrock plan"},
		},
		"usage": map[string]int{"input_tokens": 50, "output_tokens": 100},
	})
	stub := &stubBedrockClient{output: &bedrockruntime.InvokeModelOutput{Body: body}}

	provider := newBedrockProvider(ProviderConfig{Type: ProviderTypeBedrock}, "us-east-1", stub)

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Prompt:       "Generate a plan",
		SystemPrompt: "You are a pharmacist",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != "Bedrock plan" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 150 {
		t.Errorf("total tokens = %d, want 150", resp.Usage.TotalTokens)
	}

	// Anthropic bodies on Bedrock must carry the version marker.
	var sent map[string]interface{}
	if err := json.Unmarshal(stub.input.Body, &sent); err != nil {
		t.Fatalf("unmarshal sent body: %v", err)
	}
	if sent["anthropic_version"] != bedrockAnthropicVersion {
		t.Errorf("anthropic_version = %v, want %q", sent["anthropic_version"], bedrockAnthropicVersion)
	}
	if sent["system"] != "You are a pharmacist" {
		t.Errorf("system = %v", sent["system"])
	}
}

func TestBedrockThrottling(t *testing.T) {
	stub := &stubBedrockClient{err: errors.New("operation error Bedrock Runtime: InvokeModel, ThrottlingException: rate exceeded")}
	provider := newBedrockProvider(ProviderConfig{Type: ProviderTypeBedrock}, "us-east-1", stub)

	_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "p"})
	if got := ErrorCode(err); got != ErrCodeRateLimit {
		t.Errorf("code = %q, want %q", got, ErrCodeRateLimit)
	}
	if !IsRetryable(err) {
		t.Error("throttling must be retryable")
	}
}

func TestBedrockAccessDenied(t *testing.T) {
	stub := &stubBedrockClient{err: errors.New("operation error Bedrock Runtime: InvokeModel, AccessDeniedException: not authorized")}
	provider := newBedrockProvider(ProviderConfig{Type: ProviderTypeBedrock}, "us-east-1", stub)

	_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "p"})
	if !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestBedrockEmptyCompletion(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{
		"content": []map[string]string{},
		"usage":   map[string]int{},
	})
	stub := &stubBedrockClient{output: &bedrockruntime.InvokeModelOutput{Body: body}}
	provider := newBedrockProvider(ProviderConfig{Type: ProviderTypeBedrock}, "us-east-1", stub)

	_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "p"})
	if got := ErrorCode(err); got != ErrCodeInvalidResponse {
		t.Errorf("code = %q, want %q", got, ErrCodeInvalidResponse)
	}
}

func TestBedrockConfiguredTemperatureReachesWire(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{
		"model":   BedrockDefaultModel,
		"content": []map[string]string{{"type": "text", "text": "Bedrock plan"}},
		"usage":   map[string]int{"input_tokens": 1, "output_tokens": 1},
	})
	stub := &stubBedrockClient{output: &bedrockruntime.InvokeModelOutput{Body: body}}

	provider := newBedrockProvider(ProviderConfig{Type: ProviderTypeBedrock, Temperature: 0.6}, "us-east-1", stub)

	if _, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "p"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	var sent map[string]interface{}
	if err := json.Unmarshal(stub.input.Body, &sent); err != nil {
		t.Fatalf("unmarshal sent body: %v", err)
	}
	if got, ok := sent["temperature"].(float64); !ok || got != 0.6 {
		t.Fatalf("temperature = %v, want 0.6", sent["temperature"])
	}
}
