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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// OpenAIDefaultEndpoint is the OpenAI API base URL.
	OpenAIDefaultEndpoint = "https://api.openai.com"

	// OpenAIDefaultModel is used when no model is configured.
	OpenAIDefaultModel = "gpt-4o"

	// OpenAIDefaultTimeout bounds a single completion call.
	OpenAIDefaultTimeout = 120 * time.Second

	// OpenAIDefaultMaxTokens is the default completion token limit.
	OpenAIDefaultMaxTokens = 4096
)

// NewOpenAIProviderFactory creates an OpenAI provider from configuration.
func NewOpenAIProviderFactory(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI provider")
	}

	name := config.Name
	if name == "" {
		name = string(ProviderTypeOpenAI)
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = OpenAIDefaultEndpoint
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = OpenAIDefaultMaxTokens
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = OpenAIDefaultTimeout
	}

	return &OpenAIProvider{
		name:        name,
		apiKey:      config.APIKey,
		endpoint:    endpoint,
		model:       model,
		maxTokens:   maxTokens,
		temperature: config.Temperature,
		client:      &http.Client{Timeout: timeout},
		healthy:     true,
	}, nil
}

// OpenAIProvider implements Provider for OpenAI's GPT models.
type OpenAIProvider struct {
	name        string
	apiKey      string
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	healthy     bool
	mu          sync.RWMutex
}

// Name returns the provider instance name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Type returns the provider type.
func (p *OpenAIProvider) Type() ProviderType {
	return ProviderTypeOpenAI
}

// Complete generates a completion using the chat completions API.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := validateRequest(p.name, req); err != nil {
		return nil, err
	}

	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	temperature := p.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	messages := make([]map[string]string, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": req.SystemPrompt,
		})
	}
	messages = append(messages, map[string]string{
		"role":    "user",
		"content": req.Prompt,
	})

	openAIReq := map[string]any{
		"model":      model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	if temperature >= 0 {
		openAIReq["temperature"] = temperature
	}

	reqBody, err := json.Marshal(openAIReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint+"/v1/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return nil, transportError(p.name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			p.setHealthy(false)
		}
		return nil, p.parseAPIError(resp.StatusCode, body)
	}

	p.setHealthy(true)

	var openAIResp struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Index   int `json:"index"`
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&openAIResp); err != nil {
		return nil, &ProviderError{
			Provider:  p.name,
			Code:      ErrCodeInvalidResponse,
			Message:   fmt.Sprintf("failed to decode response: %v", err),
			Retryable: true,
			Cause:     err,
		}
	}

	if len(openAIResp.Choices) == 0 || openAIResp.Choices[0].Message.Content == "" {
		return nil, &ProviderError{
			Provider:  p.name,
			Code:      ErrCodeInvalidResponse,
			Message:   "provider returned empty completion",
			Retryable: true,
		}
	}

	return &CompletionResponse{
		Content: openAIResp.Choices[0].Message.Content,
		Model:   openAIResp.Model,
		Usage: UsageStats{
			PromptTokens:     openAIResp.Usage.PromptTokens,
			CompletionTokens: openAIResp.Usage.CompletionTokens,
			TotalTokens:      openAIResp.Usage.TotalTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// HealthCheck verifies the provider is operational.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	p.mu.RLock()
	healthy := p.healthy && p.apiKey != ""
	p.mu.RUnlock()

	status := HealthStatusUnhealthy
	message := "provider reports unhealthy"
	if healthy {
		status = HealthStatusHealthy
		message = "provider is operational"
	}

	return &HealthCheckResult{
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
	}, nil
}

func (p *OpenAIProvider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// parseAPIError maps an OpenAI error response onto the shared taxonomy.
func (p *OpenAIProvider) parseAPIError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	code := classifyStatus(statusCode)
	if errResp.Error.Code == "invalid_api_key" {
		code = ErrCodeAuth
	}

	return &ProviderError{
		Provider:   p.name,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  isRetryableCode(code),
	}
}
