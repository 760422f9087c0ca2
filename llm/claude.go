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
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// ClaudeDefaultEndpoint is the Anthropic API base URL.
	ClaudeDefaultEndpoint = "https://api.anthropic.com"

	// ClaudeAPIVersion is the Anthropic API version header value.
	ClaudeAPIVersion = "2023-06-01"

	// ClaudeDefaultModel is used when no model is configured.
	ClaudeDefaultModel = "claude-sonnet-4-20250514"

	// ClaudeDefaultTimeout bounds a single completion call.
	ClaudeDefaultTimeout = 120 * time.Second

	// ClaudeDefaultMaxTokens is the default completion token limit.
	ClaudeDefaultMaxTokens = 4096
)

// NewClaudeProviderFactory creates a Claude provider from configuration.
func NewClaudeProviderFactory(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Claude provider")
	}

	name := config.Name
	if name == "" {
		name = string(ProviderTypeClaude)
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = ClaudeDefaultEndpoint
	}

	model := config.Model
	if model == "" {
		model = ClaudeDefaultModel
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = ClaudeDefaultMaxTokens
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = ClaudeDefaultTimeout
	}

	return &ClaudeProvider{
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

// ClaudeProvider implements Provider for Anthropic's Claude models via the
// messages API.
type ClaudeProvider struct {
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
func (p *ClaudeProvider) Name() string {
	return p.name
}

// Type returns the provider type.
func (p *ClaudeProvider) Type() ProviderType {
	return ProviderTypeClaude
}

// Complete generates a completion using the Anthropic messages API.
func (p *ClaudeProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
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

	// Temperature 0.0 is valid (deterministic); nil falls back to the
	// configured default, negative config means provider default.
	temperature := p.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	apiReq := claudeRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []claudeMessage{
			{Role: "user", Content: req.Prompt},
		},
	}

	if temperature >= 0 {
		apiReq.Temperature = &temperature
	}

	if req.SystemPrompt != "" {
		apiReq.System = req.SystemPrompt
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint+"/v1/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", ClaudeAPIVersion)

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

	var apiResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &ProviderError{
			Provider:  p.name,
			Code:      ErrCodeInvalidResponse,
			Message:   fmt.Sprintf("failed to decode response: %v", err),
			Retryable: true,
			Cause:     err,
		}
	}

	var contentBuilder strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			contentBuilder.WriteString(block.Text)
		}
	}

	content := contentBuilder.String()
	if content == "" {
		return nil, &ProviderError{
			Provider:  p.name,
			Code:      ErrCodeInvalidResponse,
			Message:   "provider returned empty completion",
			Retryable: true,
		}
	}

	return &CompletionResponse{
		Content: content,
		Model:   apiResp.Model,
		Usage: UsageStats{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// HealthCheck verifies the provider is operational.
func (p *ClaudeProvider) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
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

func (p *ClaudeProvider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// parseAPIError maps an Anthropic error response onto the shared taxonomy.
func (p *ClaudeProvider) parseAPIError(statusCode int, body []byte) error {
	var errResp struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	message := string(body)
	errType := ""
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		errType = errResp.Error.Type
	}

	code := classifyStatus(statusCode)
	if errType == "authentication_error" {
		code = ErrCodeAuth
	}
	if errType == "rate_limit_error" {
		code = ErrCodeRateLimit
	}
	if errType == "overloaded_error" {
		code = ErrCodeServerError
	}

	return &ProviderError{
		Provider:   p.name,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  isRetryableCode(code),
	}
}

// classifyStatus maps an HTTP status onto an error code.
func classifyStatus(statusCode int) string {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrCodeAuth
	case statusCode == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case statusCode >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeInvalidRequest
	}
}

// transportError wraps a network-level failure. Context deadline expiry is
// reported as a timeout; both classes are retryable.
func transportError(provider string, err error) error {
	code := ErrCodeTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = ErrCodeTimeout
	}
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   err.Error(),
		Retryable: true,
		Cause:     err,
	}
}

// Internal API types.

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Role       string `json:"role"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
