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

// Package llm provides a unified interface over the LLM backends used for
// care-plan generation. It defines the provider abstraction, the request and
// response types shared by all backends, and the typed error taxonomy the
// retry controller depends on to distinguish transient from fatal failures.
package llm

import (
	"errors"
	"fmt"
	"time"
)

// ProviderType identifies the configured LLM backend.
type ProviderType string

// Provider types supported out of the box.
const (
	// ProviderTypeClaude represents Anthropic's Claude models via the
	// Anthropic messages API.
	ProviderTypeClaude ProviderType = "claude"

	// ProviderTypeOpenAI represents OpenAI's GPT models.
	ProviderTypeOpenAI ProviderType = "openai"

	// ProviderTypeBedrock represents AWS Bedrock managed models (IAM auth,
	// no API key required).
	ProviderTypeBedrock ProviderType = "bedrock"

	// ProviderTypeMock is a deterministic in-process provider for local
	// development and tests.
	ProviderTypeMock ProviderType = "mock"
)

// CompletionRequest encapsulates the parameters for a single completion call.
type CompletionRequest struct {
	// Prompt is the user message. Must be non-empty.
	Prompt string `json:"prompt"`

	// SystemPrompt is an optional system message setting context/behavior.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens limits the response length. If 0, provider defaults apply.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Nil means "use the provider's
	// configured default"; 0.0 is a valid explicit value (deterministic).
	Temperature *float64 `json:"temperature,omitempty"`

	// Model overrides the provider's configured default model.
	Model string `json:"model,omitempty"`
}

// CompletionResponse contains the result of a completion call.
type CompletionResponse struct {
	// Content is the generated text. Non-empty on success.
	Content string `json:"content"`

	// Model is the model the provider actually used.
	Model string `json:"model"`

	// Usage contains token accounting for metering and cost estimation.
	Usage UsageStats `json:"usage"`

	// Latency is the wall-clock duration of the provider call.
	Latency time.Duration `json:"latency"`
}

// UsageStats tracks token usage for billing and monitoring.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Error codes reported by providers. The retry controller keys off these.
const (
	// ErrCodeTransport indicates a network-level failure reaching the
	// provider, including connection resets and DNS failures. Retryable.
	ErrCodeTransport = "transport_error"

	// ErrCodeTimeout indicates the request exceeded its deadline. Retryable.
	ErrCodeTimeout = "timeout"

	// ErrCodeRateLimit indicates the provider throttled the request.
	// Retryable with backoff.
	ErrCodeRateLimit = "rate_limit"

	// ErrCodeServerError indicates a 5xx from the provider. Retryable.
	ErrCodeServerError = "server_error"

	// ErrCodeInvalidResponse indicates the provider returned a malformed or
	// empty completion. Treated as retryable: a bad response may be transient.
	ErrCodeInvalidResponse = "invalid_response"

	// ErrCodeAuth indicates rejected credentials. Never retried.
	ErrCodeAuth = "authentication_error"

	// ErrCodeInvalidRequest indicates the request itself was malformed.
	// Never retried.
	ErrCodeInvalidRequest = "invalid_request"
)

// ProviderError is the typed failure returned by all providers.
type ProviderError struct {
	// Provider is the name of the provider that produced the error.
	Provider string `json:"provider"`

	// Code is one of the ErrCode* constants.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// StatusCode is the HTTP status, when applicable.
	StatusCode int `json:"status_code,omitempty"`

	// Retryable reports whether the retry controller may re-attempt.
	Retryable bool `json:"retryable"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a ProviderError with Retryable derived from the code.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: isRetryableCode(code),
	}
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTransport, ErrCodeTimeout, ErrCodeRateLimit, ErrCodeServerError, ErrCodeInvalidResponse:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a provider error the retry controller
// may re-attempt. Non-provider errors are conservatively treated as
// non-retryable.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsAuthError reports whether err is a credential failure.
func IsAuthError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == ErrCodeAuth
}

// ErrorCode extracts the machine-readable code from a provider error, or
// "unknown" for anything else. Used for metrics labels and logging.
func ErrorCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return "unknown"
}
