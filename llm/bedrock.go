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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	// BedrockDefaultRegion is used when no region is configured.
	BedrockDefaultRegion = "us-east-1"

	// BedrockDefaultModel is used when no model is configured. Only the
	// Anthropic model family is supported for care-plan generation.
	BedrockDefaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

	// bedrockAnthropicVersion is the required version marker for Anthropic
	// request bodies on Bedrock.
	bedrockAnthropicVersion = "bedrock-2023-05-31"
)

// bedrockClient is the subset of the Bedrock runtime client used here.
// Narrowed to an interface so tests can stub the AWS call.
type bedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// NewBedrockProviderFactory creates an AWS Bedrock provider. Bedrock uses
// AWS Signature V4 via IAM roles, so no API key is required.
func NewBedrockProviderFactory(config ProviderConfig) (Provider, error) {
	region := config.Region
	if region == "" {
		region = BedrockDefaultRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", region, err)
	}

	return newBedrockProvider(config, region, bedrockruntime.NewFromConfig(awsCfg)), nil
}

func newBedrockProvider(config ProviderConfig, region string, client bedrockClient) *BedrockProvider {
	name := config.Name
	if name == "" {
		name = string(ProviderTypeBedrock)
	}

	model := config.Model
	if model == "" {
		model = BedrockDefaultModel
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = ClaudeDefaultMaxTokens
	}

	return &BedrockProvider{
		name:        name,
		region:      region,
		model:       model,
		maxTokens:   maxTokens,
		temperature: config.Temperature,
		client:      client,
		healthy:     true,
	}
}

// BedrockProvider implements Provider for AWS Bedrock using the AWS SDK v2.
type BedrockProvider struct {
	name        string
	region      string
	model       string
	maxTokens   int
	temperature float64
	client      bedrockClient
	healthy     bool
	mu          sync.RWMutex
}

// Name returns the provider instance name.
func (p *BedrockProvider) Name() string {
	return p.name
}

// Type returns the provider type.
func (p *BedrockProvider) Type() ProviderType {
	return ProviderTypeBedrock
}

// Complete generates a completion via bedrockruntime.InvokeModel.
func (p *BedrockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
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

	body := map[string]any{
		"anthropic_version": bedrockAnthropicVersion,
		"max_tokens":        maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if temperature >= 0 {
		body["temperature"] = temperature
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}

	requestJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        requestJSON,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		p.setHealthy(false)
		return nil, classifyBedrockError(p.name, err)
	}

	p.setHealthy(true)

	var apiResp struct {
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
	if err := json.Unmarshal(output.Body, &apiResp); err != nil {
		return nil, &ProviderError{
			Provider:  p.name,
			Code:      ErrCodeInvalidResponse,
			Message:   fmt.Sprintf("failed to parse response: %v", err),
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

	respModel := apiResp.Model
	if respModel == "" {
		respModel = model
	}

	return &CompletionResponse{
		Content: content,
		Model:   respModel,
		Usage: UsageStats{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// HealthCheck verifies the provider is operational.
func (p *BedrockProvider) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	p.mu.RLock()
	healthy := p.healthy
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

func (p *BedrockProvider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// classifyBedrockError maps AWS SDK errors onto the shared taxonomy. The SDK
// wraps service faults in typed errors; match on the fault name before
// falling back to transport classification.
func classifyBedrockError(provider string, err error) error {
	msg := err.Error()
	code := ErrCodeTransport

	switch {
	case strings.Contains(msg, "ThrottlingException"):
		code = ErrCodeRateLimit
	case strings.Contains(msg, "AccessDeniedException"),
		strings.Contains(msg, "UnrecognizedClientException"),
		strings.Contains(msg, "no valid providers in chain"):
		code = ErrCodeAuth
	case strings.Contains(msg, "ServiceUnavailableException"),
		strings.Contains(msg, "InternalServerException"),
		strings.Contains(msg, "ModelTimeoutException"):
		code = ErrCodeServerError
	case strings.Contains(msg, "ValidationException"):
		code = ErrCodeInvalidRequest
	}

	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   msg,
		Retryable: isRetryableCode(code),
		Cause:     err,
	}
}
