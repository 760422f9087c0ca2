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
	"fmt"
	"sync"
	"time"
)

// ProviderConfig contains the configuration used to construct a provider.
// It is read once at process start; the constructed provider instance is
// process-wide and stateless aside from its embedded settings.
type ProviderConfig struct {
	// Name is the identifier for this provider instance. Defaults to the
	// provider type when empty.
	Name string `json:"name" yaml:"name"`

	// Type selects the provider implementation.
	Type ProviderType `json:"type" yaml:"type"`

	// APIKey authenticates against the provider API. Bedrock uses IAM and
	// leaves this empty.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// APIKeySecretARN is an AWS Secrets Manager ARN resolved into APIKey at
	// startup. Used instead of APIKey in production deployments.
	APIKeySecretARN string `json:"api_key_secret_arn,omitempty" yaml:"api_key_secret_arn,omitempty"`

	// Endpoint overrides the provider's default API endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Model is the default model for completions.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Region is the cloud region (Bedrock only).
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// MaxTokens is the default completion token limit.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`

	// Temperature is the default sampling temperature. Negative means
	// provider default.
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// Timeout bounds a single completion call. Distinct from retry backoff.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ProviderFactory creates a Provider from configuration. Factories validate
// the config and return an error if it cannot produce a working provider.
type ProviderFactory func(config ProviderConfig) (Provider, error)

// factoryRegistry holds registered provider factories.
type factoryRegistry struct {
	factories map[ProviderType]ProviderFactory
	mu        sync.RWMutex
}

var globalRegistry = &factoryRegistry{
	factories: make(map[ProviderType]ProviderFactory),
}

func init() {
	RegisterFactory(ProviderTypeClaude, NewClaudeProviderFactory)
	RegisterFactory(ProviderTypeOpenAI, NewOpenAIProviderFactory)
	RegisterFactory(ProviderTypeBedrock, NewBedrockProviderFactory)
	RegisterFactory(ProviderTypeMock, NewMockProviderFactory)
}

// RegisterFactory registers a factory for a provider type, overwriting any
// previous registration. Built-in providers register themselves in init().
func RegisterFactory(providerType ProviderType, factory ProviderFactory) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.factories[providerType] = factory
}

// GetFactory returns the factory for a provider type, or nil if not registered.
func GetFactory(providerType ProviderType) ProviderFactory {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	return globalRegistry.factories[providerType]
}

// ListFactories returns all registered provider types.
func ListFactories() []ProviderType {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	types := make([]ProviderType, 0, len(globalRegistry.factories))
	for pt := range globalRegistry.factories {
		types = append(types, pt)
	}
	return types
}

// CreateProvider constructs the provider selected by config. An unrecognized
// provider type yields a FactoryError with code ErrFactoryUnknownProvider;
// callers treat that as a fatal configuration fault.
func CreateProvider(config ProviderConfig) (Provider, error) {
	if config.Type == "" {
		return nil, &FactoryError{
			Code:    ErrFactoryMissingType,
			Message: "provider type is required",
		}
	}

	factory := GetFactory(config.Type)
	if factory == nil {
		return nil, &FactoryError{
			ProviderType: config.Type,
			Code:         ErrFactoryUnknownProvider,
			Message:      fmt.Sprintf("unknown provider type %q", config.Type),
		}
	}

	provider, err := factory(config)
	if err != nil {
		return nil, &FactoryError{
			ProviderType: config.Type,
			Code:         ErrFactoryCreationFailed,
			Message:      fmt.Sprintf("failed to create provider: %v", err),
			Cause:        err,
		}
	}

	return provider, nil
}

// Factory error codes.
const (
	// ErrFactoryUnknownProvider indicates no factory exists for the
	// configured provider type.
	ErrFactoryUnknownProvider = "unknown_provider"

	// ErrFactoryMissingType indicates the provider type was not specified.
	ErrFactoryMissingType = "missing_provider_type"

	// ErrFactoryCreationFailed indicates the factory rejected the config.
	ErrFactoryCreationFailed = "creation_failed"
)

// FactoryError represents a provider construction failure. These are
// configuration faults: fatal, never retried, surfaced at startup.
type FactoryError struct {
	ProviderType ProviderType
	Code         string
	Message      string
	Cause        error
}

// Error implements the error interface.
func (e *FactoryError) Error() string {
	if e.ProviderType != "" {
		return fmt.Sprintf("provider factory error for %q: %s", e.ProviderType, e.Message)
	}
	return fmt.Sprintf("provider factory error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *FactoryError) Unwrap() error {
	return e.Cause
}
