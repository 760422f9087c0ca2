// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads service configuration. Environment variables are the
// primary source; an optional YAML file (CAREPLAN_CONFIG_FILE) supplies
// provider and retry tuning, with ${VAR} references expanded before parsing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"axonflow/careplan/llm"
	"axonflow/careplan/worker"
)

// Config holds everything the service needs to start.
type Config struct {
	// Port is the HTTP listen port.
	Port string `yaml:"port"`

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `yaml:"database_url"`

	// RedisURL is the Redis connection string for the generation queue.
	RedisURL string `yaml:"redis_url"`

	// QueueKey overrides the Redis list key for generation tasks.
	QueueKey string `yaml:"queue_key"`

	// Workers is the number of concurrent generation workers.
	Workers int `yaml:"workers"`

	// RequestTimeoutSeconds bounds a single LLM provider call.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// Provider configures the LLM backend.
	Provider llm.ProviderConfig `yaml:"provider"`

	// Retry tunes the generation retry loop.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig is the YAML/env shape of the retry policy.
type RetryConfig struct {
	MaxAttempts           int     `yaml:"max_attempts"`
	InitialBackoffSeconds int     `yaml:"initial_backoff_seconds"`
	MaxBackoffSeconds     int     `yaml:"max_backoff_seconds"`
	Multiplier            float64 `yaml:"multiplier"`
}

// Load reads configuration in precedence order: built-in defaults, then the
// optional config file, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CAREPLAN_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return cfg, nil
}

func defaults() *Config {
	policy := worker.DefaultRetryPolicy()
	return &Config{
		Port:                  "8080",
		Workers:               4,
		RequestTimeoutSeconds: int(worker.DefaultRequestTimeout / time.Second),
		Provider: llm.ProviderConfig{
			Type: llm.ProviderTypeMock,
		},
		Retry: RetryConfig{
			MaxAttempts:           policy.MaxAttempts,
			InitialBackoffSeconds: int(policy.InitialBackoff / time.Second),
			MaxBackoffSeconds:     int(policy.MaxBackoff / time.Second),
			Multiplier:            policy.Multiplier,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.QueueKey = getEnv("CAREPLAN_QUEUE_KEY", cfg.QueueKey)
	cfg.Workers = getEnvInt("CAREPLAN_WORKERS", cfg.Workers)
	cfg.RequestTimeoutSeconds = getEnvInt("LLM_REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeoutSeconds)

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.Provider.Type = llm.ProviderType(v)
	}
	cfg.Provider.APIKey = getEnv("LLM_API_KEY", cfg.Provider.APIKey)
	cfg.Provider.APIKeySecretARN = getEnv("LLM_API_KEY_SECRET_ARN", cfg.Provider.APIKeySecretARN)
	cfg.Provider.Model = getEnv("LLM_MODEL", cfg.Provider.Model)
	cfg.Provider.Endpoint = getEnv("LLM_ENDPOINT", cfg.Provider.Endpoint)
	cfg.Provider.MaxTokens = getEnvInt("LLM_MAX_TOKENS", cfg.Provider.MaxTokens)
	cfg.Provider.Temperature = getEnvFloat("LLM_TEMPERATURE", cfg.Provider.Temperature)
	cfg.Provider.Region = getEnv("AWS_REGION", cfg.Provider.Region)

	cfg.Retry.MaxAttempts = getEnvInt("CAREPLAN_RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.InitialBackoffSeconds = getEnvInt("CAREPLAN_RETRY_INITIAL_BACKOFF_SECONDS", cfg.Retry.InitialBackoffSeconds)
	cfg.Retry.MaxBackoffSeconds = getEnvInt("CAREPLAN_RETRY_MAX_BACKOFF_SECONDS", cfg.Retry.MaxBackoffSeconds)
}

// RetryPolicy converts the retry tuning into the executor's policy type.
func (c *Config) RetryPolicy() worker.RetryPolicy {
	policy := worker.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: time.Duration(c.Retry.InitialBackoffSeconds) * time.Second,
		MaxBackoff:     time.Duration(c.Retry.MaxBackoffSeconds) * time.Second,
		Multiplier:     c.Retry.Multiplier,
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = worker.DefaultRetryPolicy().Multiplier
	}
	return policy
}

// RequestTimeout returns the per-attempt provider call timeout.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return worker.DefaultRequestTimeout
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}
