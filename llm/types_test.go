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
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorCodeRetryability(t *testing.T) {
	retryable := []string{
		ErrCodeTransport,
		ErrCodeTimeout,
		ErrCodeRateLimit,
		ErrCodeServerError,
		ErrCodeInvalidResponse,
	}
	for _, code := range retryable {
		err := NewProviderError("claude", code, "boom")
		if !IsRetryable(err) {
			t.Errorf("code %s should be retryable", code)
		}
	}

	fatal := []string{ErrCodeAuth, ErrCodeInvalidRequest}
	for _, code := range fatal {
		err := NewProviderError("claude", code, "boom")
		if IsRetryable(err) {
			t.Errorf("code %s should not be retryable", code)
		}
	}
}

func TestIsRetryableNonProviderError(t *testing.T) {
	if IsRetryable(errors.New("plain error")) {
		t.Error("plain errors should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}

func TestIsRetryableWrappedError(t *testing.T) {
	inner := NewProviderError("openai", ErrCodeRateLimit, "throttled")
	wrapped := fmt.Errorf("attempt 2: %w", inner)

	if !IsRetryable(wrapped) {
		t.Error("wrapped retryable error should stay retryable")
	}
	if got := ErrorCode(wrapped); got != ErrCodeRateLimit {
		t.Errorf("ErrorCode = %q, want %q", got, ErrCodeRateLimit)
	}
}

func TestIsAuthError(t *testing.T) {
	authErr := NewProviderError("claude", ErrCodeAuth, "bad key")
	if !IsAuthError(authErr) {
		t.Error("authentication_error should report as auth error")
	}
	if IsAuthError(NewProviderError("claude", ErrCodeTimeout, "slow")) {
		t.Error("timeout should not report as auth error")
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ProviderError{
		Provider:  "claude",
		Code:      ErrCodeTransport,
		Message:   cause.Error(),
		Retryable: true,
		Cause:     cause,
	}

	if !errors.Is(err, cause) {
		t.Error("ProviderError should unwrap to its cause")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := NewProviderError("openai", ErrCodeServerError, "internal error")
	msg := err.Error()
	if msg == "" {
		t.Fatal("Error() returned empty string")
	}
	for _, want := range []string{"openai", ErrCodeServerError, "internal error"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}
