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

package worker

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryPolicy configures the generation retry loop. The attempt counter and
// backoff are computed here, deterministically, rather than delegated to any
// queue's retry feature.
type RetryPolicy struct {
	// MaxAttempts caps total attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// Multiplier grows the backoff after each attempt.
	Multiplier float64
}

// DefaultRetryPolicy matches production tuning: 3 attempts, 60s initial
// backoff doubling up to 600s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 60 * time.Second,
		MaxBackoff:     600 * time.Second,
		Multiplier:     2.0,
	}
}

// BackoffFor returns the wait after the given 1-based attempt number.
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	interval := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if interval > float64(p.MaxBackoff) {
		interval = float64(p.MaxBackoff)
	}
	return time.Duration(interval)
}

// RetriesExhaustedError is the terminal failure after MaxAttempts retryable
// errors. The order is marked failed; downstream status queries see only
// the failed status while this carries the detail for operational tooling.
type RetriesExhaustedError struct {
	OrderID  string
	Attempts int
	LastErr  error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("generation for order %s failed after %d attempts: %v", e.OrderID, e.Attempts, e.LastErr)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}

// sleepFunc waits for the backoff interval, honoring cancellation. Replaced
// in tests to avoid real waits.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
