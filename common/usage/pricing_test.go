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

package usage

import "testing"

func TestCalculateCost(t *testing.T) {
	// claude-sonnet: 300 cents per 1K prompt, 1500 cents per 1K completion.
	// 1000 prompt + 1000 completion = 300 + 1500 = 1800 cents.
	got := CalculateCost("claude-sonnet-4-20250514", 1000, 1000)
	if got != 1800 {
		t.Errorf("cost = %d cents, want 1800", got)
	}
}

func TestCalculateCostUnknownModelUsesDefault(t *testing.T) {
	known := CalculateCost("some-future-model", 1000, 1000)
	def := CalculateCost("default", 1000, 1000)
	if known != def {
		t.Errorf("unknown model cost = %d, default = %d", known, def)
	}
}

func TestCalculateCostZeroTokens(t *testing.T) {
	if got := CalculateCost("gpt-4o", 0, 0); got != 0 {
		t.Errorf("cost = %d, want 0", got)
	}
}

func TestCostDollars(t *testing.T) {
	if got := CostDollars(1800); got != 18.0 {
		t.Errorf("dollars = %v, want 18.0", got)
	}
	if got := CostDollars(0); got != 0 {
		t.Errorf("dollars = %v, want 0", got)
	}
}
