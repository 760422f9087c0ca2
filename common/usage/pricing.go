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

// Package usage estimates LLM spend from token counts so generation cost can
// be exported as a metric and recorded alongside each care plan.
package usage

import "fmt"

// ModelPricing contains per-model token pricing.
// Prices stored in cents per 1K tokens to avoid floating point issues.
// All prices are USD.
type ModelPricing struct {
	PromptCostPer1K     int // cents per 1K prompt tokens
	CompletionCostPer1K int // cents per 1K completion tokens
}

// modelPricing maps model identifiers to pricing.
var modelPricing = map[string]ModelPricing{
	// Anthropic
	"claude-sonnet-4-20250514":   {300, 1500},  // $0.003/$0.015 per 1K tokens
	"claude-3-5-sonnet-20241022": {300, 1500},  // $0.003/$0.015 per 1K tokens
	"claude-3-opus-20240229":     {1500, 7500}, // $0.015/$0.075 per 1K tokens

	// OpenAI
	"gpt-4o":      {500, 1500},  // $0.005/$0.015 per 1K tokens
	"gpt-4o-mini": {15, 60},     // $0.00015/$0.0006 per 1K tokens
	"gpt-4-turbo": {1000, 3000}, // $0.01/$0.03 per 1K tokens

	// Default fallback pricing (conservative estimate)
	"default": {1000, 3000}, // $0.01/$0.03 per 1K tokens
}

// CalculateCost returns the cost in cents for a generation, falling back to
// the default pricing for unknown models.
func CalculateCost(model string, promptTokens, completionTokens int) int {
	pricing, ok := modelPricing[model]
	if !ok {
		pricing = modelPricing["default"]
	}

	promptCost := (promptTokens * pricing.PromptCostPer1K) / 1000
	completionCost := (completionTokens * pricing.CompletionCostPer1K) / 1000

	return promptCost + completionCost
}

// CostDollars converts a cents amount to dollars for metrics export.
func CostDollars(cents int) float64 {
	return float64(cents) / 100.0
}

// GetModelPricing returns the pricing for a model, and whether it was found.
func GetModelPricing(model string) (ModelPricing, bool) {
	pricing, ok := modelPricing[model]
	return pricing, ok
}

// FormatCostToDollars converts cents to a dollar string (e.g. 135 -> "$1.35").
func FormatCostToDollars(cents int) string {
	return fmt.Sprintf("$%.2f", CostDollars(cents))
}
