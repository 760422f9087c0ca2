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
	"fmt"
	"strings"

	"axonflow/careplan/store"
)

// systemPrompt frames every generation call. Providers that have no native
// system-prompt channel prepend it to the user prompt themselves.
const systemPrompt = `You are a clinical pharmacist at a specialty pharmacy. ` +
	`You write concise, structured care plans for newly prescribed specialty medications. ` +
	`Base the plan only on the order details provided. ` +
	`Include sections for: Medication Overview, Monitoring Plan, Patient Counseling Points, and Follow-Up Schedule.`

// BuildPrompt renders the order into the user prompt for the LLM call.
func BuildPrompt(order *store.Order) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create a care plan for the following specialty pharmacy order.\n\n")
	fmt.Fprintf(&b, "Patient ID: %s\n", order.PatientID)
	fmt.Fprintf(&b, "Medication: %s\n", order.MedicationName)
	fmt.Fprintf(&b, "Prescriber NPI: %s\n", order.ProviderNPI)

	if notes := strings.TrimSpace(order.ClinicalNotes); notes != "" {
		fmt.Fprintf(&b, "\nClinical notes:\n%s\n", notes)
	}

	return b.String()
}
