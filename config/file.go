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

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadFile merges a YAML config file into cfg. Environment variable
// references in the file content are expanded before parsing.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string.
// Supports ${VAR_NAME}, $VAR_NAME, and ${VAR_NAME:-default} syntax.
// Undefined variables without a default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultVal
	})
}

// ExampleConfigFile returns a commented starter configuration.
func ExampleConfigFile() string {
	return `# Care Plan Generator configuration
# Environment variables can be referenced using ${VAR_NAME} or ${VAR_NAME:-default} syntax

port: "8080"
database_url: ${DATABASE_URL}
redis_url: ${REDIS_URL:-redis://localhost:6379/0}
workers: 4
request_timeout_seconds: 120

provider:
  type: claude
  model: ${LLM_MODEL:-claude-sonnet-4-20250514}
  api_key: ${ANTHROPIC_API_KEY}
  # Or resolve the key from AWS Secrets Manager instead:
  # api_key_secret_arn: arn:aws:secretsmanager:us-east-1:123456789012:secret:careplan/llm

retry:
  max_attempts: 3
  initial_backoff_seconds: 60
  max_backoff_seconds: 600
  multiplier: 2.0
`
}
