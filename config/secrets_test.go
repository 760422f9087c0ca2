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
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testARN = "arn:aws:secretsmanager:us-east-1:123456789012:secret:careplan/llm"

type stubSecretsClient struct {
	value string
	err   error
	calls int
}

func (s *stubSecretsClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(s.value)}, nil
}

func TestResolveAPIKeyBareString(t *testing.T) {
	stub := &stubSecretsClient{value: "sk-plain-key"}
	resolver := newSecretsResolver(stub)

	key, err := resolver.ResolveAPIKey(context.Background(), testARN)
	require.NoError(t, err)
	assert.Equal(t, "sk-plain-key", key)
}

func TestResolveAPIKeyJSONSecret(t *testing.T) {
	stub := &stubSecretsClient{value: `{"api_key":"sk-json-key","other":"x"}`}
	resolver := newSecretsResolver(stub)

	key, err := resolver.ResolveAPIKey(context.Background(), testARN)
	require.NoError(t, err)
	assert.Equal(t, "sk-json-key", key)
}

func TestResolveAPIKeyCaches(t *testing.T) {
	stub := &stubSecretsClient{value: "sk-cached"}
	resolver := newSecretsResolver(stub)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key, err := resolver.ResolveAPIKey(ctx, testARN)
		require.NoError(t, err)
		assert.Equal(t, "sk-cached", key)
	}
	assert.Equal(t, 1, stub.calls, "cached lookups should not hit Secrets Manager")
}

func TestResolveAPIKeyError(t *testing.T) {
	stub := &stubSecretsClient{err: errors.New("AccessDeniedException")}
	resolver := newSecretsResolver(stub)

	_, err := resolver.ResolveAPIKey(context.Background(), testARN)
	require.Error(t, err)
	// The ARN is masked in error output.
	assert.NotContains(t, err.Error(), "123456789012")
}

func TestResolveProviderKeyNoop(t *testing.T) {
	cfg := &Config{}
	cfg.Provider.APIKey = "already-set"
	cfg.Provider.APIKeySecretARN = testARN

	// A directly supplied key short-circuits resolution entirely.
	require.NoError(t, cfg.ResolveProviderKey(context.Background()))
	assert.Equal(t, "already-set", cfg.Provider.APIKey)

	cfg = &Config{}
	require.NoError(t, cfg.ResolveProviderKey(context.Background()))
	assert.Empty(t, cfg.Provider.APIKey)
}

func TestMaskARN(t *testing.T) {
	assert.Equal(t, "***", maskARN("short"))
	masked := maskARN(testARN)
	assert.Contains(t, masked, "...")
	assert.Len(t, masked, 11)
}
