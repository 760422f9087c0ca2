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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsClient is the Secrets Manager subset used here, for test stubbing.
type secretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsResolver fetches API keys stored in AWS Secrets Manager. Values are
// cached so restart-loop storms do not hammer the Secrets Manager API.
type SecretsResolver struct {
	client secretsClient
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
}

type secretCacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewSecretsResolver creates a resolver using the default AWS credential
// chain. Region may be empty to use the environment's default.
func NewSecretsResolver(ctx context.Context, region string) (*SecretsResolver, error) {
	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSecretsResolver(secretsmanager.NewFromConfig(cfg)), nil
}

func newSecretsResolver(client secretsClient) *SecretsResolver {
	return &SecretsResolver{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    5 * time.Minute,
	}
}

// ResolveAPIKey returns the API key stored at the given secret ARN. The
// secret may be a bare string or a JSON object with an "api_key" field.
func (r *SecretsResolver) ResolveAPIKey(ctx context.Context, secretARN string) (string, error) {
	r.mu.RLock()
	entry, exists := r.cache[secretARN]
	r.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	result, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	key := *result.SecretString
	var fields map[string]string
	if err := json.Unmarshal([]byte(key), &fields); err == nil {
		if v, ok := fields["api_key"]; ok {
			key = v
		}
	}
	if key == "" {
		return "", fmt.Errorf("secret %s resolved to an empty API key", maskARN(secretARN))
	}

	r.mu.Lock()
	r.cache[secretARN] = &secretCacheEntry{
		value:     key,
		expiresAt: time.Now().Add(r.ttl),
	}
	r.mu.Unlock()

	return key, nil
}

// ResolveProviderKey fills in cfg.Provider.APIKey from Secrets Manager when
// an ARN is configured and no key was supplied directly. A no-op otherwise.
func (c *Config) ResolveProviderKey(ctx context.Context) error {
	if c.Provider.APIKey != "" || c.Provider.APIKeySecretARN == "" {
		return nil
	}

	resolver, err := NewSecretsResolver(ctx, c.Provider.Region)
	if err != nil {
		return err
	}

	key, err := resolver.ResolveAPIKey(ctx, c.Provider.APIKeySecretARN)
	if err != nil {
		return err
	}

	c.Provider.APIKey = key
	return nil
}

// maskARN masks the secret ARN for logging (shows only last 8 characters)
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}
