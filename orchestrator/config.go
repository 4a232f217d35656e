// Copyright 2025 QuantumGrid
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root structure of the orchestrator configuration file.
type Config struct {
	Version  string          `yaml:"version"`
	Server   ServerConfig    `yaml:"server,omitempty"`
	Ledger   LedgerConfig    `yaml:"ledger,omitempty"`
	Baseline BaselineConfig  `yaml:"baseline,omitempty"`
	Budgets  BudgetsConfig   `yaml:"budgets,omitempty"`
	Backends []BackendConfig `yaml:"backends,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port                  string `yaml:"port,omitempty"`
	HealthCheckIntervalMs int    `yaml:"health_check_interval_ms,omitempty"`
}

// LedgerConfig selects and configures the ledger store.
type LedgerConfig struct {
	// Driver is "postgres" or "memory". Defaults to memory when no DSN is
	// configured.
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

// BaselineConfig configures the advantage baseline cache.
type BaselineConfig struct {
	RedisURL string `yaml:"redis_url,omitempty"`
	TTLMs    int    `yaml:"ttl_ms,omitempty"`
}

// BudgetsConfig holds per-size-class attempt budgets and the total cap, in
// milliseconds. Zero fields fall back to defaults.
type BudgetsConfig struct {
	SmallAttemptMs  int `yaml:"small_attempt_ms,omitempty"`
	MediumAttemptMs int `yaml:"medium_attempt_ms,omitempty"`
	LargeAttemptMs  int `yaml:"large_attempt_ms,omitempty"`
	TotalMs         int `yaml:"total_ms,omitempty"`
}

// BackendConfig declares a solver backend to register at startup.
type BackendConfig struct {
	ID                string  `yaml:"id"`
	Kind              string  `yaml:"kind"`
	Enabled           bool    `yaml:"enabled"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	APIKey            string  `yaml:"api_key,omitempty"`
	MaxVariables      int     `yaml:"max_variables"`
	ExpectedLatencyMs int64   `yaml:"expected_latency_ms,omitempty"`
	CostWeight        float64 `yaml:"cost_weight,omitempty"`
	TimeoutMs         int     `yaml:"timeout_ms,omitempty"`
	MaxRetries        int     `yaml:"max_retries,omitempty"`
}

// LoadConfig reads and parses a YAML config file, expanding environment
// variable references in the content before parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// ToBudgets converts the config budgets to router budgets, filling defaults.
func (c BudgetsConfig) ToBudgets() Budgets {
	b := DefaultBudgets()
	if c.SmallAttemptMs > 0 {
		b.SmallAttempt = time.Duration(c.SmallAttemptMs) * time.Millisecond
	}
	if c.MediumAttemptMs > 0 {
		b.MediumAttempt = time.Duration(c.MediumAttemptMs) * time.Millisecond
	}
	if c.LargeAttemptMs > 0 {
		b.LargeAttempt = time.Duration(c.LargeAttemptMs) * time.Millisecond
	}
	if c.TotalMs > 0 {
		b.Total = time.Duration(c.TotalMs) * time.Millisecond
	}
	return b
}

// Matches ${VAR_NAME} and $VAR_NAME references.
var envVarRegex = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}|\$[A-Za-z_][A-Za-z0-9_]*`)

// expandEnvVars expands environment variable references in the string.
// Undefined variables expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}
		return os.Getenv(varName)
	})
}
