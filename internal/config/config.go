// Package config loads gopher-doctor settings from defaults, an optional
// YAML file, the environment and command-line overrides, in that order of
// increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tonyjoanes/gopher-doctor/internal/llm"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GOPHER_DOCTOR_"

// Config holds all configuration for the application
type Config struct {
	// Namespace is diagnosed when none is given on the command line
	Namespace string `koanf:"namespace"`

	// KubeContext selects a kubeconfig context; empty uses the current one
	KubeContext string `koanf:"kubeContext"`

	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel string `koanf:"logLevel"`

	LLM      LLMConfig      `koanf:"llm"`
	DeepDive DeepDiveConfig `koanf:"deepDive"`

	// FetchTimeout bounds every individual Kubernetes API call
	FetchTimeout time.Duration `koanf:"fetchTimeout"`

	// PrometheusURL enables the Prometheus fallback for pod metrics
	PrometheusURL string `koanf:"prometheusURL"`

	Store  StoreConfig  `koanf:"store"`
	Server ServerConfig `koanf:"server"`
	Notify NotifyConfig `koanf:"notify"`
	GitHub GitHubConfig `koanf:"github"`
}

// LLMConfig selects the analysis backend.
type LLMConfig struct {
	// Provider is anthropic, ollama, groq, openai or none; empty picks
	// anthropic when an API key is set and ollama otherwise
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"baseURL"`
	APIKey   string `koanf:"apiKey"`
}

// DeepDiveConfig tunes the deep-dive stage.
type DeepDiveConfig struct {
	MaxIssues    int   `koanf:"maxIssues"`
	LogTailLines int64 `koanf:"logTailLines"`
}

// StoreConfig locates the report history database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// NotifyConfig configures the chat webhook.
type NotifyConfig struct {
	WebhookURL string `koanf:"webhookURL"`
}

// GitHubConfig configures report publishing.
type GitHubConfig struct {
	// Repo is "owner/repo"
	Repo  string `koanf:"repo"`
	Token string `koanf:"token"`
}

// Defaults returns the built-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"namespace":             "default",
		"logLevel":              "info",
		"llm.provider":          "",
		"deepDive.maxIssues":    5,
		"deepDive.logTailLines": int64(50),
		"fetchTimeout":          "15s",
		"store.path":            filepath.Join(homeDir(), ".gopher-doctor", "history.db"),
		"server.addr":           ":8080",
	}
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".gopher-doctor", "config.yaml")
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

// legacyEnv maps the environment variables of earlier releases onto config
// keys. They lose to their GOPHER_DOCTOR_ equivalents.
var legacyEnv = map[string]string{
	"K8S_AGENT_MODEL":     "llm.model",
	"K8S_AGENT_NAMESPACE": "namespace",
	"LOG_LEVEL":           "logLevel",
	"ANTHROPIC_API_KEY":   "llm.apiKey",
}

// prefixedEnv maps GOPHER_DOCTOR_<NAME> onto config keys.
var prefixedEnv = map[string]string{
	"NAMESPACE":            "namespace",
	"KUBE_CONTEXT":         "kubeContext",
	"LOG_LEVEL":            "logLevel",
	"LLM_PROVIDER":         "llm.provider",
	"LLM_MODEL":            "llm.model",
	"LLM_BASE_URL":         "llm.baseURL",
	"LLM_API_KEY":          "llm.apiKey",
	"DEEP_DIVE_MAX_ISSUES": "deepDive.maxIssues",
	"DEEP_DIVE_LOG_TAIL":   "deepDive.logTailLines",
	"FETCH_TIMEOUT":        "fetchTimeout",
	"PROMETHEUS_URL":       "prometheusURL",
	"STORE_PATH":           "store.path",
	"SERVER_ADDR":          "server.addr",
	"NOTIFY_WEBHOOK_URL":   "notify.webhookURL",
	"GITHUB_REPO":          "github.repo",
	"GITHUB_TOKEN":         "github.token",
}

// Load merges defaults, the YAML file at path, the environment and
// overrides. An empty path reads DefaultPath when that file exists; an
// explicit path must exist. Overrides use config keys such as "llm.model"
// and usually come from command-line flags. The result is validated.
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultPath()); err == nil {
			path = DefaultPath()
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, NewConfigError(fmt.Sprintf("config file %q does not exist", path))
			}
			return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
		}
	}

	legacy := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return legacyEnv[key], value
	})
	if err := k.Load(legacy, nil); err != nil {
		return nil, fmt.Errorf("loading legacy environment: %w", err)
	}
	prefixed := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return prefixedEnv[strings.TrimPrefix(key, EnvPrefix)], value
	})
	if err := k.Load(prefixed, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var providers = map[string]bool{
	string(llm.ProviderAuto):      true,
	string(llm.ProviderAnthropic): true,
	string(llm.ProviderOllama):    true,
	string(llm.ProviderGroq):      true,
	string(llm.ProviderOpenAI):    true,
	string(llm.ProviderNone):      true,
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return NewConfigError("namespace must not be empty")
	}

	if !logLevels[c.LogLevel] {
		return NewConfigError(fmt.Sprintf("logLevel %q must be one of debug, info, warn, error", c.LogLevel))
	}

	if !providers[c.LLM.Provider] {
		return NewConfigError(fmt.Sprintf("llm.provider %q must be one of anthropic, ollama, groq, openai, none", c.LLM.Provider))
	}

	if c.DeepDive.MaxIssues < 1 {
		return NewConfigError("deepDive.maxIssues must be at least 1")
	}

	if c.DeepDive.LogTailLines < 1 {
		return NewConfigError("deepDive.logTailLines must be at least 1")
	}

	if c.FetchTimeout <= 0 {
		return NewConfigError("fetchTimeout must be positive")
	}

	if c.Store.Path == "" {
		return NewConfigError("store.path must not be empty")
	}

	if c.GitHub.Repo != "" {
		if parts := strings.Split(c.GitHub.Repo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return NewConfigError(fmt.Sprintf("github.repo %q must be \"owner/repo\"", c.GitHub.Repo))
		}
	}

	return nil
}

// Analyst returns the llm.Config described by the LLM section.
func (c *Config) Analyst() llm.Config {
	return llm.Config{
		Provider: llm.Provider(c.LLM.Provider),
		Model:    c.LLM.Model,
		BaseURL:  c.LLM.BaseURL,
		APIKey:   c.LLM.APIKey,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
