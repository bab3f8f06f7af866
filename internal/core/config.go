// Package core contains the access core of TackleBox: the workflow and
// permission tables, the role and level resolvers, the task state machine,
// route and action guards, the task transitioner, and configuration loading.
package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// ConfigFileName is the name of the configuration file looked up in the
// base path.
const ConfigFileName = ".tacklebox.yaml"

// EnvPrefix prefixes environment overrides, e.g. TBX_SERVER_ADDR.
const EnvPrefix = "TBX"

// ConfigurationManager loads and validates the .tacklebox.yaml settings
// and the policy tables they point at.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	LoadTables(cfg *models.GlobalConfig) (*Tables, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// configuration relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns the settings used when no file is present.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		EventLog:    ".tbx_events.jsonl",
		SandboxFile: "tasks.yaml",
		LogLevel:    "info",
		Server: models.ServerConfig{
			Addr:      ":8080",
			LoginPath: "/login",
			RateLimit: 20,
			RateBurst: 40,
		},
		Auth: models.AuthConfig{
			TokenTTL: "1h",
		},
		Alerts: models.AlertConfig{
			DeniedThreshold: 5,
			WindowHours:     24,
			ReviewHours:     72,
		},
	}
}

// LoadGlobalConfig reads .tacklebox.yaml from the base path and applies
// TBX_* environment overrides. A missing file yields the defaults, still
// subject to environment overrides.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName(strings.TrimSuffix(ConfigFileName, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("policy_file", cfg.PolicyFile)
	v.SetDefault("event_log", cfg.EventLog)
	v.SetDefault("sandbox_file", cfg.SandboxFile)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.login_path", cfg.Server.LoginPath)
	v.SetDefault("server.rate_limit", cfg.Server.RateLimit)
	v.SetDefault("server.rate_burst", cfg.Server.RateBurst)
	v.SetDefault("auth.jwt_secret", cfg.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)
	v.SetDefault("alerts.denied_threshold", cfg.Alerts.DeniedThreshold)
	v.SetDefault("alerts.window_hours", cfg.Alerts.WindowHours)
	v.SetDefault("alerts.review_hours", cfg.Alerts.ReviewHours)
	v.SetDefault("alerts.slack_webhook", cfg.Alerts.SlackWebhook)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg.PolicyFile = v.GetString("policy_file")
	cfg.EventLog = v.GetString("event_log")
	cfg.SandboxFile = v.GetString("sandbox_file")
	cfg.LogLevel = v.GetString("log_level")
	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Server.LoginPath = v.GetString("server.login_path")
	cfg.Server.RateLimit = v.GetFloat64("server.rate_limit")
	cfg.Server.RateBurst = v.GetInt("server.rate_burst")
	cfg.Auth.JWTSecret = v.GetString("auth.jwt_secret")
	cfg.Auth.TokenTTL = v.GetString("auth.token_ttl")
	cfg.Alerts.DeniedThreshold = v.GetInt("alerts.denied_threshold")
	cfg.Alerts.WindowHours = v.GetInt("alerts.window_hours")
	cfg.Alerts.ReviewHours = v.GetInt("alerts.review_hours")
	cfg.Alerts.SlackWebhook = v.GetString("alerts.slack_webhook")

	return cfg, nil
}

// LoadTables builds the tables named by cfg.PolicyFile, or the default
// tables when no policy file is configured.
func (cm *viperConfigManager) LoadTables(cfg *models.GlobalConfig) (*Tables, error) {
	if cfg == nil || cfg.PolicyFile == "" {
		return DefaultTables(), nil
	}
	return LoadPolicyFile(cm.ResolvePath(cfg.PolicyFile))
}

// ResolvePath joins a configured relative path onto the base path.
func (cm *viperConfigManager) ResolvePath(p string) string {
	return ResolvePath(cm.basePath, p)
}

// ResolvePath joins p onto basePath unless p is absolute.
func ResolvePath(basePath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(basePath, p)
}

// LoadPolicyFile decodes a YAML policy file and builds validated tables
// from it.
func LoadPolicyFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	policy, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	return NewTables(policy)
}

// ParsePolicy decodes YAML policy data. Unknown fields are rejected so a
// misspelt key cannot silently drop a rule.
func ParsePolicy(data []byte) (models.PolicyFile, error) {
	var policy models.PolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&policy); err != nil {
		if errors.Is(err, io.EOF) {
			return models.PolicyFile{}, fmt.Errorf("policy is empty")
		}
		return models.PolicyFile{}, err
	}
	return policy, nil
}

// MarshalPolicy encodes a policy as YAML.
func MarshalPolicy(policy models.PolicyFile) ([]byte, error) {
	return yaml.Marshal(policy)
}

// ValidateConfig checks cfg for invalid values and reports all of them at
// once.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.EventLog == "" {
		errs = append(errs, "event_log must not be empty")
	}
	if cfg.SandboxFile == "" {
		errs = append(errs, "sandbox_file must not be empty")
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		errs = append(errs, fmt.Sprintf("log_level %q must be one of debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Server.Addr == "" {
		errs = append(errs, "server.addr must not be empty")
	}
	if !strings.HasPrefix(cfg.Server.LoginPath, "/") {
		errs = append(errs, fmt.Sprintf("server.login_path %q must start with /", cfg.Server.LoginPath))
	}
	if cfg.Server.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("server.rate_limit must be non-negative, got %g", cfg.Server.RateLimit))
	}
	if cfg.Server.RateBurst < 0 {
		errs = append(errs, fmt.Sprintf("server.rate_burst must be non-negative, got %d", cfg.Server.RateBurst))
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		errs = append(errs, "server.rate_burst must be positive when server.rate_limit is set")
	}
	if ttl, err := time.ParseDuration(cfg.Auth.TokenTTL); err != nil {
		errs = append(errs, fmt.Sprintf("auth.token_ttl %q is not a duration", cfg.Auth.TokenTTL))
	} else if ttl <= 0 {
		errs = append(errs, fmt.Sprintf("auth.token_ttl %q must be positive", cfg.Auth.TokenTTL))
	}
	if cfg.Auth.JWTSecret != "" && len(cfg.Auth.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Sprintf("auth.jwt_secret must be at least %d bytes", MinSecretLength))
	}
	if cfg.Alerts.DeniedThreshold < 1 {
		errs = append(errs, fmt.Sprintf("alerts.denied_threshold must be at least 1, got %d", cfg.Alerts.DeniedThreshold))
	}
	if cfg.Alerts.WindowHours < 1 {
		errs = append(errs, fmt.Sprintf("alerts.window_hours must be at least 1, got %d", cfg.Alerts.WindowHours))
	}
	if cfg.Alerts.ReviewHours < 1 {
		errs = append(errs, fmt.Sprintf("alerts.review_hours must be at least 1, got %d", cfg.Alerts.ReviewHours))
	}
	if hook := cfg.Alerts.SlackWebhook; hook != "" && !strings.HasPrefix(hook, "https://") && !strings.HasPrefix(hook, "http://") {
		errs = append(errs, fmt.Sprintf("alerts.slack_webhook %q must be an http(s) URL", hook))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MinSecretLength is the shortest accepted HMAC signing secret.
const MinSecretLength = 32
