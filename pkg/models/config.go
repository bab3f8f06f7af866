package models

// ServerConfig holds settings for the pre-flight HTTP API.
type ServerConfig struct {
	Addr      string  `yaml:"addr" mapstructure:"addr"`
	LoginPath string  `yaml:"login_path" mapstructure:"login_path"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// AuthConfig holds settings for bearer-token sessions.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl" mapstructure:"token_ttl"`
}

// AlertConfig configures when access alerts fire.
type AlertConfig struct {
	DeniedThreshold int    `yaml:"denied_threshold" mapstructure:"denied_threshold"`
	WindowHours     int    `yaml:"window_hours" mapstructure:"window_hours"`
	ReviewHours     int    `yaml:"review_hours" mapstructure:"review_hours"`
	SlackWebhook    string `yaml:"slack_webhook,omitempty" mapstructure:"slack_webhook"`
}

// GlobalConfig holds system-wide settings read from .tacklebox.yaml via Viper.
// File paths are relative to the base path unless absolute.
type GlobalConfig struct {
	PolicyFile  string       `yaml:"policy_file,omitempty" mapstructure:"policy_file"`
	EventLog    string       `yaml:"event_log" mapstructure:"event_log"`
	SandboxFile string       `yaml:"sandbox_file" mapstructure:"sandbox_file"`
	LogLevel    string       `yaml:"log_level" mapstructure:"log_level"`
	Server      ServerConfig `yaml:"server" mapstructure:"server"`
	Auth        AuthConfig   `yaml:"auth" mapstructure:"auth"`
	Alerts      AlertConfig  `yaml:"alerts" mapstructure:"alerts"`
}
