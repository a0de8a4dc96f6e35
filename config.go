package waf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultListenPort is used when the configuration names no port.
const DefaultListenPort = 8080

// Config represents the complete proxy configuration. The rule keys sit
// at the top level of the document, matching the shape consumed by the
// external loader contract; server, relay, ops, and logging sections are
// operational settings.
type Config struct {
	// Rules are the filtering criteria. Missing keys default to empty
	// collections.
	Rules `mapstructure:",squash"`

	// ListenPort is the proxy listen port.
	ListenPort int `mapstructure:"listen_port"`

	// Server contains inbound listener settings.
	Server ServerConfig `mapstructure:"server"`

	// Relay contains origin forwarding settings.
	Relay RelayConfig `mapstructure:"relay"`

	// Ops contains the operational endpoint settings.
	Ops OpsConfig `mapstructure:"ops"`

	// Logging contains logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains inbound listener settings.
type ServerConfig struct {
	// ReadTimeout for incoming connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout for outgoing responses.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout for keep-alive connections.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// RelayConfig contains origin forwarding settings.
type RelayConfig struct {
	// Timeout bounds the full origin round-trip.
	Timeout time.Duration `mapstructure:"timeout"`
}

// OpsConfig contains settings for the operational listener serving
// status, health, and metrics endpoints.
type OpsConfig struct {
	// Enabled starts the ops listener.
	Enabled bool `mapstructure:"enabled"`

	// Addr is the ops listen address (e.g., ":9090").
	Addr string `mapstructure:"addr"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the log level: debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Format is the log format: text, json.
	Format string `mapstructure:"format"`

	// Output is where to write logs: stdout, stderr, or a file path.
	Output string `mapstructure:"output"`
}

// DefaultConfig returns a Config with all rule collections empty and
// operational defaults set. An all-default configuration permits every
// request.
func DefaultConfig() Config {
	return Config{
		ListenPort: DefaultListenPort,
		Server: ServerConfig{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Relay: RelayConfig{
			Timeout: DefaultRelayTimeout,
		},
		Ops: OpsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// LoadConfig loads configuration from a file, environment variables, and
// defaults. With an empty path it searches ./waf.json, ./waf.yaml,
// $HOME/.waf/, and /etc/waf/. A missing file is not an error; every rule
// key defaults to an empty collection. A malformed file is an error —
// see LoadConfigOrDefault for the fail-open variant.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("waf")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.waf")
	v.AddConfigPath("/etc/waf")

	v.SetEnvPrefix("WAF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file found: empty rule set, default settings.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadConfigOrDefault loads configuration like LoadConfig but recovers
// from malformed or unreadable files by substituting the all-empty
// default configuration. Proceeding with empty blocklists on a bad
// config file is the historical fail-open behavior; callers that want
// load failures to be fatal use LoadConfig directly.
func LoadConfigOrDefault(configPath string, logger *slog.Logger) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("config load failed, continuing with empty rule set (fail-open)",
			"path", configPath, "error", err)
		def := DefaultConfig()
		return &def
	}
	return cfg
}

// LoadConfigFromReader loads configuration from raw bytes of the given
// type ("json", "yaml", "toml"). Useful for testing or embedded configs.
func LoadConfigFromReader(configType string, data []byte) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	v.SetConfigType(configType)

	if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("listen_port", defaults.ListenPort)

	// Rule keys default to empty collections so the loader never leaves
	// a field undefined.
	v.SetDefault("blocked_ips", []string{})
	v.SetDefault("blocked_domains", []string{})
	v.SetDefault("blocked_paths_for_all_domains", []string{})
	v.SetDefault("blocked_paths_for_specific_domain", map[string][]string{})
	v.SetDefault("suspicious_query_patterns", []string{})
	v.SetDefault("blocked_user_agents", []string{})

	v.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", defaults.Server.IdleTimeout)

	v.SetDefault("relay.timeout", defaults.Relay.Timeout)

	v.SetDefault("ops.enabled", defaults.Ops.Enabled)
	v.SetDefault("ops.addr", defaults.Ops.Addr)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.output", defaults.Logging.Output)
}

// BuildRuleSet compiles the configured rules into the immutable RuleSet
// shared by all request handlers.
func (c *Config) BuildRuleSet() *RuleSet {
	return c.Rules.Compile()
}

// ListenAddr returns the proxy listen address derived from ListenPort.
func (c *Config) ListenAddr() string {
	port := c.ListenPort
	if port == 0 {
		port = DefaultListenPort
	}
	return fmt.Sprintf(":%d", port)
}

// BuildLogger constructs a slog.Logger from the logging section.
func (c *Config) BuildLogger() (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}

	var out *os.File
	switch c.Logging.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(c.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log output: %w", err)
		}
		out = f
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts)), nil
	}
	return slog.New(slog.NewTextHandler(out, opts)), nil
}

// WriteExampleConfig writes an example configuration file.
func WriteExampleConfig(path string) error {
	example := `{
  "listen_port": 8080,

  "blocked_ips": ["10.0.0.5"],
  "blocked_domains": ["evil.com"],
  "blocked_paths_for_all_domains": ["/admin"],
  "blocked_paths_for_specific_domain": {
    "internal.example.com": ["/debug", "/secrets"]
  },
  "suspicious_query_patterns": ["<script>", "' OR '1'='1", "../"],
  "blocked_user_agents": ["sqlmap/1.0"],

  "server": {
    "read_timeout": "30s",
    "write_timeout": "30s",
    "idle_timeout": "60s"
  },

  "relay": {
    "timeout": "10s"
  },

  "ops": {
    "enabled": true,
    "addr": ":9090"
  },

  "logging": {
    "level": "info",
    "format": "text",
    "output": "stderr"
  }
}
`

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(example), 0644)
}
