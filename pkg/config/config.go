// Package config loads and validates mcfleetd's configuration from a YAML
// file, environment variables (MCFLEET_ prefixed), and a local .env overlay,
// following the same viper/godotenv layering the rest of the example pack
// uses.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	Servers ServersConfig `mapstructure:"servers"`
	Cron    CronConfig    `mapstructure:"cron"`
	DNS     DNSConfig     `mapstructure:"dns"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	LogTail LogTailConfig `mapstructure:"log_tail"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServersConfig locates the fleet's compose projects on disk.
type ServersConfig struct {
	RootPath string `mapstructure:"root_path" validate:"required"`
}

// CronConfig configures the durable schedule store.
type CronConfig struct {
	DatabasePath       string `mapstructure:"database_path" validate:"required"`
	MigrationsPath     string `mapstructure:"migrations_path"`
	RestartWindowStart string `mapstructure:"restart_window_start" validate:"omitempty,len=5"` // "HH:MM"
}

// DNSConfig configures the DNS/L7-routing reconciler.
type DNSConfig struct {
	Enabled           bool            `mapstructure:"enabled"`
	ManagedSubdomain  string          `mapstructure:"managed_subdomain" validate:"required_if=Enabled true"`
	Domain            string          `mapstructure:"domain" validate:"required_if=Enabled true"`
	DefaultTTL        int             `mapstructure:"default_ttl"`
	PollIntervalSecs  int             `mapstructure:"poll_interval_seconds"`
	PostPushDelaySecs int             `mapstructure:"post_push_delay_seconds"`
	ProbeRate         float64         `mapstructure:"probe_rate"`
	Provider          ProviderConfig  `mapstructure:"provider"`
	Router            RouterConfig    `mapstructure:"router"`
	Addresses         []AddressConfig `mapstructure:"addresses"`
}

// ProviderConfig selects and configures the DNS provider. Kind is "fake"
// (in-memory, for local/dev use) or "rfc2136".
type ProviderConfig struct {
	Kind       string `mapstructure:"kind" validate:"omitempty,oneof=fake rfc2136"`
	Nameserver string `mapstructure:"nameserver"`
	TSIGName   string `mapstructure:"tsig_name"`
	TSIGKey    string `mapstructure:"tsig_key"`
	TSIGSecret string `mapstructure:"tsig_secret"`
}

// RouterConfig selects and configures the L7 router client. Kind is "fake"
// or "grpc".
type RouterConfig struct {
	Kind    string `mapstructure:"kind" validate:"omitempty,oneof=fake grpc"`
	Address string `mapstructure:"address"`
}

// AddressConfig mirrors types.AddressSpec for config-file representation.
type AddressConfig struct {
	Name         string `mapstructure:"name"`
	Kind         string `mapstructure:"kind" validate:"oneof=manual natmap"`
	Value        string `mapstructure:"value"`
	Port         int    `mapstructure:"port"`
	InternalPort int    `mapstructure:"internal_port"`
	AddrName     string `mapstructure:"addr_name"`
}

// ArchiveConfig configures the compression engine.
type ArchiveConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
}

// SnapshotConfig configures the snapshot engine.
type SnapshotConfig struct {
	BinaryPath   string `mapstructure:"binary_path"`
	Repository   string `mapstructure:"repository"`
	PasswordFile string `mapstructure:"password_file"`
}

// LogTailConfig configures the per-server log tail dispatcher.
type LogTailConfig struct {
	OffsetsDatabasePath string `mapstructure:"offsets_database_path"`
	PollIntervalMillis  int    `mapstructure:"poll_interval_millis"`
}

// LoggingConfig configures pkg/log.
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	JSONOutput bool   `mapstructure:"json_output"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads configuration from configPath (or the default search paths if
// empty), overlaid with a local .env file and MCFLEET_-prefixed environment
// variables, applies defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("mcfleetd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mcfleetd")
	}

	v.SetEnvPrefix("MCFLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("servers.root_path", "/var/lib/mcfleet/servers")
	v.SetDefault("cron.database_path", "/var/lib/mcfleet/cron.db")
	v.SetDefault("cron.restart_window_start", "06:00")
	v.SetDefault("dns.default_ttl", 600)
	v.SetDefault("dns.poll_interval_seconds", 30)
	v.SetDefault("dns.post_push_delay_seconds", 10)
	v.SetDefault("dns.probe_rate", 5.0)
	v.SetDefault("dns.provider.kind", "fake")
	v.SetDefault("dns.router.kind", "fake")
	v.SetDefault("archive.binary_path", "7z")
	v.SetDefault("snapshot.binary_path", "restic")
	v.SetDefault("log_tail.offsets_database_path", "/var/lib/mcfleet/logtail-offsets.db")
	v.SetDefault("log_tail.poll_interval_millis", 500)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json_output", true)
	v.SetDefault("metrics.listen_addr", ":9090")
}

var validate = validator.New()

// Validate runs struct tag validation over a loaded Config.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}
