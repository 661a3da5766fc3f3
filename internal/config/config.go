package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Sweeper      SweeperConfig      `mapstructure:"sweeper"`
	Notification NotificationConfig `mapstructure:"notification"`
	Approval     ApprovalConfig     `mapstructure:"approval"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// SweeperConfig holds overdue sweep configuration
type SweeperConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	BatchLimit int           `mapstructure:"batch_limit"`
}

// NotificationConfig holds notification delivery configuration
type NotificationConfig struct {
	Recipient string `mapstructure:"recipient"`
}

// ApprovalConfig holds the per-category approval policies. Categories
// missing from Policies fall back to Default.
type ApprovalConfig struct {
	Default  PolicyConfig            `mapstructure:"default"`
	Policies map[string]PolicyConfig `mapstructure:"policies"`
}

// PolicyConfig is one category's approval policy
type PolicyConfig struct {
	// Levels is the ordered approval chain, lowest tier first
	Levels []string `mapstructure:"levels"`

	// ThresholdCents is the total amount below which no approval is
	// required
	ThresholdCents int64 `mapstructure:"threshold_cents"`

	// AllowPartialPayment permits paying a document while schedule
	// installments remain outstanding
	AllowPartialPayment bool `mapstructure:"allow_partial_payment"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/docflow.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Sweeper defaults
	viper.SetDefault("sweeper.interval", time.Hour)
	viper.SetDefault("sweeper.batch_limit", 500)

	// Approval defaults: full chain above a 500.00 threshold
	viper.SetDefault("approval.default.levels", []string{"MANAGER", "DIRECTOR", "CEO"})
	viper.SetDefault("approval.default.threshold_cents", 50000)
	viper.SetDefault("approval.default.allow_partial_payment", false)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("database.path", "DOCFLOW_DB_PATH")
	viper.BindEnv("notification.recipient", "NOTIFICATION_RECIPIENT")
	viper.BindEnv("server.port", "DOCFLOW_PORT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}
	if c.Sweeper.BatchLimit <= 0 {
		return fmt.Errorf("sweeper.batch_limit must be positive")
	}
	if len(c.Approval.Default.Levels) == 0 {
		return fmt.Errorf("approval.default.levels must not be empty")
	}
	if err := validateLevels(c.Approval.Default.Levels); err != nil {
		return fmt.Errorf("approval.default: %w", err)
	}
	for category, policy := range c.Approval.Policies {
		if err := validateLevels(policy.Levels); err != nil {
			return fmt.Errorf("approval.policies.%s: %w", category, err)
		}
		if policy.ThresholdCents < 0 {
			return fmt.Errorf("approval.policies.%s: threshold_cents must not be negative", category)
		}
	}
	return nil
}

var knownLevels = map[string]bool{
	"MANAGER":  true,
	"DIRECTOR": true,
	"CEO":      true,
}

func validateLevels(levels []string) error {
	for _, level := range levels {
		if !knownLevels[strings.ToUpper(level)] {
			return fmt.Errorf("unknown approval level %q", level)
		}
	}
	return nil
}
