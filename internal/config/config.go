package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	API       APIConfig       `mapstructure:"api"`
	Session   SessionConfig   `mapstructure:"session"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	LoginRatePerMin int           `mapstructure:"login_rate_per_minute"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds the backend REST API connection settings
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// SessionConfig holds operator session cookie settings
type SessionConfig struct {
	Secret       string        `mapstructure:"secret"`
	Expiry       time.Duration `mapstructure:"expiry"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

// BrowserConfig holds log browser timing and paging settings
type BrowserConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	DefaultLimit int           `mapstructure:"default_limit"`
	PageSizes    []int         `mapstructure:"page_sizes"`
}

// DashboardConfig holds KPI dashboard settings
type DashboardConfig struct {
	Hours           int           `mapstructure:"hours"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// DatabaseConfig holds the audit trail database configuration
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.login_rate_per_minute", 20)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	viper.SetDefault("api.base_url", "http://localhost:8000")
	viper.SetDefault("api.timeout", "15s")
	viper.SetDefault("api.max_retries", 2)

	viper.SetDefault("session.expiry", "1h")
	viper.SetDefault("session.cookie_name", "email_monitor_session")
	viper.SetDefault("session.cookie_secure", false)

	viper.SetDefault("browser.debounce", "400ms")
	viper.SetDefault("browser.poll_interval", "30s")
	viper.SetDefault("browser.default_limit", 50)
	viper.SetDefault("browser.page_sizes", []int{10, 25, 50, 100})

	viper.SetDefault("dashboard.hours", 24)
	viper.SetDefault("dashboard.refresh_interval", "30s")

	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.login_rate_per_minute", "LOGIN_RATE_PER_MINUTE")

	// Logging
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")

	// Backend API
	viper.BindEnv("api.base_url", "API_BASE_URL")
	viper.BindEnv("api.timeout", "API_TIMEOUT")
	viper.BindEnv("api.max_retries", "API_MAX_RETRIES")

	// Session
	viper.BindEnv("session.secret", "SESSION_SECRET")
	viper.BindEnv("session.expiry", "SESSION_EXPIRY")
	viper.BindEnv("session.cookie_name", "SESSION_COOKIE_NAME")
	viper.BindEnv("session.cookie_secure", "SESSION_COOKIE_SECURE")

	// Log browser
	viper.BindEnv("browser.debounce", "BROWSER_DEBOUNCE")
	viper.BindEnv("browser.poll_interval", "BROWSER_POLL_INTERVAL")
	viper.BindEnv("browser.default_limit", "BROWSER_DEFAULT_LIMIT")

	// Dashboard
	viper.BindEnv("dashboard.hours", "DASHBOARD_HOURS")
	viper.BindEnv("dashboard.refresh_interval", "DASHBOARD_REFRESH_INTERVAL")

	// Database
	viper.BindEnv("database.enabled", "DB_ENABLED")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api max_retries must not be negative")
	}

	if len(c.Session.Secret) < 16 {
		return fmt.Errorf("session secret must be at least 16 characters")
	}
	if c.Session.Expiry <= 0 {
		return fmt.Errorf("session expiry must be greater than 0")
	}

	if c.Browser.Debounce <= 0 || c.Browser.PollInterval <= 0 {
		return fmt.Errorf("browser debounce and poll interval must be greater than 0")
	}
	if len(c.Browser.PageSizes) == 0 {
		return fmt.Errorf("browser page_sizes must not be empty")
	}
	found := false
	for _, size := range c.Browser.PageSizes {
		if size <= 0 {
			return fmt.Errorf("browser page sizes must be positive, got %d", size)
		}
		if size == c.Browser.DefaultLimit {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("browser default_limit %d is not one of page_sizes %v", c.Browser.DefaultLimit, c.Browser.PageSizes)
	}

	if c.Dashboard.Hours <= 0 {
		return fmt.Errorf("dashboard hours must be greater than 0")
	}

	if c.Database.Enabled && (c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "") {
		return fmt.Errorf("database host, user, and dbname are required when the audit database is enabled")
	}

	return nil
}
