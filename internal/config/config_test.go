package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8080"},
		API:     APIConfig{BaseURL: "http://backend:8000", MaxRetries: 2},
		Session: SessionConfig{Secret: "0123456789abcdef", Expiry: time.Hour},
		Browser: BrowserConfig{
			Debounce:     400 * time.Millisecond,
			PollInterval: 30 * time.Second,
			DefaultLimit: 50,
			PageSizes:    []int{10, 25, 50, 100},
		},
		Dashboard: DashboardConfig{Hours: 24},
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	invalid := validConfig()
	invalid.Server.Port = ""
	assert.Error(t, invalid.Validate())

	relative := validConfig()
	relative.API.BaseURL = "/api"
	assert.Error(t, relative.Validate())

	shortSecret := validConfig()
	shortSecret.Session.Secret = "short"
	assert.Error(t, shortSecret.Validate())

	badLimit := validConfig()
	badLimit.Browser.DefaultLimit = 30
	assert.Error(t, badLimit.Validate())

	db := validConfig()
	db.Database.Enabled = true
	assert.Error(t, db.Validate())
	db.Database = DatabaseConfig{Enabled: true, Host: "localhost", User: "monitor", DBName: "audit"}
	assert.NoError(t, db.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	expected := "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=UTC"
	assert.Equal(t, expected, cfg.GetDSN())
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://mail-api:9000")
	t.Setenv("BROWSER_DEBOUNCE", "250ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://mail-api:9000", cfg.API.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Browser.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Browser.PollInterval)
	assert.Equal(t, 50, cfg.Browser.DefaultLimit)
	assert.Equal(t, []int{10, 25, 50, 100}, cfg.Browser.PageSizes)
	assert.Equal(t, 24, cfg.Dashboard.Hours)
}
