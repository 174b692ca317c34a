package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected host %s, got %s", DefaultHost, cfg.Server.Host)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}

	if cfg.Pool.MaxConnectionsPerServer != 10 {
		t.Errorf("Expected max_connections_per_server 10, got %d", cfg.Pool.MaxConnectionsPerServer)
	}
	if cfg.Pool.ConnectTimeout != 15*time.Second {
		t.Errorf("Expected connect_timeout 15s, got %v", cfg.Pool.ConnectTimeout)
	}
	if cfg.Pool.PreAuthenticate {
		t.Error("Expected pre_authenticate false by default")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected log level 'info', got %s", cfg.Logging.Level)
	}
	if !cfg.Logging.PrettyLogs {
		t.Error("Expected pretty_logs true by default")
	}

	if !cfg.Engineering.ShowNerdStats {
		t.Error("Expected ShowNerdStats true by default")
	}
}

func TestLoadConfig_WithoutFile(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected default port %d, got %d", DefaultPort, cfg.Server.Port)
	}
}

func TestLoadConfig_WithEnvironmentVariables(t *testing.T) {
	testEnvVars := map[string]string{
		"PCONN_SERVER_PORT":                     "8080",
		"PCONN_SERVER_HOST":                     "0.0.0.0",
		"PCONN_LOGGING_LEVEL":                   "debug",
		"PCONN_POOL_MAX_CONNECTIONS_PER_SERVER": "25",
		"PCONN_POOL_PRE_AUTHENTICATE":           "true",
	}

	for key, value := range testEnvVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range testEnvVars {
			os.Unsetenv(key)
		}
	}()

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load with env vars failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080 from env var, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0 from env var, got %s", cfg.Server.Host)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Logging.Level)
	}
	if cfg.Pool.MaxConnectionsPerServer != 25 {
		t.Errorf("Expected max_connections_per_server 25 from env var, got %d", cfg.Pool.MaxConnectionsPerServer)
	}
	if !cfg.Pool.PreAuthenticate {
		t.Error("Expected pre_authenticate true from env var")
	}
}

func TestConfigTypes(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.ReadTimeout.String() == "" {
		t.Error("ReadTimeout should be a valid duration")
	}
	if cfg.Pool.ConnectTimeout.String() == "" {
		t.Error("ConnectTimeout should be a valid duration")
	}
	if cfg.Pool.PooledConnectionIdleTimeout.String() == "" {
		t.Error("PooledConnectionIdleTimeout should be a valid duration")
	}
}
