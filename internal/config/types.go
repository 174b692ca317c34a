package config

import "time"

// Config holds all configuration for pconn: the pool tunables spec.md §6
// names, plus the ambient stack (logging, engineering toggles) and the
// demo server used by cmd/pconn-bench.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Pool        PoolConfig        `yaml:"pool"`
	TLS         TLSConfig         `yaml:"tls"`
	Proxy       ProxyConfig       `yaml:"proxy"`
	Server      ServerConfig      `yaml:"server"`
	Engineering EngineeringConfig `yaml:"engineering"`
}

// PoolConfig mirrors the "Configuration" table of spec.md §6 one field per
// row. A zero-valued duration field with an explicit "Infinite" bool
// counterpart models the spec's "+∞ disables" language without overloading
// time.Duration(0)'s existing meaning ("never pool" / "dispose on return").
type PoolConfig struct {
	MaxConnectionsPerServer int           `yaml:"max_connections_per_server"`
	PooledConnectionLifetime time.Duration `yaml:"pooled_connection_lifetime"`
	LifetimeInfinite          bool          `yaml:"lifetime_infinite"`
	PooledConnectionIdleTimeout time.Duration `yaml:"pooled_connection_idle_timeout"`
	IdleTimeoutInfinite         bool          `yaml:"idle_timeout_infinite"`
	ConnectTimeout            time.Duration `yaml:"connect_timeout"`
	ConnectTimeoutInfinite    bool          `yaml:"connect_timeout_infinite"`
	PreAuthenticate           bool          `yaml:"pre_authenticate"`
	ReaperFloor               time.Duration `yaml:"reaper_floor"`
}

// TLSConfig is cloned per pool with TargetHost rewritten to the pool's
// SslHost, as spec.md §5 "Shared resources" describes.
type TLSConfig struct {
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	MinVersion         string   `yaml:"min_version"` // "1.2" or "1.3"
	ApplicationProtos  []string `yaml:"application_protocols"`
	RootCAFile         string   `yaml:"root_ca_file"`
}

// ProxyConfig configures the static proxy resolver. Automatic OS proxy
// discovery is an explicit spec.md non-goal; pconn only supports a single
// statically configured proxy URI (or none).
type ProxyConfig struct {
	URL                     string `yaml:"url"`
	DefaultUsername         string `yaml:"default_username"`
	DefaultPassword         string `yaml:"default_password"`
}

// ServerConfig configures the optional demo HTTP origin cmd/pconn-bench can
// stand up to drive the handler against without an external target.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Theme      string `yaml:"theme"`
	PrettyLogs bool   `yaml:"pretty_logs"`
	FileOutput bool   `yaml:"file_output"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// EngineeringConfig holds development/debugging configuration
type EngineeringConfig struct {
	ShowNerdStats  bool `yaml:"show_nerdstats"`
	EnableProfiler bool `yaml:"enable_profiler"`
	ProfilerPort   int  `yaml:"profiler_port"`
}
