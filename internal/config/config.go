// Package config loads the scheduler's daemon configuration via viper
// (server/strategy/predictor/transfer/logging knobs, env-var overridable)
// and its endpoint fleet via direct YAML decoding.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/deltasched/scheduler/pkg/safeconv"
)

// Sentinel validation errors, returned wrapped with offending values.
var (
	ErrInvalidServerPort     = errors.New("config: invalid server port")
	ErrInvalidStrategy       = errors.New("config: invalid strategy name")
	ErrInvalidRuntimePredict = errors.New("config: invalid runtime predictor name")
	ErrInvalidLogLevel       = errors.New("config: invalid log level")
	ErrNegativeDuration      = errors.New("config: duration must be positive")
)

// ServerConfig controls the HTTP front end.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRequestBody  string        `mapstructure:"max_request_body"`
}

// MaxRequestBodyBytes parses ServerConfig.MaxRequestBody ("32MiB", "1GB",
// ...) into a byte count, clamped into int64 range.
func (s ServerConfig) MaxRequestBodyBytes() (int64, error) {
	trimmed := strings.TrimSpace(s.MaxRequestBody)
	if trimmed == "" {
		return 32 << 20, nil
	}

	parsed, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("config: parse server.max_request_body %q: %w", s.MaxRequestBody, err)
	}

	return safeconv.SafeInt64(parsed), nil
}

// StrategyConfig selects and parameterizes the endpoint-selection policy.
type StrategyConfig struct {
	Name         string  `mapstructure:"name"`
	LatencyConst float64 `mapstructure:"latency_const"`
}

// PredictorConfig selects and parameterizes the runtime/transfer
// predictors.
type PredictorConfig struct {
	RuntimeKind            string `mapstructure:"runtime_kind"`
	LastN                  int    `mapstructure:"last_n"`
	TrainEvery             int    `mapstructure:"train_every"`
	TransferTrainEvery     int    `mapstructure:"transfer_train_every"`
	SnapshotPath           string `mapstructure:"snapshot_path"`
	SnapshotCompress       bool   `mapstructure:"snapshot_compress"`
	SnapshotIntervalSecond int    `mapstructure:"snapshot_interval_seconds"`
}

// TransferConfig addresses and paces the external bulk-transfer service.
type TransferConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// SchedulerConfig bounds the scheduler core's loops and backup behavior.
type SchedulerConfig struct {
	MaxBackups         int           `mapstructure:"max_backups"`
	DispatchTick       time.Duration `mapstructure:"dispatch_tick"`
	HeartbeatThreshold time.Duration `mapstructure:"heartbeat_threshold"`
	WatchdogInterval   time.Duration `mapstructure:"watchdog_interval"`
}

// LoggingConfig controls structured-log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig controls OTel export.
type ObservabilityConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// BackendConfig addresses the remote function-execution service.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Config is the full daemon configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Strategy      StrategyConfig      `mapstructure:"strategy"`
	Predictor     PredictorConfig     `mapstructure:"predictor"`
	Transfer      TransferConfig      `mapstructure:"transfer"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Backend       BackendConfig       `mapstructure:"backend"`
	EndpointsFile string              `mapstructure:"endpoints_file"`
}

var validStrategies = map[string]bool{
	"round-robin": true, "rr": true,
	"fastest-endpoint": true, "fastest": true,
	"smallest-eta": true, "eta": true,
}

var validRuntimePredictors = map[string]bool{
	"rolling-average": true, "average": true, "avg": true,
	"input-length": true, "length": true, "size": true,
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_request_body", "32MiB")

	v.SetDefault("strategy.name", "smallest-eta")
	v.SetDefault("strategy.latency_const", 0.3)

	v.SetDefault("predictor.runtime_kind", "rolling-average")
	v.SetDefault("predictor.last_n", 3)
	v.SetDefault("predictor.train_every", 1)
	v.SetDefault("predictor.transfer_train_every", 1)
	v.SetDefault("predictor.snapshot_path", "")
	v.SetDefault("predictor.snapshot_compress", false)
	v.SetDefault("predictor.snapshot_interval_seconds", 60)

	v.SetDefault("transfer.base_url", "https://transfer.api.globus.org/v0.10")
	v.SetDefault("transfer.timeout", 15*time.Second)
	v.SetDefault("transfer.max_concurrent", 3)
	v.SetDefault("transfer.poll_interval", time.Second)

	v.SetDefault("scheduler.max_backups", 0)
	v.SetDefault("scheduler.dispatch_tick", 150*time.Millisecond)
	v.SetDefault("scheduler.heartbeat_threshold", 75*time.Second)
	v.SetDefault("scheduler.watchdog_interval", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.sample_ratio", 1.0)

	v.SetDefault("backend.base_url", "http://localhost:9000")
	v.SetDefault("backend.timeout", 15*time.Second)

	v.SetDefault("endpoints_file", "endpoints.yaml")
}

// Load reads the daemon config from defaults, configPath (if non-empty), and
// environment variables prefixed SCHED_ (e.g. SCHED_SERVER_PORT), in
// increasing precedence, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidServerPort, cfg.Server.Port)
	}

	if !validStrategies[strings.ToLower(cfg.Strategy.Name)] {
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, cfg.Strategy.Name)
	}

	if !validRuntimePredictors[strings.ToLower(cfg.Predictor.RuntimeKind)] {
		return fmt.Errorf("%w: %q", ErrInvalidRuntimePredict, cfg.Predictor.RuntimeKind)
	}

	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Logging.Level)
	}

	if cfg.Scheduler.DispatchTick <= 0 {
		return fmt.Errorf("%w: scheduler.dispatch_tick", ErrNegativeDuration)
	}

	if cfg.Scheduler.HeartbeatThreshold <= 0 {
		return fmt.Errorf("%w: scheduler.heartbeat_threshold", ErrNegativeDuration)
	}

	return nil
}
