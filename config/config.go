package config

import (
	"log/slog"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	CapabilityEmbedding   = "embedding"
	CapabilityVectorStore = "vectorstore"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

// HealthConfig drives the probe scheduler and the hysteresis thresholds.
type HealthConfig struct {
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	Jitter           float64       `mapstructure:"jitter"`
	FailThreshold    int           `mapstructure:"fail_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	StaleMultiplier  int           `mapstructure:"stale_multiplier"`
}

// BreakerConfig drives the per-provider circuit breakers.
type BreakerConfig struct {
	OpenThreshold int           `mapstructure:"open_threshold"`
	BaseCooldown  time.Duration `mapstructure:"base_cooldown"`
	MaxCooldown   time.Duration `mapstructure:"max_cooldown"`
}

// RouterWeights blend the scoring components; they must sum to 1.
type RouterWeights struct {
	Quality    float64 `mapstructure:"quality"`
	Latency    float64 `mapstructure:"latency"`
	Load       float64 `mapstructure:"load"`
	Preference float64 `mapstructure:"preference"`
}

// RouterPenalties are quality deductions per observed health status.
// Unknown must stay below Degraded, Degraded below Unhealthy.
type RouterPenalties struct {
	Unknown   float64 `mapstructure:"unknown"`
	Degraded  float64 `mapstructure:"degraded"`
	Unhealthy float64 `mapstructure:"unhealthy"`
}

type RouterConfig struct {
	Weights   RouterWeights   `mapstructure:"weights"`
	Penalties RouterPenalties `mapstructure:"penalties"`
}

// FailoverConfig bounds the per-request failover sequence.
type FailoverConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	RequestDeadline time.Duration `mapstructure:"request_deadline"`
}

type ObservabilityConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	DecisionWindow int `mapstructure:"decision_window"`
}

// ProviderConfig declares one backend instance.
type ProviderConfig struct {
	Capability  string  `mapstructure:"capability"`
	Name        string  `mapstructure:"name"`
	URL         string  `mapstructure:"url"`
	Model       string  `mapstructure:"model"`
	Token       string  `mapstructure:"token"`
	Weight      float64 `mapstructure:"weight"`
	Quality     float64 `mapstructure:"quality"`
	CostPerUnit float64 `mapstructure:"cost_per_unit"`
	CostUnit    string  `mapstructure:"cost_unit"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Health        HealthConfig        `mapstructure:"health"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
	Router        RouterConfig        `mapstructure:"router"`
	Failover      FailoverConfig      `mapstructure:"failover"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Providers     []ProviderConfig    `mapstructure:"providers"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetDefault("health.probe_interval", "15s")
	viper.SetDefault("health.probe_timeout", "5s")
	viper.SetDefault("health.jitter", 0.2)
	viper.SetDefault("health.fail_threshold", 3)
	viper.SetDefault("health.success_threshold", 2)
	viper.SetDefault("health.stale_multiplier", 3)

	viper.SetDefault("breaker.open_threshold", 5)
	viper.SetDefault("breaker.base_cooldown", "10s")
	viper.SetDefault("breaker.max_cooldown", "5m")

	viper.SetDefault("router.weights.quality", 0.6)
	viper.SetDefault("router.weights.latency", 0.3)
	viper.SetDefault("router.weights.load", 0.1)
	viper.SetDefault("router.weights.preference", 0.0)
	viper.SetDefault("router.penalties.unknown", 0.2)
	viper.SetDefault("router.penalties.degraded", 0.35)
	viper.SetDefault("router.penalties.unhealthy", 0.6)

	viper.SetDefault("failover.max_attempts", 3)
	viper.SetDefault("failover.attempt_timeout", "10s")
	viper.SetDefault("failover.request_deadline", "30s")

	viper.SetDefault("observability.buffer_size", 1024)
	viper.SetDefault("observability.decision_window", 256)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Health, validation.Required, validation.By(validateHealth)),
		validation.Field(&c.Breaker, validation.Required, validation.By(validateBreaker)),
		validation.Field(&c.Router, validation.Required, validation.By(validateRouter)),
		validation.Field(&c.Failover, validation.Required, validation.By(validateFailover)),
		validation.Field(&c.Providers,
			validation.Each(validation.By(validateProviderConfig)),
		),
	)
}

func validateHealth(value interface{}) error {
	hc, ok := value.(HealthConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a HealthConfig")
	}

	if hc.ProbeInterval <= 0 || hc.ProbeTimeout <= 0 {
		return validation.NewError("validation_invalid_duration", "probe interval and timeout must be positive")
	}
	if hc.ProbeTimeout >= hc.ProbeInterval {
		return validation.NewError("validation_probe_timeout", "probe timeout must be shorter than the interval")
	}
	if hc.Jitter < 0 || hc.Jitter >= 1 {
		return validation.NewError("validation_jitter", "jitter must be in [0,1)")
	}
	if hc.FailThreshold < 1 || hc.SuccessThreshold < 1 {
		return validation.NewError("validation_thresholds", "thresholds must be at least 1")
	}
	if hc.StaleMultiplier < 2 {
		return validation.NewError("validation_stale_multiplier", "stale multiplier must be at least 2")
	}

	return nil
}

func validateBreaker(value interface{}) error {
	bc, ok := value.(BreakerConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
	}

	if bc.OpenThreshold < 1 {
		return validation.NewError("validation_open_threshold", "open threshold must be at least 1")
	}
	if bc.BaseCooldown <= 0 {
		return validation.NewError("validation_base_cooldown", "base cooldown must be positive")
	}
	if bc.MaxCooldown < bc.BaseCooldown {
		return validation.NewError("validation_max_cooldown", "max cooldown must be at least the base cooldown")
	}

	return nil
}

func validateRouter(value interface{}) error {
	rc, ok := value.(RouterConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a RouterConfig")
	}

	sum := rc.Weights.Quality + rc.Weights.Latency + rc.Weights.Load + rc.Weights.Preference
	if math.Abs(sum-1) > 1e-6 {
		return validation.NewError("validation_weights", "router weights must sum to 1")
	}
	for _, w := range []float64{rc.Weights.Quality, rc.Weights.Latency, rc.Weights.Load, rc.Weights.Preference} {
		if w < 0 {
			return validation.NewError("validation_weights", "router weights cannot be negative")
		}
	}

	p := rc.Penalties
	if p.Unknown < 0 || p.Degraded < 0 || p.Unhealthy < 0 {
		return validation.NewError("validation_penalties", "penalties cannot be negative")
	}
	if !(p.Unknown < p.Degraded && p.Degraded < p.Unhealthy) {
		return validation.NewError("validation_penalties", "penalties must be ordered unknown < degraded < unhealthy")
	}

	return nil
}

func validateFailover(value interface{}) error {
	fc, ok := value.(FailoverConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a FailoverConfig")
	}

	if fc.MaxAttempts < 1 {
		return validation.NewError("validation_max_attempts", "max attempts must be at least 1")
	}
	if fc.AttemptTimeout <= 0 || fc.RequestDeadline <= 0 {
		return validation.NewError("validation_invalid_duration", "attempt timeout and request deadline must be positive")
	}
	if fc.AttemptTimeout > fc.RequestDeadline {
		return validation.NewError("validation_attempt_timeout", "attempt timeout cannot exceed the request deadline")
	}

	return nil
}

func validateProviderConfig(value interface{}) error {
	pc, ok := value.(ProviderConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ProviderConfig")
	}

	if pc.Capability != CapabilityEmbedding && pc.Capability != CapabilityVectorStore {
		return validation.NewError("validation_capability", "capability must be embedding or vectorstore")
	}

	if pc.Name == "" {
		return validation.NewError("validation_empty_name", "provider name cannot be empty")
	}

	if pc.URL == "" {
		return validation.NewError("validation_empty_url", "provider URL cannot be empty")
	}

	parsedURL, err := url.Parse(pc.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	if pc.Weight <= 0 {
		return validation.NewError("validation_invalid_weight", "weight must be positive")
	}

	if pc.Quality < 0 || pc.Quality > 1 {
		return validation.NewError("validation_invalid_quality", "quality must be in [0,1]")
	}

	if pc.CostPerUnit < 0 {
		return validation.NewError("validation_invalid_cost", "cost per unit cannot be negative")
	}

	return nil
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
