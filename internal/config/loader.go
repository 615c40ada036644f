package config

import (
	"context"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

// EnvPrefix is the prefix of environment variable overrides, e.g. LINKGUARD_REDIS_PASSWORD.
const EnvPrefix = "LINKGUARD"

// Loader reads configuration from a YAML file and the environment.
type Loader struct {
	v   *viper.Viper
	log logger.Logger

	mu      sync.Mutex
	current *Config
}

// NewLoader creates a Loader. An empty path searches ./config.yaml and /etc/linkguard/config.yaml.
func NewLoader(path string, log logger.Logger) *Loader {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/linkguard/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, log: log}
}

// LoadConfig loads and validates configuration in one step.
func LoadConfig(path string, log logger.Logger) (*Config, error) {
	return NewLoader(path, log).Load()
}

// Load reads the config file (if any), applies environment overrides and validates the result.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrInvalidConfig("failed to read config file").WithCause(err)
		}
		l.log.Info(context.Background(), "No config file found, using defaults and environment")
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrInvalidConfig("failed to unmarshal config").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-reads the config file on change and calls onChange with the new,
// validated configuration. Invalid edits are logged and ignored.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		cfg, err := l.decode()
		if err != nil {
			l.log.Warn(ctx, "Ignoring invalid config change",
				logger.String("file", e.Name),
				logger.Err(err),
			)
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		l.log.Info(ctx, "Config reloaded", logger.String("file", e.Name))
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Current returns the last successfully loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.sentinel_master", "")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("redis.read_timeout", "500ms")
	v.SetDefault("redis.write_timeout", "500ms")
	v.SetDefault("redis.enable_tls", false)
	v.SetDefault("redis.tls_skip_verify", false)

	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.namespace", "")
	v.SetDefault("store.operation_timeout", constants.DefaultStoreOperationTimeout)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.policies.auth.key_prefix", string(constants.PolicyAuth))
	v.SetDefault("rate_limit.policies.auth.window", constants.DefaultAuthWindow)
	v.SetDefault("rate_limit.policies.auth.max_requests", constants.DefaultAuthMaxRequests)
	v.SetDefault("rate_limit.policies.url_create.key_prefix", string(constants.PolicyURLCreate))
	v.SetDefault("rate_limit.policies.url_create.window", constants.DefaultURLCreateWindow)
	v.SetDefault("rate_limit.policies.url_create.max_requests", constants.DefaultURLCreateMaxRequests)

	v.SetDefault("registry.revoke_all_on_logout", true)
	v.SetDefault("registry.max_token_lifetime", constants.DefaultMaxTokenLifetime)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", constants.ServiceName)
	v.SetDefault("jwt.access_token_ttl", constants.DefaultAccessTokenTTL)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("monitoring.metrics_enabled", true)
	v.SetDefault("monitoring.pprof_enabled", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 0.1)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.sink", "gorm")
	v.SetDefault("audit.driver", "sqlite")
	v.SetDefault("audit.dsn", "file:linkguard_audit.db")
	v.SetDefault("audit.buffer_size", 1024)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.audit_topic", "linkguard-audit")
	v.SetDefault("kafka.group_id", "linkguard-revocations")
	v.SetDefault("kafka.region", "")
	v.SetDefault("kafka.consume_revocations", false)
	v.SetDefault("kafka.signing_key", "")
	v.SetDefault("kafka.required_acks", 1)
	v.SetDefault("kafka.write_timeout", "5s")
	v.SetDefault("kafka.batch_timeout", "50ms")

	v.SetDefault("upstream.url", "")
	v.SetDefault("upstream.timeout", "10s")
}
