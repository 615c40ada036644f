package config

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Store      StoreConfig      `mapstructure:"store"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RedisConfig struct {
	// Mode is one of standalone, cluster, sentinel
	Mode           string        `mapstructure:"mode"`
	Addresses      []string      `mapstructure:"addresses"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	SentinelMaster string        `mapstructure:"sentinel_master"`
	PoolSize       int           `mapstructure:"pool_size"`
	MinIdleConns   int           `mapstructure:"min_idle_conns"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	EnableTLS      bool          `mapstructure:"enable_tls"`
	TLSSkipVerify  bool          `mapstructure:"tls_skip_verify"`
}

type StoreConfig struct {
	// Backend is redis or memory
	Backend string `mapstructure:"backend"`
	// Namespace is prepended to every key, for sharing one store between deployments
	Namespace        string        `mapstructure:"namespace"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type PolicyConfig struct {
	KeyPrefix   string        `mapstructure:"key_prefix"`
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int64         `mapstructure:"max_requests"`
}

type RateLimitConfig struct {
	Enabled  bool                    `mapstructure:"enabled"`
	Policies map[string]PolicyConfig `mapstructure:"policies"`
}

type RegistryConfig struct {
	// RevokeAllOnLogout makes a single logout revoke every token of the user
	RevokeAllOnLogout bool          `mapstructure:"revoke_all_on_logout"`
	MaxTokenLifetime  time.Duration `mapstructure:"max_token_lifetime"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MonitoringConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	PprofEnabled   bool `mapstructure:"pprof_enabled"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Sink is gorm or kafka
	Sink string `mapstructure:"sink"`
	// Driver is sqlite or postgres when Sink is gorm
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type KafkaConfig struct {
	Brokers            []string      `mapstructure:"brokers"`
	AuditTopic         string        `mapstructure:"audit_topic"`
	GroupID            string        `mapstructure:"group_id"`
	Region             string        `mapstructure:"region"`
	ConsumeRevocations bool          `mapstructure:"consume_revocations"`
	// SigningKey authenticates revocation messages shared between regions
	SigningKey         string        `mapstructure:"signing_key"`
	RequiredAcks       int           `mapstructure:"required_acks"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
}

type UpstreamConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitPolicies converts the configured policies into validated domain policies.
// A missing key prefix defaults to the policy name.
func (c *RateLimitConfig) RateLimitPolicies() (map[string]models.RateLimitPolicy, error) {
	names := make([]string, 0, len(c.Policies))
	for name := range c.Policies {
		names = append(names, name)
	}
	sort.Strings(names)

	policies := make(map[string]models.RateLimitPolicy, len(names))
	prefixes := make(map[string]string, len(names))
	for _, name := range names {
		pc := c.Policies[name]
		p := models.RateLimitPolicy{
			Name:        name,
			KeyPrefix:   pc.KeyPrefix,
			Window:      pc.Window,
			MaxRequests: pc.MaxRequests,
		}
		if p.KeyPrefix == "" {
			p.KeyPrefix = name
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if other, dup := prefixes[p.KeyPrefix]; dup {
			return nil, errors.ErrInvalidPolicy(name, fmt.Sprintf("key prefix %q already used by policy %q", p.KeyPrefix, other))
		}
		prefixes[p.KeyPrefix] = name
		policies[name] = p
	}
	return policies, nil
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.ErrInvalidConfig(fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}

	switch c.Store.Backend {
	case "redis":
		if len(c.Redis.Addresses) == 0 {
			return errors.ErrInvalidConfig("redis.addresses is required for the redis backend")
		}
	case "memory":
	default:
		return errors.ErrInvalidConfig(fmt.Sprintf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Store.OperationTimeout <= 0 {
		return errors.ErrInvalidConfig("store.operation_timeout must be positive")
	}

	if c.RateLimit.Enabled {
		policies, err := c.RateLimit.RateLimitPolicies()
		if err != nil {
			return err
		}
		for _, required := range []constants.PolicyName{constants.PolicyAuth, constants.PolicyURLCreate} {
			if _, ok := policies[string(required)]; !ok {
				return errors.ErrInvalidPolicy(string(required), "policy is required")
			}
		}
	}

	if c.Registry.MaxTokenLifetime <= 0 {
		return errors.ErrInvalidConfig("registry.max_token_lifetime must be positive")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.ErrInvalidConfig("jwt.secret must be at least 32 bytes")
	}
	if c.JWT.AccessTokenTTL > c.Registry.MaxTokenLifetime {
		return errors.ErrInvalidConfig("jwt.access_token_ttl must not exceed registry.max_token_lifetime")
	}

	if c.Audit.Enabled {
		switch c.Audit.Sink {
		case "gorm":
			if c.Audit.Driver != "sqlite" && c.Audit.Driver != "postgres" {
				return errors.ErrInvalidConfig(fmt.Sprintf("unknown audit.driver %q", c.Audit.Driver))
			}
		case "kafka":
			if len(c.Kafka.Brokers) == 0 || c.Kafka.AuditTopic == "" {
				return errors.ErrInvalidConfig("kafka.brokers and kafka.audit_topic are required for the kafka audit sink")
			}
		default:
			return errors.ErrInvalidConfig(fmt.Sprintf("unknown audit.sink %q", c.Audit.Sink))
		}
	}
	if c.Kafka.ConsumeRevocations {
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Region == "" {
			return errors.ErrInvalidConfig("kafka.brokers and kafka.region are required to consume revocations")
		}
		if c.Kafka.SigningKey == "" {
			return errors.ErrInvalidConfig("kafka.signing_key is required to consume revocations")
		}
	}

	if c.Upstream.URL != "" {
		if u, err := url.Parse(c.Upstream.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return errors.ErrInvalidConfig(fmt.Sprintf("upstream.url is not an absolute URL: %q", c.Upstream.URL))
		}
	}
	return nil
}
