package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port      string          `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Postgres  DBConfig        `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	APIKey    APIKeyConfig    `mapstructure:"apikey"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	CORS      CORSConfig      `mapstructure:"cors"`
	OTel      OTelConfig      `mapstructure:"otel"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

type DBConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type APIKeyConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type MQTTConfig struct {
	BrokerURL     string `mapstructure:"broker_url"`
	ClientID      string `mapstructure:"client_id"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	Topic         string `mapstructure:"topic"`
	APIKey        string `mapstructure:"api_key"`
	AllowRetained bool   `mapstructure:"allow_retained"`
}

type RateLimitConfig struct {
	LoginRPS    int `mapstructure:"login_rps"`
	LoginBurst  int `mapstructure:"login_burst"`
	IngestRPS   int `mapstructure:"ingest_rps"`
	IngestBurst int `mapstructure:"ingest_burst"`
}

type RealtimeConfig struct {
	SendBuffer int `mapstructure:"send_buffer"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type OTelConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_ttl", 30*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.db", "")
	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("apikey.cache_ttl", 60*time.Second)
	v.SetDefault("mqtt.broker_url", "")
	v.SetDefault("mqtt.client_id", "crane-telemetry")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "ncd/sensors/#")
	v.SetDefault("mqtt.api_key", "")
	v.SetDefault("mqtt.allow_retained", false)
	v.SetDefault("ratelimit.login_rps", 1)
	v.SetDefault("ratelimit.login_burst", 5)
	v.SetDefault("ratelimit.ingest_rps", 50)
	v.SetDefault("ratelimit.ingest_burst", 100)
	v.SetDefault("realtime.send_buffer", 32)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("otel.service_name", "crane-telemetry")
}

// Load reads defaults, then the optional YAML file at path, then environment
// variables (jwt.secret is JWT_SECRET, postgres.host is POSTGRES_HOST).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every missing required key at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("missing required config %q", key))
		}
	}
	require("jwt.secret", c.JWT.Secret)
	require("postgres.user", c.Postgres.User)
	require("postgres.db", c.Postgres.DBName)
	require("postgres.host", c.Postgres.Host)
	if c.MQTT.BrokerURL != "" {
		require("mqtt.api_key", c.MQTT.APIKey)
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("jwt ttls must be positive"))
	}
	return errors.Join(errs...)
}
