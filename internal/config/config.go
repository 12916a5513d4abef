// Package config loads console settings from a .env file, a YAML config
// file and UNIGO_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "UNIGO"

type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	UploadsURL string        `mapstructure:"uploads_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type RealtimeConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type SessionConfig struct {
	// Store is one of memory, redis or postgres.
	Store string `mapstructure:"store"`
	Key   string `mapstructure:"key"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ConsoleConfig struct {
	Addr string `mapstructure:"addr"`
}

type InboxConfig struct {
	TypingDebounce     time.Duration `mapstructure:"typing_debounce"`
	MaxAttachmentBytes int64         `mapstructure:"max_attachment_bytes"`
}

type NotificationConfig struct {
	SeedLimit int           `mapstructure:"seed_limit"`
	ToastTTL  time.Duration `mapstructure:"toast_ttl"`
}

type DevserverConfig struct {
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Realtime     RealtimeConfig     `mapstructure:"realtime"`
	Session      SessionConfig      `mapstructure:"session"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Console      ConsoleConfig      `mapstructure:"console"`
	Inbox        InboxConfig        `mapstructure:"inbox"`
	Notification NotificationConfig `mapstructure:"notification"`
	Devserver    DevserverConfig    `mapstructure:"devserver"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:5000/api")
	v.SetDefault("api.uploads_url", "http://localhost:5000/uploads")
	v.SetDefault("api.timeout", 0)
	v.SetDefault("realtime.url", "ws://localhost:5000/socket")
	v.SetDefault("realtime.reconnect_delay", time.Second)
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.key", "default")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("console.addr", ":8090")
	v.SetDefault("inbox.typing_debounce", time.Second)
	v.SetDefault("inbox.max_attachment_bytes", 10<<20)
	v.SetDefault("notification.seed_limit", 10)
	v.SetDefault("notification.toast_ttl", 5*time.Second)
	v.SetDefault("devserver.addr", ":5000")
	v.SetDefault("devserver.jwt_secret", "unigo-dev-secret")
}

// Init prepares v: optional .env, defaults, env binding and the config
// file. A missing config file is not an error.
func Init(v *viper.Viper, configFile string) error {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file loaded")
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("unigo")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/unigo")
		v.AddConfigPath("$HOME/.unigo")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && configFile == "" {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	logrus.WithField("file", v.ConfigFileUsed()).Debug("config loaded")
	return nil
}

func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Session.Store {
	case "memory", "redis":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("config: session.store is postgres but postgres.dsn is empty")
		}
	default:
		return errors.Errorf("config: unknown session.store %q", c.Session.Store)
	}
	if c.API.BaseURL == "" {
		return errors.New("config: api.base_url is required")
	}
	return nil
}
