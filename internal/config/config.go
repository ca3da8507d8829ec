package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
// Ключ app.port читается из переменной APP_PORT и т.д.
type Config struct {
	App struct {
		Port string `mapstructure:"port" validate:"required"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`
	Log struct {
		Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	} `mapstructure:"log"`
	Store struct {
		Driver string `mapstructure:"driver" validate:"oneof=mongo memory"`
	} `mapstructure:"store"`
	Mongo struct {
		URI      string        `mapstructure:"uri"`
		Database string        `mapstructure:"database" validate:"required"`
		Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
	} `mapstructure:"mongo"`
	Cache struct {
		Driver string        `mapstructure:"driver" validate:"oneof=redis memory none"`
		TTL    time.Duration `mapstructure:"ttl" validate:"gte=0"`
		Size   int           `mapstructure:"size" validate:"gte=0"`
	} `mapstructure:"cache"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Pagination struct {
		DefaultPageSize int64 `mapstructure:"default_page_size" validate:"gt=0"`
		MaxPageSize     int64 `mapstructure:"max_page_size" validate:"gtefield=DefaultPageSize"`
	} `mapstructure:"pagination"`
	Attach struct {
		MaxRetries    uint64        `mapstructure:"max_retries"`
		RetryInterval time.Duration `mapstructure:"retry_interval" validate:"gt=0"`
		Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
		Transactions  bool          `mapstructure:"transactions"`
	} `mapstructure:"attach"`
	Reconcile struct {
		Schedule    string        `mapstructure:"schedule"`
		GracePeriod time.Duration `mapstructure:"grace_period" validate:"gte=0"`
		Policy      string        `mapstructure:"policy" validate:"oneof=report purge"`
	} `mapstructure:"reconcile"`
	Server struct {
		ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	} `mapstructure:"server"`
}

// IsProduction проверяет окружение
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

var defaults = map[string]any{
	"app.port":                     "8080",
	"app.env":                      "development",
	"log.level":                    "info",
	"store.driver":                 "mongo",
	"mongo.uri":                    "mongodb://localhost:27017",
	"mongo.database":               "mailbox_registry",
	"mongo.timeout":                "10s",
	"cache.driver":                 "memory",
	"cache.ttl":                    "30s",
	"cache.size":                   1024,
	"redis.addr":                   "localhost:6379",
	"redis.password":               "",
	"redis.db":                     0,
	"kafka.brokers":                []string{},
	"kafka.topic":                  "mailbox-registry.events",
	"pagination.default_page_size": 50,
	"pagination.max_page_size":     500,
	"attach.max_retries":           3,
	"attach.retry_interval":        "100ms",
	"attach.timeout":               "5s",
	"attach.transactions":          false,
	"reconcile.schedule":           "@every 1h",
	"reconcile.grace_period":       "5m",
	"reconcile.policy":             "report",
	"server.read_timeout":          "15s",
	"server.write_timeout":         "15s",
	"server.shutdown_timeout":      "30s",
}

var configValidator = validator.New()

// LoadConfig загружает конфигурацию: значения по умолчанию, config.yaml (если есть),
// .env по пути envFile (если есть) и переменные окружения.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// пустой RECONCILE_SCHEDULE отключает планировщик
	v.AllowEmptyEnv(true)
	v.AutomaticEnv() // Чтение переменных окружения

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitBrokers(cfg.Kafka.Brokers)

	if err := configValidator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Store.Driver == "mongo" && cfg.Mongo.URI == "" {
		return nil, errors.New("invalid config: MONGO_URI is required for the mongo store")
	}
	if cfg.Cache.Driver == "redis" && cfg.Redis.Addr == "" {
		return nil, errors.New("invalid config: REDIS_ADDR is required for the redis cache")
	}
	// иначе purge удалит абонемент, копия которого еще дописывается
	if cfg.Reconcile.Policy == "purge" && cfg.Reconcile.GracePeriod <= cfg.Attach.Timeout {
		return nil, fmt.Errorf("invalid config: RECONCILE_GRACE_PERIOD (%s) must exceed ATTACH_TIMEOUT (%s) for the purge policy",
			cfg.Reconcile.GracePeriod, cfg.Attach.Timeout)
	}
	return &cfg, nil
}

// splitBrokers нормализует список брокеров ("a:9092, b:9092" в одной строке или списком)
func splitBrokers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, b := range strings.Split(item, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
