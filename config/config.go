// Package config loads server configuration from an optional YAML file with
// defaults and environment variable overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP        HTTPConfig        `koanf:"http"`
	DB          DBConfig          `koanf:"db"`
	Sweeper     SweeperConfig     `koanf:"sweeper"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
}

type HTTPConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
}

type DBConfig struct {
	Path string `koanf:"path"`
}

type SweeperConfig struct {
	Interval    time.Duration `koanf:"interval"`
	SettleDelay time.Duration `koanf:"settle_delay"`
}

type IdempotencyConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	setDefault(k, "http.host", "0.0.0.0")
	setDefault(k, "http.port", 8080)
	setDefault(k, "http.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	setDefault(k, "http.read_timeout", 15*time.Second)
	setDefault(k, "http.write_timeout", 15*time.Second)

	setDefault(k, "db.path", "storefront.db")

	setDefault(k, "sweeper.interval", time.Hour)
	setDefault(k, "sweeper.settle_delay", 10*time.Second)

	setDefault(k, "idempotency.ttl", 24*time.Hour)
}

func applyEnvOverrides(k *koanf.Koanf) {
	if host := os.Getenv("HTTP_HOST"); host != "" {
		k.Set("http.host", host)
	}
	if port := envInt("HTTP_PORT"); port > 0 {
		k.Set("http.port", port)
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		k.Set("db.path", path)
	}
	if mins := envInt("SWEEPER_INTERVAL_MINUTES"); mins > 0 {
		k.Set("sweeper.interval", time.Duration(mins)*time.Minute)
	}
	if secs := envInt("SWEEPER_SETTLE_DELAY_SECONDS"); secs > 0 {
		k.Set("sweeper.settle_delay", time.Duration(secs)*time.Second)
	}
	if hours := envInt("IDEMPOTENCY_TTL_HOURS"); hours > 0 {
		k.Set("idempotency.ttl", time.Duration(hours)*time.Hour)
	}
}

// setDefault only sets the value if the key doesn't already exist.
func setDefault(k *koanf.Koanf, key string, value interface{}) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

func envInt(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
