// Package config содержит логику чтения конфигурации бота приёма заказов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultAssetsDir  = "assets"
	defaultSessionTTL = 2 * time.Hour
)

// Config содержит параметры конфигурации бота приёма заказов.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	BotToken       string        `env:"BOT_TOKEN"`
	OperatorIDs    []int64       `env:"OPERATOR_IDS" envSeparator:","`
	OperatorSecret string        `env:"OPERATOR_SECRET"`
	AssetsDir      string        `env:"ASSETS_DIR"`
	SessionTTL     time.Duration `env:"SESSION_TTL"`
	SupportContact string        `env:"SUPPORT_CONTACT"`
	PaymentDetails string        `env:"PAYMENT_DETAILS"`
}

// ParseIDs разбирает список идентификаторов, разделённых запятыми.
func ParseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse operator id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.BotToken, "t", "", "telegram bot token")
	flag.Func("o", "comma separated operator chat ids", func(s string) error {
		ids, err := ParseIDs(s)
		if err != nil {
			return err
		}
		cfg.OperatorIDs = ids
		return nil
	})
	flag.StringVar(&cfg.OperatorSecret, "s", "", "secret for operator API tokens")
	flag.StringVar(&cfg.AssetsDir, "assets", defaultAssetsDir, "directory with onboarding images")
	flag.DurationVar(&cfg.SessionTTL, "session-ttl", defaultSessionTTL, "idle conversation lifetime")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.BotToken != "" {
		cfg.BotToken = envCfg.BotToken
	}
	if len(envCfg.OperatorIDs) > 0 {
		cfg.OperatorIDs = envCfg.OperatorIDs
	}
	if envCfg.OperatorSecret != "" {
		cfg.OperatorSecret = envCfg.OperatorSecret
	}
	if envCfg.AssetsDir != "" {
		cfg.AssetsDir = envCfg.AssetsDir
	}
	if envCfg.SessionTTL > 0 {
		cfg.SessionTTL = envCfg.SessionTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	return cfg, nil
}
