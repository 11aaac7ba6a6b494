package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config описывает настройки запуска сервиса. Значения читаются из окружения;
// пустой PostgresDSN/RedisAddr переключает соответствующий слой на in-memory
// реализацию (локальный запуск и тесты).
type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string

	// WebhookSecrets — shared secret на провайдера, ключ в нижнем регистре.
	WebhookSecrets map[string]string

	OutboxPollInterval time.Duration
	OutboxRetention    time.Duration
}

// DefaultConfig возвращает конфигурацию локального запуска без внешних систем.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		WebhookSecrets:     map[string]string{},
		OutboxPollInterval: time.Second,
		OutboxRetention:    24 * time.Hour,
	}
}

// LoadConfig читает конфигурацию из окружения. .env подхватывается, если
// присутствует; переменные окружения имеют приоритет.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if v := os.Getenv("SETTLEMENT_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.PostgresDSN = os.Getenv("SETTLEMENT_POSTGRES_DSN")
	cfg.RedisAddr = os.Getenv("SETTLEMENT_REDIS_ADDR")
	cfg.KafkaBrokers = splitCSV(os.Getenv("KAFKA_BROKERS"))
	cfg.WebhookSecrets = webhookSecretsFromEnv()

	if v, err := time.ParseDuration(os.Getenv("SETTLEMENT_OUTBOX_POLL_INTERVAL")); err == nil && v > 0 {
		cfg.OutboxPollInterval = v
	}
	if v, err := time.ParseDuration(os.Getenv("SETTLEMENT_OUTBOX_RETENTION")); err == nil && v > 0 {
		cfg.OutboxRetention = v
	}

	return cfg
}

// webhookSecretsFromEnv собирает секреты из переменных вида
// WEBHOOK_SECRET_<PROVIDER>=<secret>.
func webhookSecretsFromEnv() map[string]string {
	const prefix = "WEBHOOK_SECRET_"

	secrets := make(map[string]string)
	for _, entry := range os.Environ() {
		if !strings.HasPrefix(entry, prefix) {
			continue
		}
		pair := strings.SplitN(strings.TrimPrefix(entry, prefix), "=", 2)
		if len(pair) != 2 || pair[0] == "" || pair[1] == "" {
			continue
		}
		secrets[strings.ToLower(pair[0])] = pair[1]
	}
	return secrets
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
