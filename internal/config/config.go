package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio. TrustedProxies lista IPs o
// CIDRs cuyos X-Forwarded-For se aceptan; vacío, la IP del cliente es la del
// socket.
type Config struct {
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"4000"`
	DatabaseURL     string        `env:"DATABASE_URL,required,notEmpty"`
	AppEnv          string        `env:"APP_ENV" envDefault:"development"`
	AppBaseURL      string        `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	RunMigrations   bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	DBMaxConns      int           `env:"DB_MAX_CONNS" envDefault:"10"`
	TokenStore      string        `env:"TOKEN_STORE" envDefault:"postgres"`
	SMTPHost        string        `env:"SMTP_HOST"`
	SMTPPort        int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser        string        `env:"SMTP_USER"`
	SMTPPass        string        `env:"SMTP_PASS"`
	SMTPFrom        string        `env:"SMTP_FROM"`
	SMTPFromName    string        `env:"SMTP_FROM_NAME"`
	SMTPUseTLS      bool          `env:"SMTP_USE_TLS" envDefault:"false"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	HashWorkers     int           `env:"HASH_WORKERS" envDefault:"0"`
	HashQueueWait   time.Duration `env:"HASH_QUEUE_TIMEOUT" envDefault:"2s"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"20"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	AuditRetryQueue int           `env:"AUDIT_RETRY_QUEUE" envDefault:"1024"`
	TokenPurgeEvery time.Duration `env:"TOKEN_PURGE_INTERVAL" envDefault:"1h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	TrustedProxies  []string      `env:"TRUSTED_PROXIES" envSeparator:","`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.TokenStore = strings.ToLower(strings.TrimSpace(cfg.TokenStore))
	cfg.AppBaseURL = strings.TrimRight(strings.TrimSpace(cfg.AppBaseURL), "/")
	cfg.TrustedProxies = trimNonEmpty(cfg.TrustedProxies)
	return &cfg, nil
}

// IsProduction indica si el servicio corre en producción.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func trimNonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
