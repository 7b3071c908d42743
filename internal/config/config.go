// Package config содержит логику чтения конфигурации MCP-шлюза к API провайдера.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Транспорты MCP-сервера.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config содержит параметры конфигурации шлюза.
type Config struct {
	RunAddress string `env:"RUN_ADDRESS"`
	Transport  string `env:"MCP_TRANSPORT"`
	APIURL     string `env:"ISP_API_URL"`
	APIKey     string `env:"ISP_API_KEY"`
	AuthToken  string `env:"MCP_AUTH_TOKEN"`

	APITimeout    time.Duration `env:"ISP_API_TIMEOUT" envDefault:"30s"`
	RetryAttempts int           `env:"ISP_API_RETRY_ATTEMPTS" envDefault:"3"`
	BackoffBase   time.Duration `env:"ISP_API_BACKOFF_BASE" envDefault:"1s"`

	ClientsTTL           time.Duration `env:"CACHE_TTL_CLIENTS" envDefault:"5m"`
	TicketsTTL           time.Duration `env:"CACHE_TTL_TICKETS" envDefault:"1m"`
	BalancesTTL          time.Duration `env:"CACHE_TTL_BALANCES" envDefault:"2m"`
	CacheCleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"10m"`

	FetchClientAttempts int           `env:"FETCH_CLIENT_ATTEMPTS" envDefault:"3"`
	FetchClientBackoff  time.Duration `env:"FETCH_CLIENT_BACKOFF" envDefault:"500ms"`

	TicketWriteDenylist []string `env:"TICKET_WRITE_DENYLIST" envSeparator:"," envDefault:"tickets_mensual,tickets_anual,vencimiento,archivo_ticket,respuestas"`
	TicketReasonCode    int      `env:"TICKET_STATUS_REASON_CODE" envDefault:"1"`

	CurrencyLocale string `env:"CURRENCY_LOCALE" envDefault:"es-MX"`
	CurrencyCode   string `env:"CURRENCY_CODE" envDefault:"MXN"`
	CurrencySymbol string `env:"CURRENCY_SYMBOL" envDefault:"$"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	DebugPayloads bool   `env:"DEBUG_PAYLOADS" envDefault:"false"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и
// переменных окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envTransport := cfg.Transport
	envAPIURL := cfg.APIURL
	envAPIKey := cfg.APIKey

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for the HTTP transport")
	flag.StringVar(&cfg.Transport, "t", TransportStdio, "MCP transport: stdio or http")
	flag.StringVar(&cfg.APIURL, "u", "", "ISP API base URL")
	flag.StringVar(&cfg.APIKey, "k", "", "ISP API key")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envTransport != "" {
		cfg.Transport = envTransport
	}
	if envAPIURL != "" {
		cfg.APIURL = envAPIURL
	}
	if envAPIKey != "" {
		cfg.APIKey = envAPIKey
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}

	return cfg, nil
}

// Validate проверяет обязательные параметры и допустимые значения.
func (c *Config) Validate() error {
	var errs []error

	if c.APIURL == "" {
		errs = append(errs, errors.New("ISP API URL is required (ISP_API_URL or -u)"))
	} else if u, err := url.Parse(c.APIURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("ISP API URL %q must be an absolute http(s) URL", c.APIURL))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("ISP API key is required (ISP_API_KEY or -k)"))
	}
	if c.Transport != TransportStdio && c.Transport != TransportHTTP {
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.APITimeout <= 0 {
		errs = append(errs, errors.New("ISP_API_TIMEOUT must be positive"))
	}
	if c.RetryAttempts < 0 {
		errs = append(errs, errors.New("ISP_API_RETRY_ATTEMPTS must not be negative"))
	}
	if c.FetchClientAttempts < 1 {
		errs = append(errs, errors.New("FETCH_CLIENT_ATTEMPTS must be at least 1"))
	}

	return errors.Join(errs...)
}
