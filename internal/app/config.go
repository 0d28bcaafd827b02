package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (DIGIKART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (DIGIKART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	AdminToken  string `usage:"Bearer token for administrative routes" flag:"admin-token"`

	Checkout  CheckoutConfig
	Payment   PaymentConfig
	Download  DownloadConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// CheckoutConfig controls checkout staging.
type CheckoutConfig struct {
	TTL           time.Duration `default:"30m" usage:"Deadline for a staged checkout"`
	SweepInterval time.Duration `default:"1m"  usage:"How often expired checkouts are swept" flag:"sweep-interval"`
}

// PaymentConfig holds the payment gateway credentials.
type PaymentConfig struct {
	BaseURL       string        `default:"https://api.razorpay.com" usage:"Payment gateway base URL" flag:"payment-base-url"`
	KeyID         string        `usage:"Gateway key id" flag:"payment-key-id"`
	KeySecret     string        `usage:"Gateway key secret (signature HMAC key)" flag:"payment-key-secret"`
	WebhookSecret string        `usage:"Gateway webhook HMAC key" flag:"webhook-secret"`
	Timeout       time.Duration `default:"10s" usage:"Gateway request timeout" flag:"payment-timeout"`
}

// DownloadConfig controls signed download tokens and file storage.
type DownloadConfig struct {
	Secret   string        `usage:"HMAC key for download tokens" flag:"download-secret"`
	TTL      time.Duration `default:"1h" usage:"Download token lifetime" flag:"download-ttl"`
	FilesDir string        `default:"./files" usage:"Directory holding purchasable files" flag:"files-dir"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DIGIKART",
		Files:     []string{"config.yaml", "/etc/digikart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set DIGIKART_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Payment.KeySecret == "" {
		return nil, errors.New("payment key secret is required: set DIGIKART_PAYMENT_KEY_SECRET")
	}
	if cfg.Download.Secret == "" {
		return nil, errors.New("download secret is required: set DIGIKART_DOWNLOAD_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's DIGIKART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
