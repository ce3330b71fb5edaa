package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (DIGISHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (DIGISHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr    string `default:"localhost:6379" usage:"Redis address for cart and payment-attempt storage" flag:"redis-addr"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	SecureCookie bool   `default:"false" usage:"Set the Secure flag on the session cookie" flag:"secure-cookie"`
	Gateway      GatewayConfig
	Graceful     GracefulConfig
}

// GatewayConfig configures the payment gateway adapter.
type GatewayConfig struct {
	MerchantID  string        `usage:"Payment gateway merchant identifier" flag:"merchant-id"`
	BaseURL     string        `default:"" usage:"Payment gateway base URL (empty means sandbox)" flag:"gateway-url"`
	Timeout     time.Duration `default:"10s" usage:"Per-call gateway timeout" flag:"gateway-timeout"`
	CallbackURL string        `usage:"Absolute URL the gateway redirects buyers to after payment" flag:"callback-url"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DIGISHOP",
		Files:     []string{"config.yaml", "/etc/digishop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set DIGISHOP_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Gateway.MerchantID == "" {
		return nil, errors.New("gateway merchant ID is required: set DIGISHOP_GATEWAY_MERCHANT_ID")
	}
	if cfg.Gateway.CallbackURL == "" {
		return nil, errors.New("gateway callback URL is required: set DIGISHOP_GATEWAY_CALLBACK_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's DIGISHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisAddr == "localhost:6379" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisAddr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
