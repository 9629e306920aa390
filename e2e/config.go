package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

// Config points the suite at a running chat-delivery instance.
type Config struct {
	BaseURL   string `envconfig:"E2E_BASE_URL"`
	AdminAddr string `envconfig:"E2E_ADMIN_ADDR"`
	// Secrets shared with the server, used to mint tokens and call /internal
	JWTSecret      string `envconfig:"JWT_SECRET"`
	InternalAPIKey string `envconfig:"INTERNAL_API_KEY"`
	// E2E_DEBUG_JSON dumps every request and response body
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized step headers
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
