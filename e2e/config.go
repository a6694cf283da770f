package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_SERVER_URL points to a running server, the suites are skipped without it
	ServerURL string `envconfig:"E2E_SERVER_URL"`
	// E2E_JWT_SECRET must match the server JWT_SECRET so the suite can mint tokens
	JWTSecret string `envconfig:"E2E_JWT_SECRET"`
	// Users created beforehand, e.g. with cmd/seed
	AliceID int64 `envconfig:"E2E_ALICE_ID" default:"1"`
	BobID   int64 `envconfig:"E2E_BOB_ID" default:"2"`
	// E2E_DEBUG_JSON dumps request and response bodies
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
