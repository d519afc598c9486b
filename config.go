package accounts

import (
	"os"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// EnvConfig is the environment-backed Config implementation. A .env file
// is loaded when present; real environment variables win over file values.
type EnvConfig struct {
	SigningKey        string
	RefreshSigningKey string
	SigningMethod     string
	ContextKey        string
	TokenLookup       string
	AuthScheme        string
	Issuer            string
	Audience          []string
}

var _ Config = (*EnvConfig)(nil)

// LoadConfig reads configuration from the environment, optionally seeded
// from the given dotenv files.
func LoadConfig(files ...string) (*EnvConfig, error) {
	// a missing .env file is not an error; the environment may be fully set
	_ = godotenv.Load(files...)

	cfg := &EnvConfig{
		SigningKey:        os.Getenv("ACCOUNTS_SIGNING_KEY"),
		RefreshSigningKey: os.Getenv("ACCOUNTS_REFRESH_SIGNING_KEY"),
		SigningMethod:     envOr("ACCOUNTS_SIGNING_METHOD", "HS256"),
		ContextKey:        envOr("ACCOUNTS_CONTEXT_KEY", "user"),
		TokenLookup:       envOr("ACCOUNTS_TOKEN_LOOKUP", defaultTokenLookup),
		AuthScheme:        envOr("ACCOUNTS_AUTH_SCHEME", "Bearer"),
		Issuer:            envOr("ACCOUNTS_ISSUER", "ecopulse"),
	}

	if aud := os.Getenv("ACCOUNTS_AUDIENCE"); aud != "" {
		for _, a := range strings.Split(aud, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.Audience = append(cfg.Audience, a)
			}
		}
	}

	if cfg.SigningKey == "" {
		return nil, goerrors.New("ACCOUNTS_SIGNING_KEY is required", goerrors.CategoryValidation)
	}

	return cfg, nil
}

func (c *EnvConfig) GetSigningKey() string        { return c.SigningKey }
func (c *EnvConfig) GetRefreshSigningKey() string { return c.RefreshSigningKey }
func (c *EnvConfig) GetSigningMethod() string     { return c.SigningMethod }
func (c *EnvConfig) GetContextKey() string        { return c.ContextKey }
func (c *EnvConfig) GetTokenLookup() string       { return c.TokenLookup }
func (c *EnvConfig) GetAuthScheme() string        { return c.AuthScheme }
func (c *EnvConfig) GetIssuer() string            { return c.Issuer }
func (c *EnvConfig) GetAudience() []string        { return c.Audience }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
