package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Credentials carries the Earthdata login the search/download tools need.
// Values come from the environment only; they are handed to tools via their
// process environment and never placed on a command line or in the snapshot.
type Credentials struct {
	User string `env:"EARTHDATA_USER"`
	Pass string `env:"EARTHDATA_PASS"`
}

// LoadCredentials reads credentials from the environment. Both fields empty
// is not an error here; the download step decides whether it can proceed.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	if err := env.Parse(&c); err != nil {
		return Credentials{}, fmt.Errorf("parse credential env vars: %w", err)
	}
	return c, nil
}

// Env returns the credential variables in os/exec environment form, or nil
// when no credentials are set.
func (c Credentials) Env() []string {
	if c.User == "" && c.Pass == "" {
		return nil
	}
	return []string{
		"EARTHDATA_USER=" + c.User,
		"EARTHDATA_PASS=" + c.Pass,
	}
}
