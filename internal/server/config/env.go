package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

// parseEnv overlays TOKENAUTH_* environment variables. Unset variables leave
// the current value untouched.
func parseEnv(config *Config) {
	if err := cleanenv.ReadEnv(config); err != nil {
		panic(err)
	}
}
