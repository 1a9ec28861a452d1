package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/tokenauth/internal/flagx"
)

// Duration accepts both "1m30s" strings and integer nanoseconds in JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		return err
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// JsonConfig is the on-disk shape of the configuration file. Only keys that
// are present override the current values.
type JsonConfig struct {
	EndpointAddrGRPC             *string   `json:"endpoint_addr_grpc"`
	DatabaseDSN                  *string   `json:"database_dsn"`
	StorageBackend               *string   `json:"storage_backend"`
	RedisAddr                    *string   `json:"redis_addr"`
	SecretKey                    *string   `json:"secret_key"`
	AccessTokenValidityDuration  *Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *Duration `json:"refresh_token_validity_duration"`
	PasswordMinLength            *int      `json:"password_min_length"`
	LogLevel                     *string   `json:"log_level"`
}

// parseJson loads the file named by -c/-config, if any. An unreadable or
// invalid file panics: the server must not start with a half-applied
// configuration.
func parseJson(config *Config, args []string) {

	jsonConfigFile := flagx.ConfigPath(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setIf(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setIf(&config.DatabaseDSN, c.DatabaseDSN)
	setIf(&config.StorageBackend, c.StorageBackend)
	setIf(&config.RedisAddr, c.RedisAddr)
	setIf(&config.SecretKey, c.SecretKey)
	setIf(&config.PasswordMinLength, c.PasswordMinLength)
	setIf(&config.LogLevel, c.LogLevel)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
