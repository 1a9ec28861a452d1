package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/tokenauth/internal/flagx"
)

type JsonConfig struct {
	ServerEndpointAddr string `json:"server_endpoint_addr"`
	RequestTimeout     string `json:"request_timeout"`
}

// parseJson overlays cfg with the file named by -c/-config. Panics on read
// or decode errors.
func parseJson(cfg *Config, args []string) {
	jsonConfigFile := flagx.ConfigPath(args)
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.RequestTimeout != "" {
		d, err := time.ParseDuration(jc.RequestTimeout)
		if err != nil {
			panic(err)
		}
		cfg.RequestTimeout = d
	}
}
