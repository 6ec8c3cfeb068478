package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BybitBaseURL    string `envconfig:"BYBIT_BASE_URL"`
	BybitWSURL      string `envconfig:"BYBIT_WS_URL"`
	BybitTestnet    bool   `envconfig:"BYBIT_TESTNET" default:"false"`
	BybitDemo       bool   `envconfig:"BYBIT_DEMO" default:"false"`
	BybitRecvWindow int    `envconfig:"BYBIT_RECV_WINDOW" default:"5000"`

	DiscordAPIBase string `envconfig:"DISCORD_API_BASE" default:"https://discord.com/api/v10"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// RestBaseURL resolves the REST host from the config, preferring an explicit
// override, then demo, then testnet, then mainnet.
func (c Config) RestBaseURL() string {
	if c.BybitBaseURL != "" {
		return c.BybitBaseURL
	}
	if c.BybitDemo {
		return "https://api-demo.bybit.com"
	}
	if c.BybitTestnet {
		return "https://api-testnet.bybit.com"
	}
	return "https://api.bybit.com"
}

// PrivateWSURL resolves the private stream host the same way.
func (c Config) PrivateWSURL() string {
	if c.BybitWSURL != "" {
		return c.BybitWSURL
	}
	if c.BybitDemo {
		return "wss://stream-demo.bybit.com/v5/private"
	}
	if c.BybitTestnet {
		return "wss://stream-testnet.bybit.com/v5/private"
	}
	return "wss://stream.bybit.com/v5/private"
}
