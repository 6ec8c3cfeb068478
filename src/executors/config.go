package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DiscordToken string `envconfig:"DISCORD_TOKEN" required:"true"`
	ChannelID    string `envconfig:"CHANNEL_ID" required:"true"`

	BybitAPIKey    string `envconfig:"BYBIT_API_KEY" required:"true"`
	BybitAPISecret string `envconfig:"BYBIT_API_SECRET" required:"true"`

	QuoteAsset     string   `envconfig:"QUOTE_ASSET" default:"USDT"`
	AllowedCallers []string `envconfig:"ALLOWED_CALLERS"`
	ParserVersion  string   `envconfig:"PARSER_VERSION" default:"v2"`

	LoopPeriod        time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`
	LoopJitter        time.Duration `envconfig:"LOOP_JITTER" default:"5s"`
	AmendmentInterval time.Duration `envconfig:"AMENDMENT_INTERVAL" default:"5m"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"5m"`
	FetchLimit        int           `envconfig:"FETCH_LIMIT" default:"50"`
	MaxSignalLag      time.Duration `envconfig:"MAX_SIGNAL_LAG" default:"15m"`

	RiskPct          float64       `envconfig:"RISK_PCT" default:"2"`
	DefaultLeverage  int           `envconfig:"DEFAULT_LEVERAGE" default:"10"`
	CapSLDistancePct float64       `envconfig:"CAP_SL_DISTANCE_PCT" default:"10"`
	MaxSLDistancePct float64       `envconfig:"MAX_SL_DISTANCE_PCT" default:"0"`
	DefaultSLPct     float64       `envconfig:"DEFAULT_SL_PCT" default:"0"`
	TPSplits         []float64     `envconfig:"TP_SPLITS"`
	DCAQtyMults      []float64     `envconfig:"DCA_QTY_MULTS"`
	AlertLossPct     float64       `envconfig:"ALERT_LOSS_PCT" default:"0"`
	EntryTTL         time.Duration `envconfig:"ENTRY_TTL" default:"1h"`
	ClosedRetention  time.Duration `envconfig:"CLOSED_RETENTION" default:"24h"`
	DryRun           bool          `envconfig:"DRY_RUN" default:"false"`

	MaxOpenTrades   int `envconfig:"MAX_OPEN_TRADES" default:"5"`
	MaxTradesPerDay int `envconfig:"MAX_TRADES_PER_DAY" default:"10"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
