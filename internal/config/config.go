// Package config defines the keeper's static process configuration.
// Config is loaded from a YAML file with sensitive fields overridable via
// KEEPER_* environment variables, splitting file-based defaults from
// env overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for one keeper process: one
// trading pair on one venue.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Venue     VenueConfig     `mapstructure:"venue"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Control   ControlConfig   `mapstructure:"control"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Bands     BandsConfig     `mapstructure:"bands"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Reporting ReportingConfig `mapstructure:"reporting"`
}

// WalletConfig holds the signing key used for on-chain order
// authorization and, where the venue requires it, EIP-712 auth.
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	ChainID    int64  `mapstructure:"chain_id"`
}

// VenueConfig selects and configures the exchange adapter: "cex" for the
// resty-based REST reference adapter, "onchain" for the go-ethereum
// reference adapter.
type VenueConfig struct {
	Kind          string        `mapstructure:"kind"`
	BaseURL       string        `mapstructure:"base_url"`
	RPCURL        string        `mapstructure:"rpc_url"`
	ContractAddr  string        `mapstructure:"contract_addr"`
	APIKey        string        `mapstructure:"api_key"`
	APISecret     string        `mapstructure:"api_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DispatchConcurrency int     `mapstructure:"dispatch_concurrency"`

	PairBase  string `mapstructure:"pair_base"`
	PairQuote string `mapstructure:"pair_quote"`

	// Decimals and gas fields only matter for venue.kind=onchain.
	Decimals      int32   `mapstructure:"decimals"`
	GasMultiplier float64 `mapstructure:"gas_multiplier"`
}

// FeedConfig configures the PriceFeed tree's CLI-style URI list.
type FeedConfig struct {
	URI           string        `mapstructure:"uri"`
	DefaultMaxAge time.Duration `mapstructure:"default_max_age"`
	ShellPoll     time.Duration `mapstructure:"shell_poll"`

	// ShellCmd and ShellArgs resolve a bare "-setzer" pair tag into a
	// Shell feed: the command is invoked with ShellArgs followed by the
	// pair name as its final argument.
	ShellCmd  string   `mapstructure:"shell_cmd"`
	ShellArgs []string `mapstructure:"shell_args"`

	// Oracles maps a bare pair tag to the on-chain oracle it resolves to
	// for a "-tub" feed.uri token.
	Oracles map[string]OracleConfig `mapstructure:"oracles"`
}

// OracleConfig locates one pair's on-chain price oracle contract for the
// named-pair feed resolver.
type OracleConfig struct {
	RPCURL   string `mapstructure:"rpc_url"`
	Contract string `mapstructure:"contract"`
	Method   string `mapstructure:"method"`
	Decimals int32  `mapstructure:"decimals"`
}

// ControlConfig tunes the control loop's cycle cadence and lifecycle.
type ControlConfig struct {
	CycleInterval     time.Duration `mapstructure:"cycle_interval"`
	InFlightMaxCycles int           `mapstructure:"in_flight_max_cycles"`
	DrainTimeout      time.Duration `mapstructure:"drain_timeout"`
	CancelAllOnDrain  bool          `mapstructure:"cancel_all_on_drain"`
}

// SafetyConfig sets the pre-start and steady-state balance floors that
// trigger "unsafe to start" / draining transitions.
type SafetyConfig struct {
	MinBuyBalance  float64 `mapstructure:"min_buy_balance"`
	MinSellBalance float64 `mapstructure:"min_sell_balance"`
}

// BandsConfig locates the hot-reloaded bands configuration artifact.
type BandsConfig struct {
	Path         string `mapstructure:"path"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the read-only status/metrics HTTP server.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ReportingConfig controls the optional periodic POST of the effective
// book to an opaque reporting endpoint.
type ReportingConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("KEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("KEEPER_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("KEEPER_API_KEY"); key != "" {
		cfg.Venue.APIKey = key
	}
	if secret := os.Getenv("KEEPER_API_SECRET"); secret != "" {
		cfg.Venue.APISecret = secret
	}
	if os.Getenv("KEEPER_DRY_RUN") == "true" || os.Getenv("KEEPER_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Control.CycleInterval == 0 {
		cfg.Control.CycleInterval = 5 * time.Second
	}
	if cfg.Control.InFlightMaxCycles == 0 {
		cfg.Control.InFlightMaxCycles = 3
	}
	if cfg.Control.DrainTimeout == 0 {
		cfg.Control.DrainTimeout = 30 * time.Second
	}
	if cfg.Venue.DispatchConcurrency == 0 {
		cfg.Venue.DispatchConcurrency = 8
	}
	if cfg.Venue.RequestTimeout == 0 {
		cfg.Venue.RequestTimeout = 10 * time.Second
	}
	if cfg.Feed.DefaultMaxAge == 0 {
		cfg.Feed.DefaultMaxAge = 30 * time.Second
	}
	if cfg.Bands.PollInterval == 0 {
		cfg.Bands.PollInterval = 5 * time.Second
	}
	if cfg.Venue.Decimals == 0 {
		cfg.Venue.Decimals = 18
	}
	if cfg.Venue.GasMultiplier == 0 {
		cfg.Venue.GasMultiplier = 1.1
	}
	if cfg.Feed.ShellCmd == "" {
		cfg.Feed.ShellCmd = "setzer"
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if !c.DryRun && c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set KEEPER_PRIVATE_KEY) unless dry_run is true")
	}
	switch c.Venue.Kind {
	case "cex":
		if c.Venue.BaseURL == "" {
			return fmt.Errorf("venue.base_url is required for venue.kind=cex")
		}
	case "onchain":
		if c.Venue.RPCURL == "" {
			return fmt.Errorf("venue.rpc_url is required for venue.kind=onchain")
		}
		if c.Venue.ContractAddr == "" {
			return fmt.Errorf("venue.contract_addr is required for venue.kind=onchain")
		}
	default:
		return fmt.Errorf("venue.kind must be one of: cex, onchain")
	}
	if c.Venue.PairBase == "" || c.Venue.PairQuote == "" {
		return fmt.Errorf("venue.pair_base and venue.pair_quote are required")
	}
	if c.Feed.URI == "" {
		return fmt.Errorf("feed.uri is required")
	}
	if c.Bands.Path == "" {
		return fmt.Errorf("bands.path is required")
	}
	if c.Control.CycleInterval <= 0 {
		return fmt.Errorf("control.cycle_interval must be > 0")
	}
	if c.Venue.DispatchConcurrency <= 0 {
		return fmt.Errorf("venue.dispatch_concurrency must be > 0")
	}
	return nil
}
