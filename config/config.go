// Package config loads a backtest run from a config file, a .env file and
// TRAILGRID_ prefixed environment variables. Everything is validated here so
// the rest of the program can trust what it gets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/pedropmedina/trailgrid/backtest"
	"github.com/pedropmedina/trailgrid/logger"
	"github.com/pedropmedina/trailgrid/orders"
)

const EnvPrefix = "TRAILGRID"

var (
	ErrMissingKey   = errors.New("missing required config key")
	ErrInvalidValue = errors.New("invalid config value")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type RankingConfig struct {
	// Window is the rolling window, in steps, of volume and noisiness.
	Window                      int     `mapstructure:"window" validate:"gte=1"`
	RelativeVolumeFilterClipPct float64 `mapstructure:"relative_volume_filter_clip_pct" validate:"gte=0,lt=1"`
}

type DataConfig struct {
	Source string `mapstructure:"source" validate:"oneof=csv alpaca"`
	// CSVDir holds one <symbol>.csv per symbol.
	CSVDir           string `mapstructure:"csv_dir" validate:"required_if=Source csv"`
	Start            string `mapstructure:"start" validate:"required_if=Source alpaca"`
	End              string `mapstructure:"end" validate:"required_if=Source alpaca"`
	TimeframeMinutes int    `mapstructure:"timeframe_minutes" validate:"gte=1"`
}

// Period parses Start and End as RFC3339 timestamps.
func (d DataConfig) Period() (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, d.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: data.start: %v", ErrInvalidValue, err)
	}
	end, err := time.Parse(time.RFC3339, d.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: data.end: %v", ErrInvalidValue, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: data.end must be after data.start", ErrInvalidValue)
	}
	return start, end, nil
}

type StoreConfig struct {
	// Path of the sqlite database. Empty disables persistence.
	Path string `mapstructure:"path"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `mapstructure:"addr"`
}

type OptimizeConfig struct {
	Limits  backtest.Limits `mapstructure:"limits"`
	Scoring []string        `mapstructure:"scoring" validate:"len=2,dive,oneof=adg mdg sharpe_ratio drawdown_worst equity_balance_diff_mean equity_balance_diff_max loss_profit_ratio"`
}

// ScoringPair returns Scoring as the fixed pair backtest.Fitness takes.
func (o OptimizeConfig) ScoringPair() [2]string {
	return [2]string{o.Scoring[0], o.Scoring[1]}
}

type Config struct {
	Bot      orders.BotParamsPair             `mapstructure:"bot"`
	Backtest backtest.Params                  `mapstructure:"backtest"`
	Exchange map[string]orders.ExchangeParams `mapstructure:"exchange"`
	Ranking  RankingConfig                    `mapstructure:"ranking"`
	Data     DataConfig                       `mapstructure:"data"`
	Store    StoreConfig                      `mapstructure:"store"`
	Metrics  MetricsConfig                    `mapstructure:"metrics"`
	Log      logger.Config                    `mapstructure:"log"`
	Optimize OptimizeConfig                   `mapstructure:"optimize"`

	// ExchangeParams is Exchange ordered like Backtest.Symbols.
	ExchangeParams []orders.ExchangeParams `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backtest.steps_per_day", backtest.DefaultStepsPerDay)
	v.SetDefault("ranking.window", 60)
	v.SetDefault("ranking.relative_volume_filter_clip_pct", 0.1)
	v.SetDefault("data.source", "csv")
	v.SetDefault("data.csv_dir", "data")
	v.SetDefault("data.timeframe_minutes", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("optimize.scoring", []string{"adg", "sharpe_ratio"})
	v.SetDefault("optimize.limits.lower_bound_drawdown_worst", 0.25)
	v.SetDefault("optimize.limits.lower_bound_equity_balance_diff_mean", 0.02)
	v.SetDefault("optimize.limits.lower_bound_loss_profit_ratio", 0.6)
}

// NewViper returns a viper instance with defaults and environment
// overrides set up. Env keys are the config keys upper-cased, with dots
// replaced by underscores and TRAILGRID_ prepended.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads path (any format viper knows by extension) after loading an
// optional .env from the working directory.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"path":    path,
		"symbols": cfg.Backtest.Symbols,
	}).Debug("config loaded")
	return cfg, nil
}

// FromViper decodes and validates a populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var missing []string
	for _, side := range []string{"long", "short"} {
		for _, key := range orders.BotParamKeys {
			if k := "bot." + side + "." + key; !v.IsSet(k) {
				missing = append(missing, k)
			}
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	// n_positions may be written as a float, e.g. 3.0 out of an optimizer
	for _, p := range []struct {
		key string
		dst *int
	}{
		{"bot.long.n_positions", &cfg.Bot.Long.NPositions},
		{"bot.short.n_positions", &cfg.Bot.Short.NPositions},
	} {
		n, err := cast.ToFloat64E(v.Get(p.key))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, p.key, err)
		}
		*p.dst = int(math.Round(n))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.ExchangeParams = make([]orders.ExchangeParams, len(cfg.Backtest.Symbols))
	for i, symbol := range cfg.Backtest.Symbols {
		// viper lower-cases map keys
		ex, ok := cfg.Exchange[strings.ToLower(symbol)]
		if !ok {
			return nil, fmt.Errorf("%w: exchange.%s", ErrMissingKey, symbol)
		}
		if err := ex.Validate(); err != nil {
			return nil, fmt.Errorf("%w: exchange.%s: %w", ErrInvalidValue, symbol, err)
		}
		cfg.ExchangeParams[i] = ex
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := c.Bot.Validate(); err != nil {
		return fmt.Errorf("%w: bot.%w", ErrInvalidValue, err)
	}
	c.Backtest.SetDefaults()
	if err := c.Backtest.Validate(); err != nil {
		return fmt.Errorf("%w: backtest: %w", ErrInvalidValue, err)
	}
	for _, section := range []struct {
		name string
		s    interface{}
	}{
		{"ranking", &c.Ranking},
		{"data", &c.Data},
		{"optimize", &c.Optimize},
	} {
		if err := validate.Struct(section.s); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, section.name, err)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidValue, err)
	}
	return nil
}
