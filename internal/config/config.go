package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pegpool/internal/fixed"
	"pegpool/internal/model"
	"pegpool/internal/pool"
)

// Config holds the serve command configuration loaded from flags, env, or config file.
type Config struct {
	Listen         string
	RequestTimeout time.Duration
	JWTSecret      string
	JWTIssuer      string

	Authority    string
	PoolAddress  string
	Oracle       string
	Treasury     string
	SwapStrategy string

	RPCURL          string
	MaxRetries      int
	RetryBackoff    time.Duration
	SeigniorageSpot string
	StablePrice     string

	StateFile string
	PGDSN     string
	PoolName  string
	EventsOut string

	Market Market
	Fund   []string

	LogLevel string
}

// Market holds the genesis pool parameters and controller tuning as human decimals.
type Market struct {
	CollateralRatio    string
	MinCollateralRatio string
	MintingFeeRate     string
	RedemptionFeeRate  string
	MaxStableSupply    string
	RatioStep          string
	RefreshCooldown    time.Duration
	PriceTarget        string
	PriceBand          string
}

// Funding is an initial token balance credited to the in-process bank.
type Funding struct {
	Owner  common.Address
	Asset  model.Asset
	Amount *uint256.Int
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Listen:          v.GetString("listen"),
		RequestTimeout:  v.GetDuration("request-timeout"),
		JWTSecret:       v.GetString("jwt-secret"),
		JWTIssuer:       v.GetString("jwt-issuer"),
		Authority:       v.GetString("authority"),
		PoolAddress:     v.GetString("pool-address"),
		Oracle:          v.GetString("oracle"),
		Treasury:        v.GetString("treasury"),
		SwapStrategy:    v.GetString("swap-strategy"),
		RPCURL:          v.GetString("rpc"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		SeigniorageSpot: v.GetString("seigniorage-price"),
		StablePrice:     v.GetString("stable-price"),
		StateFile:       v.GetString("state-file"),
		PGDSN:           v.GetString("pg-dsn"),
		PoolName:        v.GetString("pool-name"),
		EventsOut:       v.GetString("events-out"),
		Market:          loadMarket(v),
		Fund:            getStringSlice(v, "fund"),
		LogLevel:        v.GetString("log-level"),
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("PEGPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("request-timeout", 15*time.Second)
	v.SetDefault("jwt-issuer", "pegpool")
	v.SetDefault("pool-address", "0x000000000000000000000000000000000000dEaD")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("stable-price", "1")
	v.SetDefault("pool-name", "default")
	v.SetDefault("collateral-ratio", "1")
	v.SetDefault("min-collateral-ratio", "0")
	v.SetDefault("minting-fee", "0.003")
	v.SetDefault("redemption-fee", "0.005")
	v.SetDefault("max-stable-supply", "0")
	v.SetDefault("ratio-step", "0.0025")
	v.SetDefault("refresh-cooldown", time.Hour)
	v.SetDefault("price-target", "1")
	v.SetDefault("price-band", "0.005")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func loadMarket(v *viper.Viper) Market {
	return Market{
		CollateralRatio:    v.GetString("collateral-ratio"),
		MinCollateralRatio: v.GetString("min-collateral-ratio"),
		MintingFeeRate:     v.GetString("minting-fee"),
		RedemptionFeeRate:  v.GetString("redemption-fee"),
		MaxStableSupply:    v.GetString("max-stable-supply"),
		RatioStep:          v.GetString("ratio-step"),
		RefreshCooldown:    v.GetDuration("refresh-cooldown"),
		PriceTarget:        v.GetString("price-target"),
		PriceBand:          v.GetString("price-band"),
	}
}

// Params converts the market settings and addresses into engine genesis parameters.
func (c Config) Params() (pool.Params, error) {
	var p pool.Params
	var err error
	if p, err = c.Market.params(); err != nil {
		return pool.Params{}, err
	}
	if p.Oracle, err = optionalAddress("oracle", c.Oracle); err != nil {
		return pool.Params{}, err
	}
	if p.Treasury, err = optionalAddress("treasury", c.Treasury); err != nil {
		return pool.Params{}, err
	}
	if p.SwapStrategy, err = optionalAddress("swap-strategy", c.SwapStrategy); err != nil {
		return pool.Params{}, err
	}
	return p, nil
}

func (m Market) params() (pool.Params, error) {
	var p pool.Params
	for _, field := range []struct {
		name  string
		value string
		dst   *uint256.Int
		parse func(string) (*uint256.Int, error)
	}{
		{"collateral-ratio", m.CollateralRatio, &p.CollateralRatio, fixed.ParseRatio},
		{"min-collateral-ratio", m.MinCollateralRatio, &p.MinCollateralRatio, fixed.ParseRatio},
		{"minting-fee", m.MintingFeeRate, &p.MintingFeeRate, fixed.ParseRatio},
		{"redemption-fee", m.RedemptionFeeRate, &p.RedemptionFeeRate, fixed.ParseRatio},
		{"max-stable-supply", m.MaxStableSupply, &p.MaxStableSupply, fixed.ParseAmount},
	} {
		value, err := field.parse(field.value)
		if err != nil {
			return pool.Params{}, fmt.Errorf("%s: %w", field.name, err)
		}
		field.dst.Set(value)
	}
	return p, nil
}

// Controller converts the refresh tuning into a controller configuration.
func (m Market) Controller() (pool.ControllerConfig, error) {
	cfg := pool.DefaultControllerConfig()
	step, err := fixed.ParseRatio(m.RatioStep)
	if err != nil {
		return cfg, fmt.Errorf("ratio-step: %w", err)
	}
	target, err := fixed.ParseAmount(m.PriceTarget)
	if err != nil {
		return cfg, fmt.Errorf("price-target: %w", err)
	}
	band, err := fixed.ParseAmount(m.PriceBand)
	if err != nil {
		return cfg, fmt.Errorf("price-band: %w", err)
	}
	if target.IsZero() {
		return cfg, fmt.Errorf("price-target must be positive")
	}
	cfg.RatioStep = *step
	cfg.PriceTarget = *target
	cfg.PriceBand = *band
	if m.RefreshCooldown > 0 {
		cfg.RefreshCooldown = m.RefreshCooldown
	}
	return cfg, nil
}

// AuthorityAddress returns the privileged principal.
func (c Config) AuthorityAddress() (common.Address, error) {
	addr, err := optionalAddress("authority", c.Authority)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("authority is required")
	}
	return addr, nil
}

// CustodyAddress is the bank account that holds pool collateral.
func (c Config) CustodyAddress() (common.Address, error) {
	addr, err := optionalAddress("pool-address", c.PoolAddress)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("pool-address is required")
	}
	return addr, nil
}

// Fundings parses entries of the form address:asset:amount.
func (c Config) Fundings() ([]Funding, error) {
	out := make([]Funding, 0, len(c.Fund))
	for _, entry := range c.Fund {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("fund %q: want address:asset:amount", entry)
		}
		owner, err := optionalAddress("fund", parts[0])
		if err != nil {
			return nil, err
		}
		asset := model.Asset(strings.ToLower(strings.TrimSpace(parts[1])))
		switch asset {
		case model.AssetStable, model.AssetCollateral, model.AssetSeigniorage:
		default:
			return nil, fmt.Errorf("fund %q: unknown asset %q", entry, parts[1])
		}
		amount, err := fixed.ParseAmount(parts[2])
		if err != nil {
			return nil, fmt.Errorf("fund %q: %w", entry, err)
		}
		out = append(out, Funding{Owner: owner, Asset: asset, Amount: amount})
	}
	return out, nil
}

func optionalAddress(name, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", name, value)
	}
	return common.HexToAddress(value), nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
