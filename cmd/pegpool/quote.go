package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pegpool/internal/bank"
	"pegpool/internal/config"
	"pegpool/internal/fixed"
	"pegpool/internal/pool"
	"pegpool/internal/storage"
)

var quoteAuthority = common.HexToAddress("0x0000000000000000000000000000000000000001")

type mintQuoteOutput struct {
	CollateralRatio       string `json:"collateral_ratio"`
	StableOut             string `json:"stable_out"`
	RequiredCollateralIn  string `json:"required_collateral_in"`
	RequiredSeigniorageIn string `json:"required_seigniorage_in"`
	Fee                   string `json:"fee"`
}

type redeemQuoteOutput struct {
	CollateralRatio string `json:"collateral_ratio"`
	CollateralOut   string `json:"collateral_out"`
	SeigniorageOut  string `json:"seigniorage_out"`
	Fee             string `json:"fee"`
}

func runQuoteMint(cmd *cobra.Command, _ []string) error {
	collateral, err := amountFlag(cmd, "collateral")
	if err != nil {
		return err
	}
	seigniorage, err := amountFlag(cmd, "seigniorage")
	if err != nil {
		return err
	}
	return withQuoteEngine(cmd, func(ctx context.Context, engine *pool.Engine) (interface{}, error) {
		quote, err := engine.CalcMint(ctx, collateral, seigniorage)
		if err != nil {
			return nil, err
		}
		info := engine.Info()
		return mintQuoteOutput{
			CollateralRatio:       fixed.FormatRatio(&info.CollateralRatio),
			StableOut:             fixed.FormatAmount(&quote.StableOut),
			RequiredCollateralIn:  fixed.FormatAmount(&quote.RequiredCollateralIn),
			RequiredSeigniorageIn: fixed.FormatAmount(&quote.RequiredSeigniorageIn),
			Fee:                   fixed.FormatAmount(&quote.Fee),
		}, nil
	})
}

func runQuoteRedeem(cmd *cobra.Command, _ []string) error {
	stable, err := amountFlag(cmd, "stable")
	if err != nil {
		return err
	}
	return withQuoteEngine(cmd, func(ctx context.Context, engine *pool.Engine) (interface{}, error) {
		quote, err := engine.CalcRedeem(ctx, stable)
		if err != nil {
			return nil, err
		}
		info := engine.Info()
		return redeemQuoteOutput{
			CollateralRatio: fixed.FormatRatio(&info.CollateralRatio),
			CollateralOut:   fixed.FormatAmount(&quote.CollateralOut),
			SeigniorageOut:  fixed.FormatAmount(&quote.SeigniorageOut),
			Fee:             fixed.FormatAmount(&quote.Fee),
		}, nil
	})
}

// withQuoteEngine runs fn against a throwaway engine. Persisted state, when
// configured, is read once and never written back.
func withQuoteEngine(cmd *cobra.Command, fn func(ctx context.Context, engine *pool.Engine) (interface{}, error)) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	params, err := cfg.Params()
	if err != nil {
		return err
	}
	controller, err := cfg.Market.Controller()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	scratch := storage.NewMemoryStore()
	if cfg.PGDSN != "" || cfg.StateFile != "" {
		durable, closeStore, err := durableStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		snap, ok, err := durable.Load(ctx)
		closeStore()
		if err != nil {
			return err
		}
		if ok {
			scratch = storage.NewMemoryStoreFrom(snap)
		}
	}

	binder, closeBinder, err := priceBinder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBinder()

	// quoting never settles, so any non-zero authority will do
	engine, err := pool.New(ctx, pool.Config{
		Authority:  quoteAuthority,
		Genesis:    params,
		Controller: controller,
	}, pool.Deps{
		Store:      scratch,
		Settlement: bank.New(quoteAuthority),
		Binder:     binder,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	out, err := fn(ctx, engine)
	if err != nil {
		logger.Debug("quote failed", zap.String("kind", string(pool.KindOf(err))), zap.Error(err))
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func amountFlag(cmd *cobra.Command, name string) (*uint256.Int, error) {
	raw, _ := cmd.Flags().GetString(name)
	value, err := fixed.ParseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return value, nil
}
