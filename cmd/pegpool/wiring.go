package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pegpool/internal/bank"
	"pegpool/internal/chain"
	"pegpool/internal/config"
	"pegpool/internal/fixed"
	"pegpool/internal/model"
	"pegpool/internal/oracle"
	"pegpool/internal/pool"
	"pegpool/internal/storage"
	"pegpool/internal/storage/postgres"
)

// stateBackend keeps pool state and bank balances side by side, so a restart
// restores custody together with the claims against it.
type stateBackend interface {
	pool.StateStore
	bank.BalanceStore
}

// durableStore picks Postgres over a state file over process memory.
func durableStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (stateBackend, func(), error) {
	switch {
	case cfg.PGDSN != "":
		store, err := postgres.NewStore(ctx, cfg.PGDSN, cfg.PoolName)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		logger.Info("state store", zap.String("kind", "postgres"), zap.String("pool", cfg.PoolName))
		return store, store.Close, nil
	case cfg.StateFile != "":
		logger.Info("state store", zap.String("kind", "file"), zap.String("path", cfg.StateFile))
		return storage.NewFileStore(cfg.StateFile), func() {}, nil
	default:
		logger.Warn("state store is in memory; state is lost on exit")
		return storage.NewMemoryStore(), func() {}, nil
	}
}

// priceBinder reads the oracle on chain when an rpc url is set, otherwise serves static prices.
func priceBinder(ctx context.Context, cfg config.Config, logger *zap.Logger) (oracle.Binder, func(), error) {
	if cfg.RPCURL != "" {
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("oracle source",
			zap.String("kind", "chain"),
			zap.String("chain_id", client.ChainID().String()),
			zap.String("oracle", cfg.Oracle),
		)
		return oracle.ChainBinder{
			Caller: client,
			Config: oracle.ChainConfig{MaxRetries: cfg.MaxRetries, RetryBackoff: cfg.RetryBackoff},
			Logger: logger,
		}, client.Close, nil
	}

	seigniorage, err := fixed.ParseAmount(cfg.SeigniorageSpot)
	if err != nil {
		return nil, nil, fmt.Errorf("seigniorage-price: %w", err)
	}
	stable, err := fixed.ParseAmount(cfg.StablePrice)
	if err != nil {
		return nil, nil, fmt.Errorf("stable-price: %w", err)
	}
	logger.Info("oracle source",
		zap.String("kind", "static"),
		zap.String("seigniorage", fixed.FormatAmount(seigniorage)),
		zap.String("stable", fixed.FormatAmount(stable)),
	)
	return oracle.StaticBinder{Source: oracle.NewStatic(seigniorage, stable)}, func() {}, nil
}

// checkCustody refuses to serve when the bank's custody account does not hold
// exactly the collateral the pool state says it holds.
func checkCustody(engine *pool.Engine, ledger *bank.Bank) error {
	held := engine.PoolState().CollateralHeld
	custodied := ledger.BalanceOf(ledger.PoolAddress(), model.AssetCollateral)
	if !custodied.Eq(&held) {
		return fmt.Errorf("custody %s holds %s collateral but pool state records %s",
			ledger.PoolAddress().Hex(), fixed.FormatAmount(&custodied), fixed.FormatAmount(&held))
	}
	return nil
}
