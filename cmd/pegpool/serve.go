package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pegpool/internal/api"
	"pegpool/internal/bank"
	"pegpool/internal/config"
	"pegpool/internal/events"
	"pegpool/internal/fixed"
	"pegpool/internal/metrics"
	"pegpool/internal/pool"
	"pegpool/internal/storage"
)

func runServe(cmd *cobra.Command, _ []string) error {
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

	authority, err := cfg.AuthorityAddress()
	if err != nil {
		return err
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	controller, err := cfg.Market.Controller()
	if err != nil {
		return err
	}
	fundings, err := cfg.Fundings()
	if err != nil {
		return err
	}
	custody, err := cfg.CustodyAddress()
	if err != nil {
		return err
	}
	auth, err := api.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := durableStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	binder, closeBinder, err := priceBinder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBinder()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	poolMetrics := metrics.New(registry)

	sinks := []storage.EventSink{poolMetrics}
	if cfg.EventsOut != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.EventsOut))
	}
	emitter := events.NewFanout(logger, poolMetrics, sinks...)

	ledger, err := bank.Open(ctx, custody, store)
	if err != nil {
		return err
	}
	if ledger.Empty() {
		for _, f := range fundings {
			if err := ledger.Credit(ctx, f.Owner, f.Asset, f.Amount); err != nil {
				return fmt.Errorf("fund %s: %w", f.Owner.Hex(), err)
			}
			logger.Info("bank funded",
				zap.String("owner", f.Owner.Hex()),
				zap.String("asset", string(f.Asset)),
				zap.String("amount", fixed.FormatAmount(f.Amount)),
			)
		}
	} else if len(fundings) > 0 {
		logger.Info("bank restored; fund entries skipped", zap.Int("fund_entries", len(fundings)))
	}

	engine, err := pool.New(ctx, pool.Config{
		Authority:  authority,
		Genesis:    params,
		Controller: controller,
	}, pool.Deps{
		Store:      store,
		Settlement: ledger,
		Binder:     binder,
		Emitter:    emitter,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if err := checkCustody(engine, ledger); err != nil {
		return err
	}

	server, err := api.NewServer(api.Config{
		Engine:   engine,
		Auth:     auth,
		Metrics:  poolMetrics,
		Gatherer: registry,
		Logger:   logger,
		Timeout:  cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	info := engine.Info()
	logger.Info("pegpool start",
		zap.String("listen", cfg.Listen),
		zap.String("authority", authority.Hex()),
		zap.String("custody", custody.Hex()),
		zap.String("collateral_ratio", fixed.FormatRatio(&info.CollateralRatio)),
		zap.Bool("minting_paused", info.MintingPaused),
		zap.Bool("redemption_paused", info.RedemptionPaused),
		zap.String("events_out", cfg.EventsOut),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("pegpool shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
