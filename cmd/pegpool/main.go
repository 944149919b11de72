package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "pegpool",
		Short:        "Partially collateralized stable unit pool",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pool over HTTP",
		RunE:  runServe,
	}
	addMarketFlags(serveCmd)
	addSourceFlags(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("request-timeout", 15*time.Second, "per-request timeout")
	serveCmd.Flags().String("jwt-secret", "", "HMAC secret for bearer tokens")
	serveCmd.Flags().String("jwt-issuer", "pegpool", "expected token issuer")
	serveCmd.Flags().String("authority", "", "privileged admin address")
	serveCmd.Flags().String("pool-address", "0x000000000000000000000000000000000000dEaD", "custody address of the pool in the token bank")
	serveCmd.Flags().String("treasury", "", "fee treasury address")
	serveCmd.Flags().String("swap-strategy", "", "swap strategy address")
	serveCmd.Flags().String("events-out", "", "event journal JSONL path")
	serveCmd.Flags().StringSlice("fund", nil, "initial bank balances as address:asset:amount")
	root.AddCommand(serveCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a mint or redemption without changing state",
	}
	quoteMintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Quote a mint",
		RunE:  runQuoteMint,
	}
	quoteMintCmd.Flags().String("collateral", "0", "collateral in, human units")
	quoteMintCmd.Flags().String("seigniorage", "0", "seigniorage in, human units")
	quoteRedeemCmd := &cobra.Command{
		Use:   "redeem",
		Short: "Quote a redemption",
		RunE:  runQuoteRedeem,
	}
	quoteRedeemCmd.Flags().String("stable", "0", "stable in, human units")
	for _, cmd := range []*cobra.Command{quoteMintCmd, quoteRedeemCmd} {
		addMarketFlags(cmd)
		addSourceFlags(cmd)
		quoteCmd.AddCommand(cmd)
	}
	root.AddCommand(quoteCmd)

	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Summarize or print the event journal",
		RunE:  runJournal,
	}
	journalCmd.Flags().String("events-out", "", "event journal JSONL path")
	journalCmd.Flags().String("name", "", "print only events with this name")
	journalCmd.Flags().Int("tail", 0, "print only the last n matching events")
	root.AddCommand(journalCmd)

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for an account",
		RunE:  runToken,
	}
	tokenCmd.Flags().String("jwt-secret", "", "HMAC secret for bearer tokens")
	tokenCmd.Flags().String("jwt-issuer", "pegpool", "token issuer")
	tokenCmd.Flags().String("address", "", "account address (token subject)")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(tokenCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addMarketFlags registers genesis parameters and controller tuning.
func addMarketFlags(cmd *cobra.Command) {
	cmd.Flags().String("collateral-ratio", "1", "genesis collateral ratio")
	cmd.Flags().String("min-collateral-ratio", "0", "genesis collateral ratio floor")
	cmd.Flags().String("minting-fee", "0.003", "genesis minting fee rate")
	cmd.Flags().String("redemption-fee", "0.005", "genesis redemption fee rate")
	cmd.Flags().String("max-stable-supply", "0", "genesis stable supply cap, 0 for none")
	cmd.Flags().String("ratio-step", "0.0025", "collateral ratio refresh step")
	cmd.Flags().Duration("refresh-cooldown", time.Hour, "minimum time between refreshes")
	cmd.Flags().String("price-target", "1", "stable price the refresh steers toward")
	cmd.Flags().String("price-band", "0.005", "dead band around the price target")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// addSourceFlags registers the oracle and state sources.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL for the on-chain oracle")
	cmd.Flags().String("oracle", "", "oracle contract address")
	cmd.Flags().Int("max-retries", 5, "maximum oracle call retries")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial oracle retry backoff")
	cmd.Flags().String("seigniorage-price", "", "static seigniorage price when no rpc is set")
	cmd.Flags().String("stable-price", "1", "static stable price when no rpc is set")
	cmd.Flags().String("state-file", "", "JSON state file")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("pool-name", "default", "pool row name in Postgres")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
