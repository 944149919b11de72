package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pegpool/internal/api"
)

func runToken(cmd *cobra.Command, _ []string) error {
	secret, _ := cmd.Flags().GetString("jwt-secret")
	issuer, _ := cmd.Flags().GetString("jwt-issuer")
	address, _ := cmd.Flags().GetString("address")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	level, _ := cmd.Flags().GetString("log-level")

	logger, err := newLogger(level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return fmt.Errorf("address: invalid address %q", address)
	}
	auth, err := api.NewAuthenticator(secret, issuer)
	if err != nil {
		return err
	}
	caller := common.HexToAddress(address)
	token, err := auth.Issue(caller, ttl)
	if err != nil {
		return err
	}
	logger.Debug("token issued", zap.String("subject", caller.Hex()), zap.Duration("ttl", ttl))
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
