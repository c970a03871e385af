package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qiminjie89/linkkit/pkg/auth"
)

var (
	tokenSecret string
	tokenPeer   string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signaling token for a peer id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" || tokenPeer == "" {
			return errors.New("--secret and --peer are required")
		}
		token, err := auth.NewJWTValidator(tokenSecret).GenerateToken(tokenPeer, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HMAC secret shared with signald")
	tokenCmd.Flags().StringVar(&tokenPeer, "peer", "", "peer id the token is issued to")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
