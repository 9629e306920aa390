package main

import (
	"chat-delivery/auth"
	"chat-delivery/domain"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user>",
	Short: "Sign a bearer token for a user with $JWT_SECRET, to try the API by hand",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}
		token, err := auth.NewTokenService(config.JWTSecret).GenerateToken(domain.UserID(args[0]), nil, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
