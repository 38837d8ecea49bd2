package main

import (
	"errors"
	"fmt"

	"hotel-rag-go/internal/config"
	"hotel-rag-go/pkg/token"

	"github.com/spf13/cobra"
)

func tokenCMD(cfgPath *string) *cobra.Command {
	var userID, username string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return errors.New("auth.secret 未配置")
			}
			tok, err := token.NewJWTManager(cfg.Auth.Secret, cfg.Auth.AccessTokenExpireHours).GenerateToken(userID, username)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id stored in the token")
	cmd.Flags().StringVar(&username, "name", "", "display name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
