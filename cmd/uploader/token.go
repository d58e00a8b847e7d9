package main

import (
	"alcyxob/video-uploads/internal/auth"
	"alcyxob/video-uploads/internal/config"
	"alcyxob/video-uploads/internal/domain"
	"errors"
	"time"

	"github.com/spf13/cobra"
)

var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development token with the server's JWT secret",
	Long: `Mint a bearer token the server accepts. The secret and issuer are read
from config.yaml / JWT_SECRET / JWT_ISSUER the same way the server reads them.`,
	Args: cobra.NoArgs,
	RunE: tokenCmdF,
}

func init() {
	TokenCmd.Flags().String("user", "", "user id to issue the token for")
	TokenCmd.Flags().String("role", string(domain.RoleUser), "role claim")
	TokenCmd.Flags().Duration("ttl", 0, "token lifetime; defaults to jwt.expiration")
	TokenCmd.Flags().String("config-dir", ".", "directory holding config.yaml")
	_ = TokenCmd.MarkFlagRequired("user")
}

func tokenCmdF(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("config-dir")
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		return errors.New("jwt secret is not configured")
	}

	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		ttl = cfg.JWT.Expiration
	}
	issuer, err := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, ttl)
	if err != nil {
		return err
	}

	user, _ := cmd.Flags().GetString("user")
	role, _ := cmd.Flags().GetString("role")
	token, expiresAt, err := issuer.Issue(domain.Identity{UserID: user, Role: domain.Role(role)})
	if err != nil {
		return err
	}
	return printJSON(cmd, struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}{token, expiresAt})
}
