package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tacklebox-studio/tacklebox/internal/auth"
)

var (
	tokenID    string
	tokenRole  string
	tokenLevel int
	tokenTTL   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Bearer token commands",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed bearer token for the HTTP API",
	Long: `Issue an HS256 bearer token for a user, signed with auth.jwt_secret.

The token carries the user's ID, role and stored level. Use it with
"tbx serve" in an Authorization: Bearer header.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil || Config.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is not configured")
		}

		ttlStr := tokenTTL
		if ttlStr == "" {
			ttlStr = Config.Auth.TokenTTL
		}
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil {
			return fmt.Errorf("invalid --ttl %q: %w", ttlStr, err)
		}
		if ttl <= 0 {
			return fmt.Errorf("--ttl must be positive, got %s", ttl)
		}

		user, err := userFromFlags(tokenID, tokenRole, tokenLevel)
		if err != nil {
			return err
		}

		token, err := auth.IssueToken([]byte(Config.Auth.JWTSecret), user, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenID, "id", "", "User ID (token subject)")
	tokenIssueCmd.Flags().StringVar(&tokenRole, "role", "", "Role of the user (client, contractor, admin)")
	tokenIssueCmd.Flags().IntVar(&tokenLevel, "level", 0, "Stored level of the user")
	tokenIssueCmd.Flags().StringVar(&tokenTTL, "ttl", "", "Token lifetime (defaults to auth.token_ttl)")
	_ = tokenIssueCmd.MarkFlagRequired("id")
	_ = tokenIssueCmd.MarkFlagRequired("role")

	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}
