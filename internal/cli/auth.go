package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/pratik-mahalle/farmlink/internal/auth"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "auth",
		Short:       "Authentication commands",
		Annotations: map[string]string{"offline": "true"},
	}

	cmd.AddCommand(newAuthTokenCmd())
	cmd.AddCommand(newAuthMintCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token [token]",
		Short: "Store the API bearer token",
		Long:  "Store the bearer token issued for your user. Without an argument the token is read from the terminal.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				token = promptSecret(cmd.InOrStdin(), cmd.OutOrStdout(), "Token: ")
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("token must not be empty")
			}

			viper.Set("auth.token", token)
			if _, err := writeConfig(); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token saved")
			return nil
		},
	}
}

// newAuthMintCmd signs a development token with the server's JWT secret
func newAuthMintCmd() *cobra.Command {
	var userID, name, issuer string
	var ttl time.Duration
	var save bool

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign a development token with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET must be set to mint a token")
			}
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if issuer == "" {
				issuer = os.Getenv("JWT_ISSUER")
			}

			token, err := auth.MintToken(userID, name, secret, issuer, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			if save {
				viper.Set("auth.token", token)
				if _, err := writeConfig(); err != nil {
					return fmt.Errorf("failed to save credentials: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&issuer, "issuer", "", "token issuer (default $JWT_ISSUER)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "store the token in the CLI config")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			viper.Set("auth.token", "")
			if _, err := writeConfig(); err != nil {
				return fmt.Errorf("failed to clear credentials: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out successfully")
			return nil
		},
	}
}

// promptSecret reads a line without echo when in is a terminal
func promptSecret(in io.Reader, out io.Writer, prompt string) string {
	fmt.Fprint(out, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return ""
		}
		return string(secret)
	}
	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.TrimSpace(line)
}
