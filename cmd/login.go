package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/civicadmin/internal/auth"
	"github.com/joescharf/civicadmin/internal/output"
)

var loginToken string

// loginInput is where `login` reads a token from when --token is not given.
var loginInput io.Reader = os.Stdin

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session token from the identity provider",
	Long: `Store a session token issued by the identity provider in the token
file (auth.token_file, default ~/.config/civicadmin/token, mode 0600).

Without --token the token is read from the first line of stdin, e.g.:

  sso-helper token | civicadmin login`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return loginRun()
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return logoutRun(cmd.Context())
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show which session token will be used",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return whoamiRun(cmd.Context())
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Session token (default: read from stdin)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func loginRun() error {
	token := strings.TrimSpace(loginToken)
	if token == "" {
		line, err := bufio.NewReader(loginInput).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if token == "" {
		return fmt.Errorf("no token given (use --token or pipe it on stdin)")
	}

	path := viper.GetString("auth.token_file")
	if path == "" {
		return fmt.Errorf("auth.token_file is not set")
	}

	if dryRun {
		ui.DryRunMsg("Would store token %s in %s", auth.Mask(token), path)
		return nil
	}

	if err := auth.NewFile(path).Save(token); err != nil {
		return err
	}
	ui.Success("Token stored in %s", path)
	if c, err := auth.ParseClaims(token); err == nil {
		printClaims(c)
	}
	return nil
}

func logoutRun(ctx context.Context) error {
	if dryRun {
		ui.DryRunMsg("Would remove %s", viper.GetString("auth.token_file"))
		return nil
	}
	if err := tokenProvider().SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	ui.Success("Signed out")
	if viper.GetString("auth.token") != "" {
		ui.Warning("auth.token is still set in config or CIVIC_AUTH_TOKEN")
	}
	return nil
}

// namedProvider pairs a provider with how whoami describes it.
type namedProvider struct {
	name     string
	provider auth.Provider
}

func namedProviders() []namedProvider {
	var out []namedProvider
	if t := viper.GetString("auth.token"); t != "" {
		out = append(out, namedProvider{"auth.token", auth.NewStatic(t)})
	}
	if p := viper.GetString("auth.token_file"); p != "" {
		out = append(out, namedProvider{"token file " + p, auth.NewFile(p)})
	}
	if c := viper.GetString("auth.token_command"); c != "" {
		out = append(out, namedProvider{"command " + c, auth.NewCommand(c)})
	}
	return out
}

func whoamiRun(ctx context.Context) error {
	for _, np := range namedProviders() {
		token, err := np.provider.Token(ctx)
		if errors.Is(err, auth.ErrNoToken) {
			ui.VerboseLog("%s: no token", np.name)
			continue
		}
		if err != nil {
			ui.Warning("%s: %v", np.name, err)
			continue
		}

		ui.Info("Using %s", np.name)
		fmt.Fprintf(ui.Out, "  Token:      %s\n", auth.Mask(token))
		if c, err := auth.ParseClaims(token); err == nil {
			printClaims(c)
		}
		return nil
	}
	return auth.ErrNoToken
}

func printClaims(c auth.Claims) {
	if name := c.Name(); name != "" {
		fmt.Fprintf(ui.Out, "  User:       %s\n", name)
	}
	if c.Issuer != "" {
		fmt.Fprintf(ui.Out, "  Issuer:     %s\n", c.Issuer)
	}
	if c.ExpiresAt.IsZero() {
		return
	}
	exp := c.ExpiresAt.Local().Format(time.RFC3339)
	if c.Expired(time.Now()) {
		fmt.Fprintf(ui.Out, "  Expires:    %s %s\n", exp, output.Red("(expired)"))
		return
	}
	fmt.Fprintf(ui.Out, "  Expires:    %s\n", exp)
}
