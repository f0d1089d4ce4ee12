package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/devilmonastery/jobboard/internal/client"
)

// formatDuration formats a duration in a human-friendly way (e.g., "2 days, 3 hours and 45 minutes")
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 && seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Manage authentication for the jobboard CLI`,
	}

	cmd.AddCommand(newAuthLoginCommand())
	cmd.AddCommand(newAuthLogoutCommand())
	cmd.AddCommand(newAuthStatusCommand())
	cmd.AddCommand(newAuthTokenCommand())

	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	var (
		email         string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to the job portal",
		Long: `Authenticate with email and password. The token pair is stored per context
and refreshed automatically when the access token expires.

Examples:
  # Prompt for email and password
  jobboard auth login

  # Non-interactive
  echo "$PASSWORD" | jobboard auth login --email me@example.com --password-stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			logger := cc.Logger.With("command", "login")

			password, err := readPassword(cmd, &email, passwordStdin)
			if err != nil {
				return err
			}

			logger.Info("Starting login", "email", email)
			if err := cc.Client.Login(cmd.Context(), email, password); err != nil {
				if errors.Is(err, client.ErrUnauthorized) {
					return fmt.Errorf("authentication failed: invalid email or password")
				}
				return fmt.Errorf("authentication failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Successfully logged in as %s (context %s)\n", email, cc.ContextName)
			if tok, err := cc.Credentials.Token(); err == nil && !tok.Expiry.IsZero() {
				fmt.Fprintf(out, "  Token expires: %s\n", tok.Expiry.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}

// readPassword prompts for missing credentials. Prompts go to stderr so
// stdout stays pipeable.
func readPassword(cmd *cobra.Command, email *string, fromStdin bool) (string, error) {
	in := cmd.InOrStdin()
	reader := bufio.NewReader(in)

	if *email == "" {
		if fromStdin {
			return "", fmt.Errorf("--email is required with --password-stdin")
		}
		fmt.Fprint(cmd.ErrOrStderr(), "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read email: %w", err)
		}
		*email = strings.TrimSpace(line)
		if *email == "" {
			return "", fmt.Errorf("email is required")
		}
	}

	if fromStdin {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("no terminal for password prompt; use --password-stdin")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	passwordBytes, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(passwordBytes), nil
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout from the job portal",
		Long:  `Revoke the refresh token on the server (best effort) and remove stored credentials`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)

			if !cc.Client.Session().Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			if err := cc.Client.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "✓ Successfully logged out")
			return nil
		},
	}
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			out := cmd.OutOrStdout()

			creds, err := cc.Credentials.Load()
			if err != nil {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}

			fmt.Fprintf(out, "Context: %s\n", cc.ContextName)
			if claims, err := client.ParseClaims(creds.AccessToken); err == nil {
				if claims.Email != "" {
					fmt.Fprintf(out, "Logged in as: %s\n", claims.Email)
				}
				if claims.UserID != "" {
					fmt.Fprintf(out, "User ID: %s\n", claims.UserID)
				}
				if claims.Role != "" {
					fmt.Fprintf(out, "Role: %s\n", claims.Role)
				}
			}

			if creds.RefreshToken == "" {
				fmt.Fprintln(out, "⚠  No refresh token stored - you will need to log in again when the token expires")
			}

			if creds.ExpiresAt.IsZero() {
				fmt.Fprintln(out, "Token expiry: unknown")
				return nil
			}

			localExpiry := creds.ExpiresAt.Local()
			fmt.Fprintf(out, "Token expires: %s\n", localExpiry.Format("2006-01-02 15:04:05 MST"))

			now := time.Now()
			if creds.IsExpired() {
				fmt.Fprintf(out, "⚠  Token expired %s ago - automatic refresh will be attempted on next request\n",
					formatDuration(now.Sub(creds.ExpiresAt)))
			} else {
				fmt.Fprintf(out, "✓  Valid for %s\n", formatDuration(creds.ExpiresAt.Sub(now)))
			}

			return nil
		},
	}
}

func newAuthTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Display the current access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			tok, err := cc.Credentials.Token()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			return nil
		},
	}
}
