package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/jobboard/internal/client"
	"github.com/devilmonastery/jobboard/internal/pkg/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const cliContextKey contextKey = "cliContext"

// CliContext holds shared CLI context
type CliContext struct {
	Config      *Config
	ContextName string
	Context     *Context
	Credentials *FileCredentials
	Client      *client.Client
	Logger      *slog.Logger
}

// Global flags
var (
	logLevel      string
	logFile       string
	logToStderr   bool
	alsoLogStderr bool
	logFormat     string
	contextFlag   string
)

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	var ctx CliContext

	rootCmd := &cobra.Command{
		Use:           "jobboard",
		Short:         "CLI for the job portal",
		Long:          `A command line interface for the job portal API: sign in, read notifications, and follow the live notification stream.`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors (main.go handles it)
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(); err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}

			ctx.Logger = logger.WithCommand(slog.Default().With("component", "cli"), cmd.CommandPath())
			ctx.Logger.Debug("CLI started", "command", cmd.Name())

			// Config commands manage the file themselves
			if isConfigCommand(cmd) {
				cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey, &ctx))
				return nil
			}

			if err := ctx.connect(); err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey, &ctx))
			return nil
		},
	}

	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newNotificationsCommand())
	rootCmd.AddCommand(newWatchCommand())

	rootCmd.PersistentFlags().StringVar(&contextFlag, "context", "",
		"Configuration context to use (defaults to current-context)")

	// Add logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Log file path (if specified, logs to file instead of stderr)")
	rootCmd.PersistentFlags().BoolVar(&logToStderr, "logtostderr", false,
		"Log to stderr (default behavior unless --log-file specified)")
	rootCmd.PersistentFlags().BoolVar(&alsoLogStderr, "alsologtostderr", false,
		"Log to both file and stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log format (text, json)")

	return rootCmd
}

// connect loads the selected context and builds the API client on top of its
// credentials file
func (c *CliContext) connect() error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	name := config.CurrentContext
	if contextFlag != "" {
		name = contextFlag
	}
	cfgCtx, err := config.GetContext(name)
	if err != nil {
		return err
	}
	if err := cfgCtx.Validate(); err != nil {
		return fmt.Errorf("context %q: %w", name, err)
	}

	creds, err := NewFileCredentials(name)
	if err != nil {
		return err
	}

	apiClient, err := newAPIClient(cfgCtx, creds)
	if err != nil {
		return err
	}

	c.Config = config
	c.ContextName = name
	c.Context = cfgCtx
	c.Credentials = creds
	c.Client = apiClient
	c.Logger = logger.WithContextName(c.Logger, name)
	return nil
}

func isConfigCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "config" {
			return true
		}
	}
	return false
}

// setupLogging configures the global logger based on CLI flags
func setupLogging() error {
	// Default to stderr logging unless file is specified
	if logFile == "" {
		logToStderr = true
	}

	cfg := logger.Config{
		Level:         logger.ParseLevel(logLevel),
		LogFile:       logFile,
		LogToStderr:   logToStderr,
		AlsoLogStderr: alsoLogStderr,
		Format:        logFormat,
	}

	globalLogger, err := logger.SetupLogger(cfg)
	if err != nil {
		return err
	}

	slog.SetDefault(globalLogger)
	return nil
}

// getCliContext extracts the CLI context from the command context
func getCliContext(cmd *cobra.Command) *CliContext {
	return cmd.Context().Value(cliContextKey).(*CliContext)
}

// FormatError adds a hint for errors the user can fix by logging in again
func FormatError(err error) string {
	switch {
	case errors.Is(err, client.ErrSessionExpired):
		return fmt.Sprintf("%v\nYour session has expired. Please run 'jobboard auth login'", err)
	case errors.Is(err, client.ErrNotLoggedIn), errors.Is(err, client.ErrUnauthorized):
		return fmt.Sprintf("%v\nPlease run 'jobboard auth login'", err)
	default:
		return err.Error()
	}
}
