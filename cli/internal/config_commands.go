package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration and contexts",
		Long:  `Manage CLI configuration including API contexts, similar to kubectl contexts.`,
	}

	cmd.AddCommand(newCurrentContextCommand())
	cmd.AddCommand(newUseContextCommand())
	cmd.AddCommand(newListContextsCommand())
	cmd.AddCommand(newSetContextCommand())
	cmd.AddCommand(newDeleteContextCommand())
	cmd.AddCommand(newConfigViewCommand())

	return cmd
}

// current-context command
func newCurrentContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current-context",
		Short: "Display the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), config.CurrentContext)
			return nil
		},
	}
}

// use-context command
func newUseContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use-context CONTEXT_NAME",
		Short: "Switch to a different context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextName := args[0]

			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if err := config.SetCurrentContext(contextName); err != nil {
				return err
			}

			if err := SaveConfig(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q\n", contextName)
			return nil
		},
	}
}

// get-contexts command
func newListContextsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "get-contexts",
		Aliases: []string{"list-contexts"},
		Short:   "List all available contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(config.Contexts) == 0 {
				fmt.Fprintln(out, "No contexts configured")
				return nil
			}

			names := make([]string, 0, len(config.Contexts))
			for name := range config.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "CURRENT\tNAME\tAPI\tWEB\tTHEME")

			for _, name := range names {
				ctx := config.Contexts[name]
				current := " "
				if name == config.CurrentContext {
					current = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					current,
					name,
					ctx.API.BaseURL,
					ctx.Web.BaseURL,
					ctx.Theme(),
				)
			}
			return w.Flush()
		},
	}
}

// set-context command
func newSetContextCommand() *cobra.Command {
	var (
		apiURL     string
		webURL     string
		streamPath string
		timeout    time.Duration
		maxRecent  int
		theme      string
	)

	cmd := &cobra.Command{
		Use:     "set-context CONTEXT_NAME",
		Aliases: []string{"add-context"},
		Short:   "Add or update a context",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextName := args[0]

			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Update in place so unset flags keep existing values
			ctx, ok := config.Contexts[contextName]
			if !ok {
				ctx = &Context{}
			}
			flags := cmd.Flags()
			if flags.Changed("api-url") || !ok {
				ctx.API.BaseURL = apiURL
			}
			if flags.Changed("web-url") {
				ctx.Web.BaseURL = webURL
			}
			if flags.Changed("stream-path") {
				ctx.API.StreamPath = streamPath
			}
			if flags.Changed("timeout") || !ok {
				ctx.API.Timeout = timeout
			}
			if flags.Changed("max-recent") || !ok {
				ctx.Notifications.MaxRecent = maxRecent
			}
			if flags.Changed("theme") || !ok {
				ctx.Rendering.Theme = theme
			}
			if err := ctx.Validate(); err != nil {
				return err
			}

			config.AddContext(contextName, ctx)

			// If this is the first context, make it current
			if len(config.Contexts) == 1 {
				config.CurrentContext = contextName
			}

			if err := SaveConfig(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Context %q added/updated\n", contextName)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "API base URL, e.g. https://api.example.com/api")
	cmd.Flags().StringVar(&webURL, "web-url", "", "Web application base URL used for notification links")
	cmd.Flags().StringVar(&streamPath, "stream-path", "", "Notification stream path (default /notifications/stream)")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "Request timeout")
	cmd.Flags().IntVar(&maxRecent, "max-recent", 20, "Number of recent notifications kept while watching")
	cmd.Flags().StringVar(&theme, "theme", "auto", "Rendering theme")

	return cmd
}

// delete-context command
func newDeleteContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-context CONTEXT_NAME",
		Short: "Delete a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextName := args[0]

			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if err := config.DeleteContext(contextName); err != nil {
				return err
			}

			if err := SaveConfig(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Context %q deleted\n", contextName)
			return nil
		},
	}
}

// view command prints the current context as YAML
func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "view",
		Aliases: []string{"show"},
		Short:   "Show current context configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, err := config.GetCurrentContext()
			if err != nil {
				return fmt.Errorf("failed to get current context: %w", err)
			}

			out := cmd.OutOrStdout()
			configPath, _ := GetConfigPath()
			fmt.Fprintf(out, "# config file: %s\n", configPath)
			fmt.Fprintf(out, "# current context: %s\n", config.CurrentContext)

			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(ctx); err != nil {
				return fmt.Errorf("failed to encode context: %w", err)
			}
			return enc.Close()
		},
	}
}
