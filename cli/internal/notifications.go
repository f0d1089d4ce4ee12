package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/jobboard/internal/notifications"
	"github.com/devilmonastery/jobboard/internal/pkg/urlutil"
)

func newNotificationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif", "n"},
		Short:   "Read and acknowledge notifications",
	}

	cmd.AddCommand(newNotificationsListCommand())
	cmd.AddCommand(newNotificationsUnreadCommand())
	cmd.AddCommand(newNotificationsReadCommand())
	cmd.AddCommand(newNotificationsReadAllCommand())
	cmd.AddCommand(newNotificationsRouteCommand())

	return cmd
}

func newNotificationsListCommand() *cobra.Command {
	var (
		limit      int
		page       int
		unreadOnly bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			svc := notifications.NewService(cc.Client)

			res, err := svc.List(cmd.Context(), notifications.ListOptions{
				Page:       page,
				Limit:      limit,
				UnreadOnly: unreadOnly,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Notifications)
			}

			printMarkdown(out, notificationsMarkdown(res.Notifications, res.UnreadCount, cc.Context.Web.BaseURL), cc.Context.Theme())
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of notifications")
	cmd.Flags().IntVar(&page, "page", 0, "Page number (1-based)")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only unread notifications")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	return cmd
}

func newNotificationsUnreadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Print the unread notification count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			count, err := notifications.NewService(cc.Client).UnreadCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
}

func newNotificationsReadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read ID...",
		Short: "Mark notifications as read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			svc := notifications.NewService(cc.Client)

			for _, id := range args {
				if err := svc.MarkRead(cmd.Context(), notifications.ID(id)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Marked %s as read\n", id)
			}
			return nil
		},
	}
}

func newNotificationsReadAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			if err := notifications.NewService(cc.Client).MarkAllRead(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ All notifications marked as read")
			return nil
		},
	}
}

func newNotificationsRouteCommand() *cobra.Command {
	var markRead bool

	cmd := &cobra.Command{
		Use:   "route ID",
		Short: "Print the web page a notification links to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			svc := notifications.NewService(cc.Client)
			id := notifications.ID(args[0])

			n, err := svc.Find(cmd.Context(), id)
			if err != nil {
				return err
			}

			route, ok := notifications.Resolve(n)
			if !ok {
				return fmt.Errorf("notification %s has no route", id)
			}
			link := route
			if cc.Context.Web.BaseURL != "" {
				if link, err = urlutil.BuildWebURL(cc.Context.Web.BaseURL, route); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)

			if markRead && !n.IsRead {
				if err := svc.MarkRead(cmd.Context(), id); err != nil {
					cc.Logger.Warn("failed to mark notification read", slog.String("id", id.String()), slog.String("error", err.Error()))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&markRead, "mark-read", false, "Also mark the notification as read")
	return cmd
}

// notificationLink returns the absolute web link for n, or the bare route
// when no web base URL is configured
func notificationLink(n *notifications.Notification, webBase string) string {
	route, ok := notifications.Resolve(n)
	if !ok {
		return ""
	}
	if webBase == "" {
		return route
	}
	link, err := urlutil.BuildWebURL(webBase, route)
	if err != nil {
		slog.Debug("cannot build notification link", slog.String("route", route), slog.String("error", err.Error()))
		return route
	}
	return link
}
