package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/devilmonastery/jobboard/internal/notifications"
)

// renderMarkdown renders markdown content, using glamour for terminal output or plain text otherwise
func renderMarkdown(w io.Writer, markdown string, theme string) string {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return markdown
	}

	rendered, err := glamour.Render(markdown, theme)
	if err != nil {
		// Fall back to plain markdown if rendering fails
		return markdown
	}
	return rendered
}

// printMarkdown renders and prints markdown using the given theme
func printMarkdown(w io.Writer, markdown, theme string) {
	fmt.Fprint(w, renderMarkdown(w, markdown, theme))
}

// notificationsMarkdown formats a notification list with its resolved links
func notificationsMarkdown(list []notifications.Notification, unread int, webBase string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Notifications (%d unread)\n\n", unread)
	if len(list) == 0 {
		b.WriteString("_No notifications._\n")
		return b.String()
	}
	for i := range list {
		b.WriteString(notificationMarkdown(&list[i], webBase))
	}
	return b.String()
}

func notificationMarkdown(n *notifications.Notification, webBase string) string {
	var b strings.Builder
	marker := "  "
	if !n.IsRead {
		marker = "● "
	}
	title := n.Title
	if title == "" {
		title = n.EventType
	}
	fmt.Fprintf(&b, "## %s%s\n\n", marker, escapeMarkdown(title))
	if n.Message != "" {
		fmt.Fprintf(&b, "%s\n\n", escapeMarkdown(n.Message))
	}

	meta := []string{fmt.Sprintf("id `%s`", n.ID)}
	if !n.CreatedAt.IsZero() {
		meta = append(meta, n.CreatedAt.Local().Format(time.DateTime))
	}
	if link := notificationLink(n, webBase); link != "" {
		meta = append(meta, link)
	}
	fmt.Fprintf(&b, "%s\n\n", strings.Join(meta, " · "))
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "#", `\#`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
