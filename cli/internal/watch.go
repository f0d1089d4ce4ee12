package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/devilmonastery/jobboard/internal/client"
	"github.com/devilmonastery/jobboard/internal/notifications"
	"github.com/devilmonastery/jobboard/internal/pkg/metrics"
	"github.com/devilmonastery/jobboard/internal/stream"
)

type watchOptions struct {
	once        bool
	skipSync    bool
	baseBackoff time.Duration
	maxBackoff  time.Duration
	metricsAddr string
}

func newWatchCommand() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live notification stream",
		Long: `Fetch recent notifications, then follow the server-push stream and print
updates as they arrive. The stream is reopened with capped exponential backoff
when it drops; an expired access token is refreshed before reconnecting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if opts.metricsAddr != "" {
				shutdown := serveMetrics(opts.metricsAddr, cc.Logger)
				defer shutdown()
			}

			w := newWatcher(cc.Client, cc.Client.URL(cc.Context.StreamPath()), cc.Context.MaxRecent(), opts)
			w.printer = newUpdatePrinter(cmd.OutOrStdout(), cc.Context.Web.BaseURL)
			return w.run(ctx)
		},
	}

	cmd.Flags().BoolVar(&opts.once, "once", false, "Exit when the stream ends instead of reconnecting")
	cmd.Flags().BoolVar(&opts.skipSync, "no-sync", false, "Skip the initial notification fetch")
	cmd.Flags().DurationVar(&opts.baseBackoff, "backoff", time.Second, "Initial reconnect delay")
	cmd.Flags().DurationVar(&opts.maxBackoff, "max-backoff", 30*time.Second, "Maximum reconnect delay")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

// watcher owns the reconnect loop around a notification stream. The stream
// itself never reconnects.
type watcher struct {
	client     *client.Client
	streamURL  string
	inbox      *notifications.Inbox
	svc        *notifications.Service
	httpClient *http.Client
	opts       watchOptions
	printer    *updatePrinter
	log        *slog.Logger
}

func newWatcher(c *client.Client, streamURL string, maxRecent int, opts watchOptions) *watcher {
	if opts.baseBackoff <= 0 {
		opts.baseBackoff = time.Second
	}
	if opts.maxBackoff < opts.baseBackoff {
		opts.maxBackoff = opts.baseBackoff
	}
	return &watcher{
		client:    c,
		streamURL: streamURL,
		inbox:     notifications.NewInbox(maxRecent),
		svc:       notifications.NewService(c),
		// No timeout: it would cut the stream off
		httpClient: &http.Client{Transport: metrics.NewTransport(nil)},
		opts:       opts,
		log:        slog.Default().With(slog.String("component", "watcher")),
	}
}

func (w *watcher) run(ctx context.Context) error {
	if w.printer != nil {
		defer w.inbox.OnChange(w.printer.update)()
	}

	if !w.opts.skipSync {
		if err := w.svc.Sync(ctx, w.inbox); err != nil {
			if errors.Is(err, client.ErrUnauthorized) || errors.Is(err, client.ErrNotLoggedIn) {
				return err
			}
			w.log.Warn("initial notification fetch failed", slog.String("error", err.Error()))
		}
	}

	attempt := 0
	refreshed := false
	for {
		tok, err := w.client.Session().Store().Token()
		if err != nil {
			return err
		}

		s, err := stream.Open(ctx, w.streamURL, tok.AccessToken,
			stream.WithHTTPClient(w.httpClient),
			stream.WithHandler(w.inbox.HandleEvent))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, client.ErrUnauthorized) {
				metrics.StreamReconnects.WithLabelValues("unauthorized").Inc()
				// A second rejection right after a refresh is final
				if refreshed {
					return fmt.Errorf("notification stream: %w", err)
				}
				if err := w.refresh(ctx, tok.AccessToken); err != nil {
					return err
				}
				refreshed = true
				continue
			}

			attempt++
			delay := backoffDelay(attempt, w.opts.baseBackoff, w.opts.maxBackoff)
			metrics.StreamReconnects.WithLabelValues("connect_error").Inc()
			w.log.Warn("cannot open notification stream, retrying",
				slog.String("error", err.Error()),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			if w.opts.once {
				return err
			}
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}

		attempt = 0
		refreshed = false

		select {
		case <-s.Done():
		case <-ctx.Done():
			s.Close()
			<-s.Done()
			w.inbox.SetLive(false)
			return nil
		}

		w.inbox.SetLive(false)
		reason := "eof"
		if s.Err() != nil {
			reason = "read_error"
		}
		if w.opts.once {
			return s.Err()
		}

		metrics.StreamReconnects.WithLabelValues(reason).Inc()
		delay := backoffDelay(1, w.opts.baseBackoff, w.opts.maxBackoff)
		w.log.Info("notification stream ended, reconnecting",
			slog.String("reason", reason),
			slog.Duration("delay", delay))
		if !sleepCtx(ctx, delay) {
			return nil
		}
	}
}

// refresh obtains a new access token after the stream rejected stale. A failed
// refresh ends the session, as it does for API requests.
func (w *watcher) refresh(ctx context.Context, stale string) error {
	if _, err := w.client.Refresher().ObtainFreshToken(ctx, stale); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if logoutErr := w.client.Session().Logout(client.ReasonRefreshFailed); logoutErr != nil {
			w.log.Warn("failed to clear session", slog.String("error", logoutErr.Error()))
		}
		return &client.SessionExpiredError{Method: http.MethodGet, Path: w.streamURL, Cause: err}
	}
	return nil
}

// backoffDelay returns base*2^(attempt-1) capped at max, with 0.5x..1.5x jitter
func backoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	// jitter 0.5x..1.5x
	d *= 0.5 + rand.Float64()
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// serveMetrics exposes the Prometheus registry until the returned func is called
func serveMetrics(addr string, logger *slog.Logger) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Starting metrics server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// updatePrinter writes inbox changes as they happen
type updatePrinter struct {
	out     io.Writer
	webBase string

	mu     sync.Mutex
	seen   map[notifications.ID]bool
	unread int
	live   bool
	primed bool
}

func newUpdatePrinter(out io.Writer, webBase string) *updatePrinter {
	return &updatePrinter{out: out, webBase: webBase, seen: make(map[notifications.ID]bool), unread: -1}
}

func (p *updatePrinter) update(s notifications.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Live != p.live {
		p.live = s.Live
		if s.Live {
			fmt.Fprintln(p.out, "● connected")
		} else {
			fmt.Fprintln(p.out, "○ disconnected")
		}
	}

	// Print oldest first so the terminal reads top to bottom
	for i := len(s.Recent) - 1; i >= 0; i-- {
		n := &s.Recent[i]
		if n.ID != "" && p.seen[n.ID] {
			continue
		}
		if n.ID != "" {
			p.seen[n.ID] = true
		}
		if !p.primed && n.IsRead {
			continue
		}
		title := n.Title
		if title == "" {
			title = n.EventType
		}
		line := fmt.Sprintf("[%s] %s", n.ID, title)
		if n.Message != "" {
			line += ": " + n.Message
		}
		if link := notificationLink(n, p.webBase); link != "" {
			line += " → " + link
		}
		fmt.Fprintln(p.out, line)
	}
	p.primed = true

	if s.Unread != p.unread {
		p.unread = s.Unread
		fmt.Fprintf(p.out, "unread: %d\n", s.Unread)
	}
}
