package notifications

import (
	"encoding/json"
	"html"
	"log/slog"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/devilmonastery/jobboard/internal/pkg/metrics"
	"github.com/devilmonastery/jobboard/internal/stream"
)

// Stream event names
const (
	EventConnected    = "connected"
	EventUnreadCount  = "unread-count"
	EventNotification = "notification"
)

// DefaultMaxRecent bounds the recent list when no maximum is configured
const DefaultMaxRecent = 20

// Snapshot is a consistent copy of the inbox state
type Snapshot struct {
	Unread int
	Recent []Notification
	Live   bool
}

// Inbox holds the unread counter and the bounded, newest-first list of
// recent notifications. Server-pushed counts always replace the local one.
type Inbox struct {
	max    int
	policy *bluemonday.Policy
	log    *slog.Logger

	mu        sync.Mutex
	unread    int
	recent    []Notification
	live      bool
	listeners map[int]func(Snapshot)
	nextID    int
}

// NewInbox creates an inbox keeping at most maxRecent notifications
func NewInbox(maxRecent int) *Inbox {
	if maxRecent <= 0 {
		maxRecent = DefaultMaxRecent
	}
	return &Inbox{
		max:       maxRecent,
		policy:    bluemonday.StrictPolicy(),
		log:       slog.Default().With(slog.String("component", "inbox")),
		listeners: make(map[int]func(Snapshot)),
	}
}

// HandleEvent applies one stream frame. It has the stream.Handler signature.
// Malformed payloads are dropped and logged; later frames are unaffected.
func (in *Inbox) HandleEvent(f stream.Frame) {
	switch f.Event {
	case EventConnected:
		in.SetLive(true)
		metrics.RecordFrame(f.Event, "applied")

	case EventUnreadCount:
		var payload struct {
			Count *int `json:"count"`
		}
		if err := json.Unmarshal([]byte(f.Data), &payload); err != nil || payload.Count == nil || *payload.Count < 0 {
			in.dropMalformed(f, err)
			return
		}
		in.update(func() { in.unread = *payload.Count })
		metrics.RecordFrame(f.Event, "applied")

	case EventNotification:
		var n Notification
		if err := json.Unmarshal([]byte(f.Data), &n); err != nil {
			in.dropMalformed(f, err)
			return
		}
		in.Push(n)
		metrics.RecordFrame(f.Event, "applied")

	default:
		in.log.Debug("ignoring unknown stream event", slog.String("event", f.Event))
		metrics.RecordFrame(f.Event, "ignored")
	}
}

// Push prepends n, replacing an older entry with the same id, and evicts the
// oldest entries beyond the maximum.
func (in *Inbox) Push(n Notification) {
	n = in.sanitize(n)
	in.update(func() {
		if n.ID != "" {
			for i := range in.recent {
				if in.recent[i].ID == n.ID {
					in.recent = append(in.recent[:i], in.recent[i+1:]...)
					break
				}
			}
		}
		in.recent = append([]Notification{n}, in.recent...)
		if over := len(in.recent) - in.max; over > 0 {
			in.recent = in.recent[:in.max]
			metrics.NotificationEvictions.Add(float64(over))
		}
	})
}

// Seed replaces the inbox with the result of an initial fetch. list is
// expected newest first.
func (in *Inbox) Seed(list []Notification, unread int) {
	seeded := make([]Notification, 0, min(len(list), in.max))
	for _, n := range list {
		if len(seeded) == in.max {
			break
		}
		seeded = append(seeded, in.sanitize(n))
	}
	in.update(func() {
		in.recent = seeded
		in.unread = max(unread, 0)
	})
}

// MarkRead records a read acknowledgement. The counter is decremented unless
// the notification is known to be read already, and never drops below zero.
func (in *Inbox) MarkRead(id ID) {
	in.update(func() {
		alreadyRead := false
		for i := range in.recent {
			if in.recent[i].ID == id {
				alreadyRead = in.recent[i].IsRead
				in.recent[i].IsRead = true
				break
			}
		}
		if !alreadyRead && in.unread > 0 {
			in.unread--
		}
	})
}

// MarkAllRead marks every held notification read and zeroes the counter
func (in *Inbox) MarkAllRead() {
	in.update(func() {
		for i := range in.recent {
			in.recent[i].IsRead = true
		}
		in.unread = 0
	})
}

// SetLive records whether the push channel is connected
func (in *Inbox) SetLive(live bool) {
	in.update(func() { in.live = live })
}

// Live reports whether the push channel is connected
func (in *Inbox) Live() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.live
}

// UnreadCount returns the current unread counter
func (in *Inbox) UnreadCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.unread
}

// Recent returns a copy of the recent list, newest first
func (in *Inbox) Recent() []Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	return copyList(in.recent)
}

// Find returns a held notification by id
func (in *Inbox) Find(id ID) (Notification, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, n := range in.recent {
		if n.ID == id {
			return n, true
		}
	}
	return Notification{}, false
}

// Snapshot returns a consistent copy of the whole state
func (in *Inbox) Snapshot() Snapshot {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.snapshotLocked()
}

// OnChange registers a listener called after every state change, outside the
// inbox lock, and returns its cancel func.
func (in *Inbox) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	in.mu.Lock()
	id := in.nextID
	in.nextID++
	in.listeners[id] = fn
	in.mu.Unlock()

	return func() {
		in.mu.Lock()
		delete(in.listeners, id)
		in.mu.Unlock()
	}
}

func (in *Inbox) update(mutate func()) {
	in.mu.Lock()
	mutate()
	snap := in.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(in.listeners))
	for id := 0; id < in.nextID; id++ {
		if fn, ok := in.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	in.mu.Unlock()

	metrics.UnreadNotifications.Set(float64(snap.Unread))
	metrics.RecentNotifications.Set(float64(len(snap.Recent)))
	for _, fn := range listeners {
		fn(snap)
	}
}

func (in *Inbox) snapshotLocked() Snapshot {
	return Snapshot{Unread: in.unread, Recent: copyList(in.recent), Live: in.live}
}

func (in *Inbox) dropMalformed(f stream.Frame, err error) {
	attrs := []any{slog.String("event", f.Event), slog.Int("bytes", len(f.Data))}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	in.log.Warn("dropping malformed stream frame", attrs...)
	metrics.RecordFrame(f.Event, "malformed")
}

// sanitize strips markup from text fields; pushed content is rendered in a terminal
func (in *Inbox) sanitize(n Notification) Notification {
	n.Title = cleanText(in.policy, n.Title)
	n.Message = cleanText(in.policy, n.Message)
	return n
}

func cleanText(p *bluemonday.Policy, s string) string {
	if !strings.ContainsAny(s, "<>&") {
		return s
	}
	return strings.TrimSpace(html.UnescapeString(p.Sanitize(s)))
}

func copyList(list []Notification) []Notification {
	if list == nil {
		return []Notification{}
	}
	out := make([]Notification, len(list))
	copy(out, list)
	return out
}
