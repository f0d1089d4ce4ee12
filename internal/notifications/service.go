package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// Doer performs a JSON API call. *client.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, method, path string, in, out any) error
}

const defaultBasePath = "/notifications"

// Service wraps the notification REST endpoints
type Service struct {
	api      Doer
	basePath string
	log      *slog.Logger
}

// NewService creates a service calling the endpoints under /notifications
func NewService(api Doer) *Service {
	return &Service{
		api:      api,
		basePath: defaultBasePath,
		log:      slog.Default().With(slog.String("component", "notification_service")),
	}
}

// ListOptions filters a list request
type ListOptions struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

// ListResult is one page of notifications, newest first
type ListResult struct {
	Notifications []Notification
	UnreadCount   int
	Total         int
}

// List fetches notifications
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.UnreadOnly {
		q.Set("unread", "true")
	}
	path := s.basePath
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var raw json.RawMessage
	if err := s.api.Do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	res, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return res, nil
}

// decodeList accepts a bare array or a {"data": [...], "unreadCount", "total"} envelope
func decodeList(raw json.RawMessage) (*ListResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return &ListResult{}, nil
	}
	if raw[0] == '[' {
		var list []Notification
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return &ListResult{Notifications: list, UnreadCount: countUnread(list), Total: len(list)}, nil
	}

	var env struct {
		Data          []Notification `json:"data"`
		Notifications []Notification `json:"notifications"`
		UnreadCount   *int           `json:"unreadCount"`
		Total         int            `json:"total"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	list := env.Data
	if list == nil {
		list = env.Notifications
	}
	res := &ListResult{Notifications: list, Total: env.Total}
	if env.UnreadCount != nil {
		res.UnreadCount = *env.UnreadCount
	} else {
		res.UnreadCount = countUnread(list)
	}
	if res.Total == 0 {
		res.Total = len(list)
	}
	return res, nil
}

func countUnread(list []Notification) int {
	n := 0
	for _, item := range list {
		if !item.IsRead {
			n++
		}
	}
	return n
}

// UnreadCount fetches the server's unread counter
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := s.api.Do(ctx, http.MethodGet, s.basePath+"/unread-count", nil, &raw); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	var body struct {
		Count *int         `json:"count"`
		Data  *UnreadCount `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	switch {
	case body.Count != nil:
		return *body.Count, nil
	case body.Data != nil:
		return body.Data.Count, nil
	default:
		return 0, fmt.Errorf("unread count: response carried no count")
	}
}

// MarkRead acknowledges one notification
func (s *Service) MarkRead(ctx context.Context, id ID) error {
	if id == "" {
		return fmt.Errorf("mark read: empty notification id")
	}
	path := fmt.Sprintf("%s/%s/read", s.basePath, url.PathEscape(id.String()))
	if err := s.api.Do(ctx, http.MethodPatch, path, nil, nil); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead acknowledges every notification
func (s *Service) MarkAllRead(ctx context.Context) error {
	if err := s.api.Do(ctx, http.MethodPatch, s.basePath+"/read-all", nil, nil); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// Find looks a notification up by id in the first page of the list
func (s *Service) Find(ctx context.Context, id ID) (*Notification, error) {
	res, err := s.List(ctx, ListOptions{Limit: 100})
	if err != nil {
		return nil, err
	}
	for i := range res.Notifications {
		if res.Notifications[i].ID == id {
			return &res.Notifications[i], nil
		}
	}
	return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
}

// Sync seeds inbox from the REST list
func (s *Service) Sync(ctx context.Context, inbox *Inbox) error {
	res, err := s.List(ctx, ListOptions{Limit: inbox.max})
	if err != nil {
		return err
	}
	inbox.Seed(res.Notifications, res.UnreadCount)
	s.log.Debug("inbox seeded",
		slog.Int("notifications", len(res.Notifications)),
		slog.Int("unread", res.UnreadCount))
	return nil
}

// Acknowledge marks id read on the server, then in inbox
func (s *Service) Acknowledge(ctx context.Context, inbox *Inbox, id ID) error {
	if err := s.MarkRead(ctx, id); err != nil {
		return err
	}
	inbox.MarkRead(id)
	return nil
}

// AcknowledgeAll marks everything read on the server, then in inbox
func (s *Service) AcknowledgeAll(ctx context.Context, inbox *Inbox) error {
	if err := s.MarkAllRead(ctx); err != nil {
		return err
	}
	inbox.MarkAllRead()
	return nil
}
