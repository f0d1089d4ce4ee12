// Package notifications holds the client-side notification model: the inbox
// fed by the push stream, the REST service, and route resolution.
package notifications

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is a notification identifier. The portal has served both numeric and
// string ids, so both decode into the same textual form.
type ID string

// UnmarshalJSON accepts a JSON string or number
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("notification id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string {
	return string(id)
}

// timestampLayouts are tried in order. Zone-less layouts are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Timestamp is a creation time as served by the portal. Values that match no
// known layout decode to the zero time rather than failing the record.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts RFC 3339 and zone-less date-times
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil
}

// Metadata is free-form event data. Numbers keep their exact digits.
type Metadata map[string]any

// UnmarshalJSON decodes numbers as json.Number
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// Notification is one record as served by the portal
type Notification struct {
	ID          ID        `json:"id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	CreatedAt   Timestamp `json:"createdAt"`
	IsRead      bool      `json:"isRead"`
	EventType   string    `json:"eventType"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
}

// MetadataString returns the first non-empty metadata value among keys,
// formatting numbers without a fraction. Decoded metadata holds json.Number;
// float64 values set in code are exact only up to 2^53.
func (n *Notification) MetadataString(keys ...string) string {
	if n == nil || n.Metadata == nil {
		return ""
	}
	for _, key := range keys {
		switch v := n.Metadata[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		}
	}
	return ""
}

// UnreadCount is the payload of an unread-count frame and endpoint
type UnreadCount struct {
	Count int `json:"count"`
}

// ErrNotFound is returned when a notification id is unknown
var ErrNotFound = errors.New("notification not found")
