// Package attribution records the marketing parameters a visitor arrived with
// and exposes them as an explicit value carried on the request context.
package attribution

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/solarleadcapture/internal/models"
)

// Keys are the tracked query parameters, in payload order.
var Keys = []string{
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_term",
	"utm_content",
	"utm_id",
	"gclid",
	"fbclid",
	"ref",
}

const (
	FirstTouchKey = "utm_first_touch"
	LastTouchKey  = "utm_last_touch"

	// Retention is how long captured parameters survive in the visitor's browser.
	Retention = 30 * 24 * time.Hour
)

// Snapshot is one capture of the tracked parameters.
type Snapshot = models.TouchSnapshot

// Store is the durable key/value space attribution lives in, typically the
// visitor's cookies.
type Store interface {
	Get(name string) (string, bool)
	Set(name, value string, maxAge time.Duration) error
}

// Attribution is the read-only view of what was captured for a visitor.
type Attribution struct {
	Fields     map[string]string
	FirstTouch *Snapshot
	LastTouch  *Snapshot
}

// Empty reports whether nothing was ever captured.
func (a Attribution) Empty() bool {
	return len(a.Fields) == 0 && a.FirstTouch == nil && a.LastTouch == nil
}

// Tracker captures and reads attribution through a Store.
type Tracker struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker returns a Tracker logging to logger.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger, now: time.Now}
}

// Extract returns the tracked parameters present in query.
func Extract(query url.Values) map[string]string {
	params := make(map[string]string)
	for _, k := range Keys {
		if v := strings.TrimSpace(query.Get(k)); v != "" {
			params[k] = v
		}
	}
	return params
}

// Capture records the tracked parameters of query. It does nothing when none
// are present. The first-touch snapshot is written once and never replaced;
// the last-touch snapshot is replaced on every capture. Store failures are
// logged and otherwise ignored.
func (t *Tracker) Capture(query url.Values, store Store) {
	params := Extract(query)
	if len(params) == 0 {
		return
	}

	for k, v := range params {
		t.set(store, k, v)
	}

	snap := Snapshot{Params: params, Timestamp: strconv.FormatInt(t.now().UnixMilli(), 10)}
	encoded, err := json.Marshal(snap)
	if err != nil {
		t.logger.Warn("Failed to encode attribution snapshot.", "error", err)
		return
	}
	if existing, ok := store.Get(FirstTouchKey); !ok || existing == "" {
		t.set(store, FirstTouchKey, string(encoded))
	}
	t.set(store, LastTouchKey, string(encoded))
}

func (t *Tracker) set(store Store, name, value string) {
	if err := store.Set(name, value, Retention); err != nil {
		t.logger.Warn("Failed to store attribution value.", "key", name, "error", err)
	}
}

// Current reads back what has been captured. It never fails; unreadable
// snapshots are treated as absent.
func (t *Tracker) Current(store Store) Attribution {
	a := Attribution{Fields: make(map[string]string)}
	for _, k := range Keys {
		if v, ok := store.Get(k); ok && v != "" {
			a.Fields[k] = v
		}
	}
	a.FirstTouch = t.snapshot(store, FirstTouchKey)
	a.LastTouch = t.snapshot(store, LastTouchKey)
	return a
}

func (t *Tracker) snapshot(store Store, name string) *Snapshot {
	raw, ok := store.Get(name)
	if !ok || raw == "" {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.logger.Debug("Ignoring malformed attribution snapshot.", "key", name, "error", err)
		return nil
	}
	return &snap
}

// DecorateURL appends the known parameters to a same-origin path, leaving
// parameters already in the path untouched. Absolute and protocol-relative
// URLs are returned unchanged.
func (a Attribution) DecorateURL(path string) string {
	if len(a.Fields) == 0 || isExternal(path) {
		return path
	}
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	changed := false
	for _, k := range Keys {
		v, ok := a.Fields[k]
		if !ok || q.Has(k) {
			continue
		}
		q.Set(k, v)
		changed = true
	}
	if !changed {
		return path
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func isExternal(path string) bool {
	return strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "//")
}
