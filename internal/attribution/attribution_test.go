package attribution

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	values  map[string]string
	failSet bool
}

func newMemStore() *memStore { return &memStore{values: map[string]string{}} }

func (m *memStore) Get(name string) (string, bool) {
	v, ok := m.values[name]
	return v, ok
}

func (m *memStore) Set(name, value string, _ time.Duration) error {
	if m.failSet {
		return errors.New("cookie jar full")
	}
	m.values[name] = value
	return nil
}

func newTestTracker() *Tracker {
	tr := NewTracker(slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := time.UnixMilli(1_700_000_000_000)
	tr.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return tr
}

func TestCaptureIgnoresUntrackedQuery(t *testing.T) {
	tr := newTestTracker()
	store := newMemStore()

	tr.Capture(url.Values{"page": {"2"}, "utm_source": {"  "}}, store)

	assert.Empty(t, store.values)
	assert.True(t, tr.Current(store).Empty())
}

func TestFirstTouchIsWrittenOnce(t *testing.T) {
	visits := []url.Values{
		{"utm_source": {"google"}, "utm_campaign": {"spring"}},
		{"utm_source": {"facebook"}, "fbclid": {"abc"}},
		{"ref": {"friend42"}},
		{"utm_medium": {"email"}},
	}
	for n := 1; n <= len(visits); n++ {
		tr := newTestTracker()
		store := newMemStore()
		for _, q := range visits[:n] {
			tr.Capture(q, store)
		}

		got := tr.Current(store)
		require.NotNil(t, got.FirstTouch)
		assert.Equal(t, map[string]string{"utm_source": "google", "utm_campaign": "spring"}, got.FirstTouch.Params, "after %d captures", n)
	}
}

func TestLastTouchFollowsMostRecentCapture(t *testing.T) {
	tr := newTestTracker()
	store := newMemStore()

	tr.Capture(url.Values{"utm_source": {"google"}}, store)
	tr.Capture(url.Values{"utm_source": {"bing"}, "gclid": {"g-1"}}, store)
	tr.Capture(url.Values{"unrelated": {"x"}}, store)

	got := tr.Current(store)
	require.NotNil(t, got.LastTouch)
	assert.Equal(t, map[string]string{"utm_source": "bing", "gclid": "g-1"}, got.LastTouch.Params)
	assert.NotEqual(t, got.FirstTouch.Timestamp, got.LastTouch.Timestamp)
	assert.Equal(t, "bing", got.Fields["utm_source"])
}

func TestCurrentIgnoresMalformedSnapshot(t *testing.T) {
	tr := newTestTracker()
	store := newMemStore()
	store.values[FirstTouchKey] = "{not json"
	store.values["utm_source"] = "google"

	got := tr.Current(store)

	assert.Nil(t, got.FirstTouch)
	assert.Equal(t, "google", got.Fields["utm_source"])
}

func TestCaptureSwallowsStoreFailures(t *testing.T) {
	tr := newTestTracker()
	store := newMemStore()
	store.failSet = true

	assert.NotPanics(t, func() { tr.Capture(url.Values{"utm_source": {"google"}}, store) })
	assert.True(t, tr.Current(store).Empty())
}

func TestDecorateURL(t *testing.T) {
	a := Attribution{Fields: map[string]string{"utm_source": "google", "ref": "friend"}}

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "plain_path", path: "/onboarding", want: "/onboarding?ref=friend&utm_source=google"},
		{name: "keeps_existing", path: "/signup?utm_source=newsletter", want: "/signup?ref=friend&utm_source=newsletter"},
		{name: "absolute", path: "https://example.com/x", want: "https://example.com/x"},
		{name: "protocol_relative", path: "//cdn.example.com/x", want: "//cdn.example.com/x"},
		{name: "all_present", path: "/a?ref=r&utm_source=s", want: "/a?ref=r&utm_source=s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.DecorateURL(tt.path))
		})
	}

	assert.Equal(t, "/onboarding", Attribution{}.DecorateURL("/onboarding"))
}

func TestMiddlewareSetsCookiesAndContext(t *testing.T) {
	tr := newTestTracker()
	var seen Attribution
	h := Middleware(tr, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/?utm_source=google&utm_campaign=spring", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "google", seen.Fields["utm_source"])
	require.NotNil(t, seen.FirstTouch)
	assert.Equal(t, "spring", seen.FirstTouch.Params["utm_campaign"])

	cookies := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c
	}
	require.Contains(t, cookies, FirstTouchKey)
	assert.Equal(t, int(Retention.Seconds()), cookies["utm_source"].MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, cookies["utm_source"].SameSite)
	assert.True(t, cookies["utm_source"].Secure)

	// A later visit without parameters still sees the stored first touch.
	next := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	h.ServeHTTP(httptest.NewRecorder(), next)
	require.NotNil(t, seen.FirstTouch)
	assert.Equal(t, "google", seen.FirstTouch.Params["utm_source"])
}
