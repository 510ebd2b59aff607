package attribution

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// CookieStore keeps attribution in browser cookies. Values written during a
// request are visible to later reads in the same request.
type CookieStore struct {
	r       *http.Request
	w       http.ResponseWriter
	secure  bool
	written map[string]string
}

// NewCookieStore returns a Store reading cookies from r and writing to w.
func NewCookieStore(w http.ResponseWriter, r *http.Request, secure bool) *CookieStore {
	return &CookieStore{r: r, w: w, secure: secure, written: make(map[string]string)}
}

func (c *CookieStore) Get(name string) (string, bool) {
	if v, ok := c.written[name]; ok {
		return v, true
	}
	cookie, err := c.r.Cookie(name)
	if err != nil {
		return "", false
	}
	v, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", false
	}
	return v, true
}

func (c *CookieStore) Set(name, value string, maxAge time.Duration) error {
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(value),
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.written[name] = value
	return nil
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying a.
func WithContext(ctx context.Context, a Attribution) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the attribution carried by ctx, or an empty value.
func FromContext(ctx context.Context) Attribution {
	if a, ok := ctx.Value(ctxKey{}).(Attribution); ok {
		return a
	}
	return Attribution{Fields: map[string]string{}}
}

// Middleware captures attribution from every request's query string and
// places the visitor's current attribution on the request context.
func Middleware(t *Tracker, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := NewCookieStore(w, r, secure)
			t.Capture(r.URL.Query(), store)
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), t.Current(store))))
		})
	}
}
