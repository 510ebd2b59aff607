// Package identity resolves the signed-in user behind a request.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/gcp"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
)

// SessionCookie carries the session token for browser requests.
const SessionCookie = "session"

// RoleAdmin marks users allowed to review leads.
const RoleAdmin = "admin"

// Identity is the authenticated user behind a request.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin reports whether the user may review leads.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Resolver looks up the identity a session token belongs to.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

type sessionRecord struct {
	UserID    string    `firestore:"userId"`
	Email     string    `firestore:"email"`
	Role      string    `firestore:"role"`
	ExpiresAt time.Time `firestore:"expiresAt"`
}

// FirestoreSessions resolves tokens from <collection>/<token> documents
// written by the identity provider.
type FirestoreSessions struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreSessions returns a resolver over collection.
func NewFirestoreSessions(client *firestore.Client, collection string) *FirestoreSessions {
	return &FirestoreSessions{client: client, collection: collection, now: time.Now}
}

func (s *FirestoreSessions) Resolve(ctx context.Context, token string) (Identity, error) {
	snap, err := s.client.Collection(s.collection).Doc(token).Get(ctx)
	if err != nil {
		if gcp.IsNotFound(err) {
			return Identity{}, errs.Newf(errs.Unauthorized, "session not found")
		}
		return Identity{}, errs.New(errs.Internal, "failed to look up session", err)
	}
	var rec sessionRecord
	if err := snap.DataTo(&rec); err != nil {
		return Identity{}, errs.New(errs.Internal, "failed to decode session", err)
	}
	return rec.identity(s.now())
}

func (r sessionRecord) identity(now time.Time) (Identity, error) {
	if r.UserID == "" {
		return Identity{}, errs.Newf(errs.Unauthorized, "session has no user")
	}
	if !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt) {
		return Identity{}, errs.Newf(errs.Unauthorized, "session expired")
	}
	return Identity{UserID: r.UserID, Email: r.Email, Role: r.Role}, nil
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity on ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// TokenFromRequest extracts the session token from a bearer header or the
// session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Middleware attaches the caller's identity to the request context when the
// request carries a valid session. Anonymous requests pass through.
func Middleware(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if !errs.Is(err, errs.Unauthorized) {
					logger.Error("Session lookup failed.", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuth rejects requests without an identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			deny(w, errs.Newf(errs.Unauthorized, "sign in required"), "/login")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests from anyone but admins.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			deny(w, errs.Newf(errs.Unauthorized, "sign in required"), "/login")
			return
		}
		if !id.IsAdmin() {
			deny(w, errs.Newf(errs.Forbidden, "admin access required"), "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, err error, redirect string) {
	var e *errs.Error
	msg := err.Error()
	if errors.As(err, &e) {
		msg = e.Msg
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errs.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg, Redirect: redirect})
}
