package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/washpark/washpark/internal/shared"
)

// CookieName is the session cookie identifier.
const CookieName = "washpark_session"

type sessionContextKey struct{}

// ContextWithSession stores the actor session in context.
func ContextWithSession(ctx context.Context, sess *ActorSession) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// FromContext extracts the actor session from context, or nil.
func FromContext(ctx context.Context) *ActorSession {
	sess, _ := ctx.Value(sessionContextKey{}).(*ActorSession)
	return sess
}

// ContextChecker answers permission checks against the session attached to
// the request context. It satisfies the registry's PermissionChecker port.
type ContextChecker struct{}

// Allowed reports whether the context's session belongs to the actor and
// grants the permission. Any mismatch denies.
func (ContextChecker) Allowed(ctx context.Context, actor shared.Actor, permission string) bool {
	sess := FromContext(ctx)
	if sess == nil || sess.Actor().StaffID != actor.StaffID {
		return false
	}
	return sess.Has(permission)
}

// Middleware loads, validates and rebuilds actor sessions per request and
// provides the permission guards handlers mount.
type Middleware struct {
	Store  *Store
	Source RoleSource
	Staff  StaffSource
	Logger *slog.Logger
	Secure bool
}

// Handler resolves the session cookie into an actor context. Requests
// without a valid session pass through unauthenticated; the guards below
// reject them at gated routes. A stale session is rebuilt before the
// request proceeds, or torn down when its role has been deactivated.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		sess, err := m.Store.Load(ctx, cookie.Value)
		if err != nil {
			if !errors.Is(err, shared.ErrUnauthenticated) && m.Logger != nil {
				m.Logger.Error("load session", slog.Any("error", err))
			}
			m.clearCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		if err := m.Store.Validate(ctx, sess); err != nil {
			sess, err = m.Store.Rebuild(ctx, cookie.Value, m.Source, m.Staff)
			if err != nil {
				// Forced sign-out: member or role deactivated, removed, or
				// the rebuild could not complete. Never proceed on a
				// session known to be stale.
				m.clearCookie(w)
				next.ServeHTTP(w, r)
				return
			}
		}

		ctx = ContextWithSession(ctx, sess)
		ctx = shared.ContextWithActor(ctx, sess.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAny ensures the current actor holds at least one of the
// permissions.
func (m Middleware) RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := FromContext(r.Context())
			if sess == nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !sess.HasAny(permissions...) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAll ensures the current actor holds every permission.
func (m Middleware) RequireAll(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := FromContext(r.Context())
			if sess == nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !sess.HasAll(permissions...) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteCookie attaches the session cookie to the response.
func (m Middleware) WriteCookie(w http.ResponseWriter, sessionID string, ttlSeconds int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   ttlSeconds,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (m Middleware) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
