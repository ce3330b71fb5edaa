package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// SessionCookie is the cookie carrying the session identifier.
const SessionCookie = "sid"

type sessionIDKey struct{}

// SessionFromContext extracts the session ID from the context, or returns
// an empty string.
func SessionFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Session returns a middleware that assigns every request a session
// identifier. An existing valid cookie is reused; otherwise a new UUID is
// issued and set on the response. Handlers pass the identifier explicitly
// to the session-scoped stores; there is no ambient session object.
func Session(secure bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(SessionCookie); err == nil {
				if _, parseErr := uuid.Parse(c.Value); parseErr == nil {
					id = c.Value
				}
			}
			if id == "" {
				id = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), sessionIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
