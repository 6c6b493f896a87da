package cart

import (
	"context"
	"net/http"

	"ms-storefront/internal/utils"
)

type contextKey string

const sessionIDKey contextKey = "cart_session_id"

const SessionHeader = "X-Session-ID"

// SessionMiddleware resolves the cart session from the X-Session-ID header or
// the session cookie, issuing a new one when neither is present.
func SessionMiddleware(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get(SessionHeader)
			if sessionID == "" {
				if cookie, err := r.Cookie(cookieName); err == nil {
					sessionID = cookie.Value
				}
			}
			if sessionID == "" {
				sessionID = utils.GenerateSessionID()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    sessionID,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(SessionHeader, sessionID)

			ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSessionID is used by callers that resolve the session themselves.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}
