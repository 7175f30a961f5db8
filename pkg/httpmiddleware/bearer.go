package httpmiddleware

import (
	"context"
	"net/http"
	"strings"
)

type tokenKey struct{}

// TokenFromContext returns the bearer token of the request, or "".
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// BearerToken extracts "Authorization: Bearer <token>" into the request
// context. Requests without a token pass through as anonymous.
func BearerToken() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearer(r.Header.Get("Authorization")); token != "" {
				r = r.WithContext(context.WithValue(r.Context(), tokenKey{}, token))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(h string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
