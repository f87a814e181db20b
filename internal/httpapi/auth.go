package httpapi

import (
	"context"
	"net/http"
	"strings"

	"medex/exchange-service/internal/hospitals"
)

type authContextKey struct{}

// AuthMiddleware authenticates a calling hospital by id and API key against
// the directory. The verified hospital id is stored on the request context.
func AuthMiddleware(directory *hospitals.Directory, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		hospitalID := strings.TrimSpace(r.Header.Get("X-Hospital-ID"))
		apiKey := apiKeyFromRequest(r)
		if hospitalID == "" || apiKey == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing hospital credentials")
			return
		}
		if !directory.VerifyKey(hospitalID, apiKey) {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid hospital credentials")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, hospitalID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerHospital(ctx context.Context) (string, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return "", false
	}
	id, ok := value.(string)
	return id, ok
}

func apiKeyFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Api-Key"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz":
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
