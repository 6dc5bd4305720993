package middleware

import (
	"context"
	"net/http"
	"strings"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/pkg/jwt"
	"commerce-sync-engine/pkg/response"
)

type contextKey string

const (
	ClientIDKey contextKey = "clientID"
	RoleKey     contextKey = "role"
	identityKey contextKey = "identity"
)

// identity lets the access logger see who an inner handler authenticated.
type identity struct {
	clientID string
	role     domain.Role
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			token, ok := BearerToken(authHeader)
			if !ok {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateToken(token, jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.ClientID, domain.Role(claims.Role))))
		})
	}
}

// WithIdentity records an authenticated client on ctx.
func WithIdentity(ctx context.Context, clientID string, role domain.Role) context.Context {
	if id, ok := ctx.Value(identityKey).(*identity); ok {
		id.clientID = clientID
		id.role = role
	}
	ctx = context.WithValue(ctx, ClientIDKey, clientID)
	return context.WithValue(ctx, RoleKey, role)
}

// RequireRole rejects authenticated requests whose role is not listed.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r)
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Forbidden(w, "Insufficient role")
		})
	}
}

func GetClientID(r *http.Request) string {
	clientID, ok := r.Context().Value(ClientIDKey).(string)
	if !ok {
		return ""
	}
	return clientID
}

func GetRole(r *http.Request) domain.Role {
	role, _ := r.Context().Value(RoleKey).(domain.Role)
	return role
}
