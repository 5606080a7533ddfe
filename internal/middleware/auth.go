package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// SessionCookieName is the cookie the back-office UI sends with every call.
const SessionCookieName = "bo_session"

type contextKey string

const requestContextKey contextKey = "requestContext"

// RequestContext is the session-scoped posting context. Branch, maker and
// business date always travel through here, never through package globals.
type RequestContext struct {
	BranchID     int64
	UserID       string
	BusinessDate time.Time
}

var sessionRedis *redis.Client

// InitAuthMiddleware wires the Redis client used for session revocation.
// A nil client disables the blacklist check (same degraded mode the rest of
// the service runs in without Redis).
func InitAuthMiddleware(redisClient *redis.Client) {
	sessionRedis = redisClient
}

// AuthMiddleware authenticates the session cookie before any DB access and
// places the decoded RequestContext on the request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Error(w, "Session cookie required", http.StatusUnauthorized)
			return
		}

		if sessionRedis != nil {
			key := fmt.Sprintf("blacklist:%s", cookie.Value)
			if n, _ := sessionRedis.Exists(r.Context(), key).Result(); n > 0 {
				http.Error(w, "Session revoked", http.StatusUnauthorized)
				return
			}
		}

		rc, err := validateSessionToken(cookie.Value)
		if err != nil {
			http.Error(w, "Invalid session", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), requestContextKey, rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validateSessionToken(tokenString string) (*RequestContext, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid session claims")
	}

	branchID, ok := claims["branch_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("missing branch_id claim")
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, fmt.Errorf("missing user_id claim")
	}

	dateStr, _ := claims["business_date"].(string)
	businessDate, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid business_date claim")
	}

	return &RequestContext{
		BranchID:     int64(branchID),
		UserID:       userID,
		BusinessDate: businessDate,
	}, nil
}

// WithRequestContext returns a context carrying rc, the same shape
// AuthMiddleware produces.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromRequest returns the RequestContext stored by AuthMiddleware.
func FromRequest(r *http.Request) (*RequestContext, bool) {
	rc, ok := r.Context().Value(requestContextKey).(*RequestContext)
	return rc, ok
}
