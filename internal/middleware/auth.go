// Package middleware содержит HTTP middleware для HTTP-транспорта MCP-шлюза.
package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// AuthMiddleware проверяет статический токен доступа в заголовке Authorization.
// С пустым токеном проверка отключена.
type AuthMiddleware struct {
	digest []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным токеном.
func NewAuthMiddleware(token string) *AuthMiddleware {
	if token == "" {
		return &AuthMiddleware{}
	}
	return &AuthMiddleware{digest: sum(token)}
}

// Enabled сообщает, требуется ли токен.
func (a *AuthMiddleware) Enabled() bool {
	return a != nil && len(a.digest) > 0
}

// Middleware пропускает запрос дальше только с верным токеном.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if !hmac.Equal(sum(token), a.digest) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func sum(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}
