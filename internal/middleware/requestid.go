package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mmeshcher/isp-mcp-gateway/internal/logger"
)

// RequestIDHeader задаёт заголовок с идентификатором запроса.
const RequestIDHeader = "X-Request-ID"

// RequestID берёт идентификатор запроса из заголовка или генерирует новый
// и сохраняет его в контексте и заголовке ответа.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
