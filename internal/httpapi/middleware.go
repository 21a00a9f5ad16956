package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// APIKeyHeader - заголовок с общим секретом игрового сервера.
const APIKeyHeader = "X-Api-Key"

// apiKeyAuth пропускает только запросы с верным X-Api-Key.
func apiKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "неверный или отсутствующий API-ключ")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger логирует каждый запрос через logrus.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": chimw.GetReqID(r.Context()),
		})
		switch {
		case ww.Status() >= 500:
			entry.Warn("HTTP запрос завершился ошибкой")
		default:
			entry.Debug("HTTP запрос")
		}
	})
}

// instrument считает запросы по шаблону маршрута (а не по пути, чтобы player_id не раздувал метрику).
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.opts.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.opts.Metrics.HTTPRequest(r.Method+" "+route, status)
	})
}
