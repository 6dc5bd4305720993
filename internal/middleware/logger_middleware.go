package middleware

import (
	"bufio"
	"context"
	"log"
	"net"
	"net/http"
	"time"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func LoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := &identity{}

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), identityKey, id)))

			client := id.clientID
			if client == "" {
				client = "anonymous"
			}

			log.Printf("[HTTP] %s %s - Status: %d - Duration: %v - Client: %s",
				r.Method,
				r.URL.Path,
				rw.statusCode,
				time.Since(start),
				client,
			)
		})
	}
}
