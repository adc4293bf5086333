// middleware.go — HTTP middleware and security helpers.
// Contains CORS middleware, origin/host validation and panic recovery.
package server

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/util"
)

// isAllowedOrigin checks if an Origin header value is from localhost or the
// extension. Empty origin (CLI/curl) is allowed. When extensionID is empty any
// extension origin is accepted.
func isAllowedOrigin(origin, extensionID string) bool {
	if origin == "" {
		return true
	}

	for _, scheme := range []string{"chrome-extension://", "moz-extension://"} {
		if strings.HasPrefix(origin, scheme) {
			if extensionID != "" {
				return origin == scheme+extensionID
			}
			return true
		}
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	hostname := u.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

// isAllowedHost checks if the Host header is a localhost variant with any port.
// This rejects DNS rebinding, where attacker.com resolves to 127.0.0.1 but the
// browser still sends Host: attacker.com.
func isAllowedHost(host string) bool {
	if host == "" {
		return true
	}

	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.TrimPrefix(hostname, "[")
	hostname = strings.TrimSuffix(hostname, "]")

	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

// corsMiddleware validates Host and Origin, then echoes the allowed origin
// (never "*") and answers preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAllowedHost(r.Host) {
			util.JSONResponse(w, http.StatusForbidden, failure("invalid host header"), s.logger)
			return
		}

		origin := r.Header.Get("Origin")
		if origin != "" && !isAllowedOrigin(origin, s.extensionID) {
			s.logger.Warn("rejected origin", zap.String("origin", origin), zap.String("path", r.URL.Path))
			util.JSONResponse(w, http.StatusForbidden, failure("forbidden: invalid origin"), s.logger)
			return
		}

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware turns a handler panic into a 500 so one bad request never
// takes the daemon down.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("handler panicked", zap.String("path", r.URL.Path), zap.Any("panic", p))
				util.JSONResponse(w, http.StatusInternalServerError, failure("internal error"), s.logger)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
