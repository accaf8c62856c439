package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/Tyrowin/roomrelay/internal/logger"
	"go.uber.org/zap"
)

// normalizeOrigins returns the valid origins in scheme://host form and
// whether the wildcard was present.
func normalizeOrigins(origins []string) ([]string, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid origin in configuration", zap.String("origin", origin))
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// isOriginAllowed accepts any request under the wildcard, including ones
// without an Origin header. Otherwise the header must match the allow-list.
func isOriginAllowed(r *http.Request) bool {
	configMu.RLock()
	allowAll := allowAllOrigins
	configMu.RUnlock()
	if allowAll {
		return true
	}

	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalizedOrigin, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	configMu.RLock()
	defer configMu.RUnlock()
	_, exists := allowedOrigins[normalizedOrigin]
	return exists
}

func checkOrigin(r *http.Request) bool {
	if isOriginAllowed(r) {
		return true
	}

	logger.Warn("blocked websocket connection from disallowed origin", zap.String("origin", r.Header.Get("Origin")))
	return false
}
