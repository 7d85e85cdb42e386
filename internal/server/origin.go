package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Tyrowin/chatroom/internal/logging"
)

// originPolicy is the websocket origin allow-list. A "*" entry allows every
// origin; requests without an Origin header are rejected.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	logger   logging.Logger
}

func newOriginPolicy(origins []string, logger logging.Logger) *originPolicy {
	normalized, allowAll := normalizeOrigins(origins, logger)

	p := &originPolicy{
		allowAll: allowAll,
		allowed:  make(map[string]struct{}, len(normalized)),
		logger:   logger,
	}
	for _, origin := range normalized {
		p.allowed[origin] = struct{}{}
	}
	return p
}

func normalizeOrigins(origins []string, logger logging.Logger) ([]string, bool) {
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

		n, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn(context.Background(), "ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		normalized = append(normalized, n)
	}

	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p *originPolicy) permits(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return false
	}
	if p.allowAll {
		return true
	}

	origin, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	_, exists := p.allowed[origin]
	return exists
}

func (p *originPolicy) check(r *http.Request) bool {
	if p.permits(r) {
		return true
	}
	p.logger.Warn(r.Context(), "blocked websocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}
