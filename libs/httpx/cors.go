package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsHeaders struct {
	anyOrigin   bool
	origins     map[string]struct{}
	methods     string
	headers     string
	maxAge      string
	credentials bool
}

// WithCORS answers preflight requests and decorates responses for allowed origins.
// An empty AllowedOrigins list disables CORS handling.
func WithCORS(cfg CORSPolicy) Middleware {
	if len(cfg.AllowedOrigins) == 0 {
		return nil
	}
	h := corsHeaders{
		origins:     map[string]struct{}{},
		methods:     strings.Join(normalizeList(cfg.AllowedMethods), ", "),
		headers:     strings.Join(normalizeList(cfg.AllowedHeaders), ", "),
		credentials: cfg.AllowCredentials,
	}
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		h.maxAge = strconv.Itoa(secs)
	}
	for _, o := range normalizeList(cfg.AllowedOrigins) {
		if o == "*" {
			h.anyOrigin = true
			continue
		}
		h.origins[strings.ToLower(o)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowOrigin, ok := h.allow(origin)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			h.write(w.Header(), allowOrigin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h corsHeaders) allow(origin string) (string, bool) {
	if origin == "" {
		return "", false
	}
	if _, ok := h.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	if h.anyOrigin {
		// Credentialed requests cannot use the literal wildcard.
		if h.credentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

func (h corsHeaders) write(headers http.Header, origin string) {
	headers.Set("Access-Control-Allow-Origin", origin)
	if h.credentials {
		headers.Set("Access-Control-Allow-Credentials", "true")
	}
	if h.methods != "" {
		headers.Set("Access-Control-Allow-Methods", h.methods)
	}
	if h.headers != "" {
		headers.Set("Access-Control-Allow-Headers", h.headers)
	}
	if h.maxAge != "" {
		headers.Set("Access-Control-Max-Age", h.maxAge)
	}
	headers.Add("Vary", "Origin")
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
