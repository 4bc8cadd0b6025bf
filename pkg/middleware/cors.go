package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig describes which browser origins may call the API.
type CORSConfig struct {
	// AllowedOrigins lists exact origins. "*" matches any origin but is
	// honored only when Environment is "development".
	AllowedOrigins []string
	AllowedHeaders []string
	ExposedHeaders []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge      int
	Environment string
}

// DefaultCORSConfig allows any origin in development and advertises the
// headers the checkout flow depends on.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-Match", "Idempotency-Key", CorrelationIDHeader},
		ExposedHeaders: []string{"ETag", "Location", CorrelationIDHeader},
		MaxAge:         600,
		Environment:    "development",
	}
}

type originPolicy struct {
	any     bool
	exact   map[string]bool
	headers string
	exposed string
	maxAge  string
}

func newOriginPolicy(cfg CORSConfig) originPolicy {
	p := originPolicy{
		exact:   make(map[string]bool, len(cfg.AllowedOrigins)),
		headers: strings.Join(cfg.AllowedHeaders, ", "),
		exposed: strings.Join(cfg.ExposedHeaders, ", "),
		maxAge:  strconv.Itoa(cfg.MaxAge),
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			p.any = cfg.Environment == "development"
			continue
		}
		p.exact[strings.TrimSuffix(o, "/")] = true
	}
	return p
}

// allow returns the Access-Control-Allow-Origin value for origin, or "".
func (p originPolicy) allow(origin string) string {
	switch {
	case origin == "":
		return ""
	case p.any:
		return "*"
	case p.exact[origin]:
		return origin
	}
	return ""
}

// CORS answers preflight requests and decorates cross-origin responses.
// Requests from origins outside the policy pass through undecorated so the
// browser blocks them.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newOriginPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			allowed := policy.allow(r.Header.Get("Origin"))
			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				if policy.exposed != "" {
					h.Set("Access-Control-Expose-Headers", policy.exposed)
				}
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}

			if allowed != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")
				if policy.headers != "" {
					h.Set("Access-Control-Allow-Headers", policy.headers)
				}
				h.Set("Access-Control-Max-Age", policy.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
