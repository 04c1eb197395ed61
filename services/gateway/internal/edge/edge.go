// Package edge admits inbound requests at the gateway. Tokens are checked
// against the shared secret only; no cache or store is consulted.
package edge

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/chd000125/Study/services/gateway/internal/auth"
	"github.com/chd000125/Study/services/gateway/internal/metrics"
)

// Headers injected for upstream services. Inbound copies are always removed.
const (
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
	HeaderUserName  = "X-User-Name"
)

type TokenParser interface {
	ParseToken(token string) (*auth.Claims, error)
}

type Verifier struct {
	parser  TokenParser
	exact   map[string]struct{}
	prefix  []string
	metrics *metrics.Metrics
}

// NewVerifier accepts public path patterns. A pattern ending in "/*" matches
// the prefix and everything below it; any other pattern must match exactly.
func NewVerifier(parser TokenParser, publicPaths []string, m *metrics.Metrics) *Verifier {
	v := &Verifier{parser: parser, exact: make(map[string]struct{}), metrics: m}
	for _, pattern := range publicPaths {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if base, ok := strings.CutSuffix(pattern, "/*"); ok {
			v.prefix = append(v.prefix, base)
			continue
		}
		v.exact[pattern] = struct{}{}
	}
	return v
}

// IsPublic reports whether the path bypasses token checks. Paths that are
// not already clean are never public.
func (v *Verifier) IsPublic(p string) bool {
	if p == "" || path.Clean(p) != p {
		return false
	}
	if _, ok := v.exact[p]; ok {
		return true
	}
	for _, base := range v.prefix {
		if p == base || strings.HasPrefix(p, base+"/") {
			return true
		}
	}
	return false
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.Clone(r.Context())
		r.Header.Del(HeaderUserEmail)
		r.Header.Del(HeaderUserRole)
		r.Header.Del(HeaderUserName)

		if v.IsPublic(r.URL.Path) {
			v.observe("public")
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			v.observe("missing_token")
			unauthorized(w)
			return
		}
		claims, err := v.parser.ParseToken(token)
		if err != nil || claims.Email == "" {
			v.observe("invalid_token")
			unauthorized(w)
			return
		}

		r.Header.Set(HeaderUserEmail, claims.Email)
		r.Header.Set(HeaderUserRole, claims.Role)
		if claims.Name != "" {
			r.Header.Set(HeaderUserName, claims.Name)
		}
		v.observe("allowed")
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func (v *Verifier) observe(outcome string) {
	if v.metrics != nil {
		v.metrics.EdgeRequests.WithLabelValues(outcome).Inc()
	}
}

type claimsKey struct{}

// ClaimsFromContext returns the verified claims, or nil on public paths.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
