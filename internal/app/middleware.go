package app

import (
	"log/slog"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"

	"github.com/orgsync/orgsync/internal/observability"
	"github.com/orgsync/orgsync/internal/platform/httpx"
	"github.com/orgsync/orgsync/internal/shared"
)

// Operator identity headers forwarded by the authenticating gateway.
const (
	HeaderOperatorID    = "X-Operator-Id"
	HeaderOperatorRoles = "X-Operator-Roles"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the engine's middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	stack := []func(http.Handler) http.Handler{
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		secureMiddleware.Handler,
		OperatorContext,
	}
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		stack = append(stack, chimw.Timeout(cfg.Config.AppRequestTimeout))
	}
	if cfg.Metrics != nil {
		stack = append(stack, cfg.Metrics.Middleware)
	}
	return stack
}

// OperatorContext resolves the operator's capabilities exactly once per
// request from the forwarded identity headers. Role names are normalized
// here; no downstream code compares raw role strings.
func OperatorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderOperatorID))
		var roles []string
		if raw := r.Header.Get(HeaderOperatorRoles); raw != "" {
			for _, role := range strings.Split(raw, ",") {
				roles = append(roles, role)
			}
		}
		op := shared.Operator{ID: id, Capabilities: shared.CapabilitiesForRoles(roles)}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithOperator(r.Context(), op)))
	})
}

// RequireCapability guards a route group behind one capability.
func RequireCapability(cap shared.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := shared.OperatorFromContext(r.Context())
			if !ok || op.ID == "" || !op.Capabilities.Has(cap) {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
