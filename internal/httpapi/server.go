package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/middleware"
	"github.com/ocx/backend/internal/redeem"
	"github.com/ocx/backend/internal/requestid"
	"github.com/ocx/backend/internal/revoke"
	"github.com/ocx/backend/internal/storage"
)

// Deps bundles everything the two listeners need, closed over by the
// handler factories the way the teacher's NewAPIServer closes over its
// service layer.
type Deps struct {
	Engine      *redeem.Engine
	RevokePath  *revoke.Path
	Tokens      storage.TokenStore
	RateLimiter *middleware.RateLimiter
}

// PublicRouter builds the public listener's mux: POST /api/v1/redeem,
// GET /api/v1/token/{token}, and (only when no internal listener is
// configured) GET /metrics -- the §6 "optionally" clause.
func PublicRouter(deps Deps, apiCfg config.APIConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(requestid.Middleware)
	r.Use(loggingMiddleware)

	redeemHandler := HandleRedeem(deps.Engine)
	if deps.RateLimiter != nil {
		redeemHandler = deps.RateLimiter.Middleware(http.HandlerFunc(redeemHandler)).ServeHTTP
	}
	r.HandleFunc("/api/v1/redeem", redeemHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/token/{token}", HandleTokenStatus(deps.Tokens)).Methods(http.MethodGet)

	if !apiCfg.HasInternalListener() {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	return r
}

// InternalRouter builds the internal (admin/ops) listener's mux: /metrics
// is always exposed here, plus the revoke route.
func InternalRouter(deps Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(loggingMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/token/{token}/revoke", HandleRevoke(deps.RevokePath)).Methods(http.MethodPost)

	return r
}

// corsMiddleware allows browser clients on the public listener, the same
// permissive posture the teacher's APIServer.Start uses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware emits one structured log line per request, tagged with
// the requestid.Middleware-assigned correlation id.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("http: request handled",
			"request_id", requestid.FromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
