package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/propdesk/propdesk/internal/observability"
	"github.com/propdesk/propdesk/internal/shared"
)

const rateLimitPerMinute = 60

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
}

// MiddlewareStack builds the ordered middleware chain: request identity,
// session loading, recovery, timeouts, security headers, compression, rate
// limiting, CSRF, metrics. Session loading sits before Recoverer so a redis
// outage turns into a clean 500 rather than a panic trace.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		cfg.session,
		middleware.Recoverer,
		middleware.Timeout(cfg.requestTimeout()),
		cfg.secureHeaders,
		middleware.Compress(5),
		httprate.Limit(rateLimitPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		cfg.csrf,
	}
	if cfg.Metrics != nil {
		stack = append(stack, cfg.Metrics.Middleware)
	}
	return stack
}

func (cfg MiddlewareConfig) requestTimeout() time.Duration {
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		return cfg.Config.AppRequestTimeout
	}
	return 30 * time.Second
}

// sessionWriter commits the session right before the first response byte, so
// the Set-Cookie header always makes it out.
type sessionWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *sessionWriter) WriteHeader(statusCode int) {
	if !w.committed {
		w.committed = true
		w.commit()
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *sessionWriter) Write(data []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

func (cfg MiddlewareConfig) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, err := cfg.SessionManager.Load(ctx, r)
		if err != nil {
			cfg.Logger.Error("load session", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		ctx = shared.ContextWithSession(ctx, sess)
		req := r.WithContext(ctx)

		wrapped := &sessionWriter{
			ResponseWriter: w,
			commit: func() {
				if err := cfg.SessionManager.Commit(ctx, w, req, sess); err != nil {
					cfg.Logger.Error("commit session", slog.Any("error", err))
				}
			},
		}
		next.ServeHTTP(wrapped, req)
	})
}

func (cfg MiddlewareConfig) secureHeaders(next http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sec.Process(w, r); err != nil {
			cfg.Logger.Warn("secure headers rejected request", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// csrf verifies the token header on every mutating request. Safe methods
// pass through; the token itself is issued at login.
func (cfg MiddlewareConfig) csrf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		if err := cfg.CSRFManager.VerifyToken(r.Context(), sess, r.Header.Get(shared.CSRFHeader)); err != nil {
			cfg.Logger.Warn("csrf check failed", slog.String("path", r.URL.Path))
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
