// Package http implements the proxy with a chi router.
//
// Every request gets an identifier that is returned in the X-Request-Id header
// and attached to the access log, and the requests are counted per route for
// Prometheus.
package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.dedis.ch/contest"
	"golang.org/x/xerrors"
)

const shutdownTimeout = 10 * time.Second

// defines prometheus metrics
var promRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "contest_proxy_requests_total",
	Help: "total number of http requests by route and status",
}, []string{"method", "route", "status"})

func init() {
	contest.PromCollectors = append(contest.PromCollectors, promRequests)
}

// Option is the type of options to create the proxy.
type Option func(*HTTP)

// WithOrigins sets the origins allowed to make cross-origin requests.
func WithOrigins(origins ...string) Option {
	return func(h *HTTP) {
		h.origins = origins
	}
}

// HTTP defines a proxy http
//
// - implements proxy.Proxy
type HTTP struct {
	sync.Mutex

	router     chi.Router
	server     *http.Server
	logger     zerolog.Logger
	listenAddr string
	origins    []string
	ln         net.Listener
	quit       chan struct{}
}

// NewHTTP creates a new proxy http. An empty address picks a free port.
func NewHTTP(listenAddr string, opts ...Option) *HTTP {
	logger := contest.Logger.With().Timestamp().Str("role", "http proxy").Logger()

	h := &HTTP{
		logger:     logger,
		listenAddr: listenAddr,
		origins:    []string{"*"},
		quit:       make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(h)
	}

	router := chi.NewRouter()

	router.Use(hlog.NewHandler(logger))
	router.Use(hlog.RequestIDHandler("requestID", "X-Request-Id"))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("")
	}))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
	}))
	router.Use(counting)

	h.router = router
	h.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return h
}

// Listen implements proxy.Proxy. This function can be called multiple times
// provided the server is not running, ie. Stop() has been called.
func (h *HTTP) Listen() {
	h.logger.Info().Msg("Client server is starting...")

	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		h.logger.Error().Err(err).Msgf("failed to create conn '%s'", h.listenAddr)
		panic(xerrors.Errorf("failed to create conn '%s': %v", h.listenAddr, err))
	}

	h.Lock()
	h.ln = ln
	h.Unlock()

	done := make(chan struct{})

	go func() {
		<-h.quit
		h.logger.Info().Msg("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		h.server.SetKeepAlivesEnabled(false)

		err := h.server.Shutdown(ctx)
		if err != nil {
			h.logger.Error().Err(err).Msg("could not gracefully shutdown the server")
		}

		close(done)
	}()

	h.logger.Info().Msgf("Server is ready to handle requests at http://%s", ln.Addr())

	err = h.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		h.logger.Error().Err(err).Msgf("Could not listen on %s", h.listenAddr)
	}

	<-done

	h.Lock()
	h.ln = nil
	h.Unlock()

	h.logger.Info().Msg("Server stopped")
}

// Stop implements proxy.Proxy. It should be called only once per call to
// Listen.
func (h *HTTP) Stop() {
	h.quit <- struct{}{}
}

// GetAddr implements proxy.Proxy.
func (h *HTTP) GetAddr() net.Addr {
	h.Lock()
	defer h.Unlock()

	if h.ln == nil {
		return nil
	}

	return h.ln.Addr()
}

// RegisterHandler implements proxy.Proxy.
func (h *HTTP) RegisterHandler(method, pattern string, handler http.HandlerFunc) {
	h.router.Method(method, pattern, handler)
}

// counting counts the requests by the route pattern once the router resolved
// it.
func counting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unknown"

		rctx := chi.RouteContext(r.Context())
		if rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		promRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
