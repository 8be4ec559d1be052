package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/loykin/nodebase/internal/auth"
	"github.com/loykin/nodebase/internal/bridge"
	"github.com/loykin/nodebase/internal/event"
)

// Router provides embeddable HTTP handlers for the UI bridge.
// Endpoints:
//
//	POST {basePath}/call/:method   body: JSON object of arguments
//	GET  {basePath}/events         websocket stream of lifecycle events
//	GET  /metrics                  when a metrics handler is set
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	caller   Caller
	bus      *event.Bus
	basePath string
	metrics  http.Handler
	auth     *auth.Middleware
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc // closes the current event stream
}

// Caller dispatches one bridge method.
type Caller interface {
	Call(ctx context.Context, method string, args map[string]any) (any, error)
}

func NewRouter(caller Caller, bus *event.Bus, basePath string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		caller:   caller,
		bus:      bus,
		basePath: sanitizeBase(basePath),
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// WithMetrics serves h at /metrics.
func (r *Router) WithMetrics(h http.Handler) *Router {
	r.metrics = h
	return r
}

// WithAuth requires token as a bearer credential on the call and event
// routes. An empty token leaves them open.
func (r *Router) WithAuth(token string) *Router {
	r.auth = auth.NewMiddleware(token)
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	if r.auth.Enabled() {
		group.Use(r.auth.GinAuth())
	}
	group.POST("/call/:method", r.handleCall)
	group.GET("/events", r.handleEvents)
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer returns an http.Server for handler with the usual timeouts.
// A non-nil tlsCfg makes it an HTTPS server; serve it with
// ListenAndServeTLS("", ""). The caller owns Shutdown.
func NewServer(addr string, handler http.Handler, tlsCfg *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorResp struct {
	Error errorBody `json:"error"`
}

type resultResp struct {
	Result any `json:"result"`
}

func (r *Router) handleCall(c *gin.Context) {
	method := c.Param("method")
	if !isSafeName(method) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: errorBody{Code: "NOT_IMPLEMENTED", Message: bridge.ErrNotImplemented.Error()}})
		return
	}

	var args map[string]any
	if err := c.ShouldBindJSON(&args); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: errorBody{Code: "BAD_REQUEST", Message: "invalid JSON: " + err.Error()}})
		return
	}

	res, err := r.caller.Call(c.Request.Context(), method, args)
	if err != nil {
		var ae *bridge.ArgError
		switch {
		case errors.As(err, &ae):
			writeJSON(c, http.StatusBadRequest, errorResp{Error: errorBody{Code: ae.Code(), Message: ae.Error(), Field: ae.Field}})
		case errors.Is(err, bridge.ErrNotImplemented):
			writeJSON(c, http.StatusNotFound, errorResp{Error: errorBody{Code: "NOT_IMPLEMENTED", Message: err.Error()}})
		default:
			r.log.Error("bridge call failed", "method", method, "error", err)
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: errorBody{Code: "INTERNAL", Message: err.Error()}})
		}
		return
	}
	writeJSON(c, http.StatusOK, resultResp{Result: res})
}
