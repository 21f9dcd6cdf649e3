package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/facade"
)

// Router provides embeddable HTTP handlers over the facade.
// Endpoints, relative to basePath:
//
//	GET    /processes                 list
//	GET    /processes/:id             one process
//	GET    /processes/:id/logs        ?lines=N
//	POST   /processes                 add, body ProcessConfig
//	PUT    /processes/:id             update, body ProcessPatch, ?restart=true|false
//	DELETE /processes/:id             delete
//	POST   /processes/:id/{start,stop,restart}
//	POST   /all/{start,stop,restart}
//	GET    /metrics/summary
//	GET    /version
//	GET    /events                    server-sent events
//
// Prometheus metrics are served at /metrics outside basePath.
type Router struct {
	svc       *facade.Service
	basePath  string
	metrics   http.Handler
	heartbeat time.Duration
}

func NewRouter(svc *facade.Service, basePath string) *Router {
	return &Router{svc: svc, basePath: sanitizeBase(basePath), heartbeat: 15 * time.Second}
}

// WithMetrics mounts h at /metrics.
func (r *Router) WithMetrics(h http.Handler) *Router {
	r.metrics = h
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	api := g.Group(r.basePath)
	api.GET("/processes", r.handleList)
	api.POST("/processes", r.handleAdd)
	api.GET("/processes/:id", r.handleGet)
	api.PUT("/processes/:id", r.handleUpdate)
	api.DELETE("/processes/:id", r.handleDelete)
	api.GET("/processes/:id/logs", r.handleLogs)
	api.POST("/processes/:id/start", r.byID(r.svc.StartProcess))
	api.POST("/processes/:id/stop", r.byID(r.svc.StopProcess))
	api.POST("/processes/:id/restart", r.byID(r.svc.RestartProcess))
	api.POST("/all/start", r.all(r.svc.StartAllProcesses))
	api.POST("/all/stop", r.all(r.svc.StopAllProcesses))
	api.POST("/all/restart", r.all(r.svc.RestartAllProcesses))
	api.GET("/metrics/summary", r.handleMetrics)
	api.GET("/version", r.handleVersion)
	api.GET("/events", r.handleEvents)
	return g
}

// NewServer listens on addr and serves h in the background. Listen errors
// are returned directly. With certFile and keyFile set it serves TLS.
func NewServer(addr string, h http.Handler, certFile, keyFile string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: event streams and bulk operations run long
		IdleTimeout: 60 * time.Second,
	}
	if certFile != "" && keyFile != "" {
		go func() { _ = server.ServeTLS(ln, certFile, keyFile) }()
	} else {
		go func() { _ = server.Serve(ln) }()
	}
	return server, nil
}

// Shutdown stops srv, waiting at most d.
func Shutdown(srv *http.Server, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResp struct {
	Error string    `json:"error"`
	Code  errs.Code `json:"code"`
}

func writeErr(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error(), Code: errs.CodeOf(err)})
}

func badRequest(c *gin.Context, msg string, err error) {
	writeJSON(c, http.StatusBadRequest, facade.OperationResult{
		Message: msg,
		Error:   err.Error(),
		Code:    errs.CodeValidation,
	})
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.svc.ListProcesses(c.Request.Context()))
}

func (r *Router) handleGet(c *gin.Context) {
	p, err := r.svc.GetProcess(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (r *Router) handleLogs(c *gin.Context) {
	lines := 0
	if s := c.Query("lines"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeErr(c, errs.Validationf("invalid lines %q", s))
			return
		}
		lines = n
	}
	logs, err := r.svc.GetLogs(c.Request.Context(), c.Param("id"), lines)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, logs)
}

func (r *Router) handleAdd(c *gin.Context) {
	var in facade.ProcessConfig
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid process config", err)
		return
	}
	if !isSafeAbsPath(in.Cwd) {
		writeJSON(c, http.StatusOK, facade.OperationResult{
			Message: "failed to add process",
			Error:   "cwd must be an absolute path without traversal",
			Code:    errs.CodeValidation,
		})
		return
	}
	writeJSON(c, http.StatusOK, r.svc.AddProcess(c.Request.Context(), in))
}

func (r *Router) handleUpdate(c *gin.Context) {
	var patch facade.ProcessPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid process patch", err)
		return
	}
	restart, err := parseOptBool(c.Query("restart"))
	if err != nil {
		badRequest(c, "invalid restart flag", err)
		return
	}
	if patch.Cwd != nil && !isSafeAbsPath(*patch.Cwd) {
		writeJSON(c, http.StatusOK, facade.OperationResult{
			Message: "failed to update process " + c.Param("id"),
			Error:   "cwd must be an absolute path without traversal",
			Code:    errs.CodeValidation,
		})
		return
	}
	writeJSON(c, http.StatusOK, r.svc.UpdateProcess(c.Request.Context(), c.Param("id"), patch, restart))
}

func (r *Router) handleDelete(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.svc.DeleteProcess(c.Request.Context(), c.Param("id")))
}

func (r *Router) byID(fn func(context.Context, string) facade.OperationResult) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeJSON(c, http.StatusOK, fn(c.Request.Context(), c.Param("id")))
	}
}

func (r *Router) all(fn func(context.Context) facade.OperationResult) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeJSON(c, http.StatusOK, fn(c.Request.Context()))
	}
}

func (r *Router) handleMetrics(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.svc.GetMetrics(c.Request.Context()))
}

func (r *Router) handleVersion(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.svc.Version(c.Request.Context()))
}

// handleEvents streams engine events. A comment-only ping keeps idle
// connections open through proxies.
func (r *Router) handleEvents(c *gin.Context) {
	events, cancel := r.svc.Subscribe(64)
	defer cancel()
	ping := time.NewTicker(r.heartbeat)
	defer ping.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Render(-1, sse.Event{Event: "ready", Data: gin.H{"basePath": r.basePath}})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{Id: ev.ID, Event: string(ev.Type), Data: ev})
			return true
		case <-ping.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		case <-c.Request.Context().Done():
			return false
		}
	})
}
