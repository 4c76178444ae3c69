package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName    = "autotab-api"
	serviceVersion = "0.1.0"

	probeTimeout = 5 * time.Second
)

// Pinger is a dependency the deep health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	deps map[string]Pinger
}

// NewHealthHandler probes deps by name. A nil Pinger is an optional
// dependency that is not configured and never fails the check.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Service: serviceName, Version: serviceVersion})
}

// DeepHealth pings every dependency concurrently and answers 503 when any
// configured one fails.
// @Summary Readiness probe with dependency checks
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health/deep [get]
func (h *HealthHandler) DeepHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		report = make(map[string]string, len(h.deps))
		failed bool
	)
	// optional entries are filled in before any ping goroutine writes
	for name, dep := range h.deps {
		if dep == nil {
			report[name] = "not configured"
		}
	}
	var g errgroup.Group
	for name, dep := range h.deps {
		if dep == nil {
			continue
		}
		g.Go(func() error {
			err := dep.Ping(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report[name] = "unhealthy: " + err.Error()
				failed = true
				return nil
			}
			report[name] = "healthy"
			return nil
		})
	}
	g.Wait()

	resp := HealthResponse{Status: "healthy", Service: serviceName, Version: serviceVersion, Dependencies: report}
	code := http.StatusOK
	if failed {
		resp.Status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
