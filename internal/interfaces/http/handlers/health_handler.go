package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks the liveness of one dependency.
type Pinger func(ctx context.Context) error

// HealthHandler reports service and dependency health.
type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler creates a handler over the given dependency checks. Nil
// pingers are skipped so optional backends need no conditionals at the call
// site.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	active := make(map[string]Pinger, len(checks))
	for name, ping := range checks {
		if ping != nil {
			active[name] = ping
		}
	}
	return &HealthHandler{checks: active}
}

// HealthCheck handles GET /health.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]string, len(h.checks))
	)
	wg.Add(len(h.checks))
	for name, ping := range h.checks {
		go func(name string, ping Pinger) {
			defer wg.Done()
			status := "ok"
			if err := ping(ctx); err != nil {
				status = "error: " + err.Error()
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, ping)
	}
	wg.Wait()

	httpStatus := http.StatusOK
	overall := "healthy"
	for _, status := range results {
		if status != "ok" {
			httpStatus = http.StatusServiceUnavailable
			overall = "unhealthy"
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    overall,
		"timestamp": time.Now().UTC(),
		"checks":    results,
	})
}

// ReadinessCheck handles GET /ready. Readiness currently mirrors health.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	h.HealthCheck(c)
}
