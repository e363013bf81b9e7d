package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker manages liveness and per-component readiness. /healthz
// answers as long as the process runs; /readyz flips to OK only once every
// registered component has reported ready (Postgres connected, NATS
// subscribed, recovery replay done).
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]bool
	startTime  time.Time
}

// NewHealthChecker registers the named components as not-ready. /readyz
// stays 503 until each one is marked ready.
func NewHealthChecker(components ...string) *HealthChecker {
	h := &HealthChecker{
		components: make(map[string]bool, len(components)),
		startTime:  time.Now(),
	}
	for _, c := range components {
		h.components[c] = false
	}
	return h
}

// SetComponent marks one component ready or not ready. Unregistered names
// are added, so late-wired components still gate readiness.
func (h *HealthChecker) SetComponent(name string, ready bool) {
	h.mu.Lock()
	h.components[name] = ready
	h.mu.Unlock()
}

// IsReady reports whether every registered component is ready. A checker
// with no components is never ready; something must claim readiness.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.components) == 0 {
		return false
	}
	for _, ok := range h.components {
		if !ok {
			return false
		}
	}
	return true
}

// LivenessHandler returns HTTP 200 if the process is alive.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 with the component map if the service is
// ready, 503 otherwise. The per-component breakdown tells an operator which
// dependency is holding readiness back.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	components := make(map[string]bool, len(h.components))
	for k, v := range h.components {
		components[k] = v
	}
	h.mu.RUnlock()

	status := "ready"
	code := http.StatusOK
	if !h.IsReady() {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     status,
		"components": components,
	})
}
