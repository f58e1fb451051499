package handler

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetadataReporter is implemented by dependencies that expose extra
// details for the readiness report.
type MetadataReporter interface {
	HealthMetadata() map[string]any
}

// Ready returns readiness check with dependencies. Nil dependencies are
// left out of the report.
func Ready(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]HealthCheckResult, len(deps))
		var mu sync.Mutex
		var wg sync.WaitGroup
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			wg.Add(1)
			go func(name string, dep Pinger) {
				defer wg.Done()
				result := check(ctx, dep)
				mu.Lock()
				checks[name] = result
				mu.Unlock()
			}(name, dep)
		}
		wg.Wait()

		status, code := "ready", http.StatusOK
		for _, c := range checks {
			if c.Status != "up" {
				status, code = "not_ready", http.StatusServiceUnavailable
				break
			}
		}

		writeJSON(w, code, map[string]any{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}

func check(ctx context.Context, dep Pinger) HealthCheckResult {
	start := time.Now()
	err := dep.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	result := HealthCheckResult{Status: "up", LatencyMs: latency.Milliseconds()}
	if m, ok := dep.(MetadataReporter); ok {
		result.Metadata = m.HealthMetadata()
	}
	return result
}
