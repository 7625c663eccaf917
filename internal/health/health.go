// Package health runs component health checks for idbroker processes.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the component is degraded but functional.
	StatusDegraded Status = "degraded"
	// StatusUnknown indicates the health status is unknown.
	StatusUnknown Status = "unknown"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
	LastCheck time.Time     `json:"last_check"`
	Error     string        `json:"error,omitempty"`
}

// HealthChecker defines the interface for health check providers.
type HealthChecker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// ManagerConfig holds configuration for the health manager.
type ManagerConfig struct {
	// Timeout is the timeout for individual health checks.
	Timeout time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{Timeout: 5 * time.Second}
}

// Manager runs registered checks concurrently and keeps the last results.
type Manager struct {
	mu       sync.RWMutex
	checkers []HealthChecker
	results  map[string]CheckResult
	timeout  time.Duration
	logger   *slog.Logger
}

// NewManager creates a new health manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultManagerConfig().Timeout
	}

	return &Manager{
		results: make(map[string]CheckResult),
		timeout: cfg.Timeout,
		logger:  logger.With("component", "health-manager"),
	}
}

// Register adds a health checker to the manager.
func (m *Manager) Register(checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
	m.logger.Debug("registered health checker", "name", checker.Name())
}

// CheckAll runs every registered check, each bounded by the manager timeout.
func (m *Manager) CheckAll(ctx context.Context) map[string]CheckResult {
	m.mu.RLock()
	checkers := make([]HealthChecker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var (
		wg    sync.WaitGroup
		resMu sync.Mutex
	)
	for _, checker := range checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			result := c.Check(checkCtx)

			resMu.Lock()
			results[c.Name()] = result
			resMu.Unlock()
		}(checker)
	}
	wg.Wait()

	m.mu.Lock()
	for name, result := range results {
		m.results[name] = result
		if result.Status == StatusUnhealthy {
			m.logger.Warn("health check failed", "name", name, "error", result.Error)
		}
	}
	m.mu.Unlock()

	return results
}

// GetResult returns the last result for a specific checker.
func (m *Manager) GetResult(name string) (CheckResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.results[name]
	return result, ok
}

// IsReady reports whether no component is unhealthy or unknown.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallStatus(ctx).Status.serving()
}

func (s Status) serving() bool {
	return s == StatusHealthy || s == StatusDegraded
}

// OverallStatus is the aggregate of all component results.
type OverallStatus struct {
	Status     Status                 `json:"status"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// GetOverallStatus runs all checks and folds them into one status. Unhealthy
// dominates unknown, which dominates degraded.
func (m *Manager) GetOverallStatus(ctx context.Context) OverallStatus {
	results := m.CheckAll(ctx)

	overall := OverallStatus{
		Status:     StatusHealthy,
		Components: results,
		Timestamp:  time.Now(),
	}

	for _, result := range results {
		if severity(result.Status) > severity(overall.Status) {
			overall.Status = result.Status
		}
	}

	return overall
}

func severity(s Status) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnknown:
		return 2
	default:
		return 3
	}
}

// Handler serves /health, /health/live and /health/ready for processes
// without a gin router, such as the refresh worker.
func Handler(manager *Manager, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Error("failed to encode health response", "error", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := manager.GetOverallStatus(r.Context())
		code := http.StatusOK
		if !status.Status.serving() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive", "timestamp": time.Now().Format(time.RFC3339)})
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if manager.IsReady(r.Context()) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "timestamp": time.Now().Format(time.RFC3339)})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "timestamp": time.Now().Format(time.RFC3339)})
	})

	return mux
}

// PingChecker reports healthy when its ping function succeeds.
type PingChecker struct {
	name    string
	ping    func(ctx context.Context) error
	okMsg   string
	failMsg string
}

// NewDatabaseChecker creates a checker around a database ping.
func NewDatabaseChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, okMsg: "database connection successful", failMsg: "database connection failed"}
}

// NewVaultChecker creates a checker around a secret provider health check.
// Vault problems degrade the service rather than fail it, since secrets are
// cached after startup.
func NewVaultChecker(name string, check func(ctx context.Context) error) HealthChecker {
	return NewComponentChecker(name, func(ctx context.Context) (Status, string, error) {
		if err := check(ctx); err != nil {
			return StatusDegraded, "secret store unreachable", err
		}
		return StatusHealthy, "secret store reachable", nil
	})
}

// Name returns the name of the component.
func (c *PingChecker) Name() string {
	return c.name
}

// Check performs the health check.
func (c *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := c.ping(ctx)

	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   c.okMsg,
		Duration:  time.Since(start),
		LastCheck: start,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = c.failMsg
		result.Error = err.Error()
	}
	return result
}

// ComponentChecker wraps a function that computes its own status.
type ComponentChecker struct {
	name  string
	check func(ctx context.Context) (Status, string, error)
}

// NewComponentChecker creates a new component health checker.
func NewComponentChecker(name string, check func(ctx context.Context) (Status, string, error)) *ComponentChecker {
	return &ComponentChecker{name: name, check: check}
}

// Name returns the name of the component.
func (c *ComponentChecker) Name() string {
	return c.name
}

// Check performs the health check.
func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	status, message, err := c.check(ctx)

	result := CheckResult{
		Name:      c.name,
		Status:    status,
		Message:   message,
		Duration:  time.Since(start),
		LastCheck: start,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

var (
	_ HealthChecker = (*PingChecker)(nil)
	_ HealthChecker = (*ComponentChecker)(nil)
)
