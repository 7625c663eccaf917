package models

import "time"

// VersionResponse describes the running binary.
type VersionResponse struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	GoVersion  string `json:"go_version,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
	GitCommit  string `json:"git_commit,omitempty"`
}

// HealthResponse is the aggregate health report. Components are sorted by
// name.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components []ComponentHealth `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Component returns the named component report, if present.
func (r *HealthResponse) Component(name string) (ComponentHealth, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c, true
		}
	}
	return ComponentHealth{}, false
}

// ComponentHealth is the last check result of one dependency.
type ComponentHealth struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	LastCheck  time.Time `json:"last_check"`
	Error      string    `json:"error,omitempty"`
}

// ProbeResponse answers liveness and readiness probes. Failing lists the
// components that keep the process from being ready.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Failing   []string  `json:"failing,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
