package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	// Go runtime metrics are always present
	if len(mfs) == 0 {
		t.Error("expected metrics to be registered, got none")
	}
}

func TestRegisterWith(t *testing.T) {
	reg := prometheus.NewRegistry()

	RegisterWith(reg)

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	expectedCount := 11
	if len(allMetrics) != expectedCount {
		t.Errorf("expected %d metrics in allMetrics, got %d", expectedCount, len(allMetrics))
	}
}

func TestMetricLabels(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{
			name: "APIRequestsTotal",
			fn: func() {
				APIRequestsTotal.WithLabelValues("/api/v1/sources/oauth", "GET", "200").Inc()
			},
		},
		{
			name: "APIRequestDuration",
			fn: func() {
				APIRequestDuration.WithLabelValues("/api/v1/sources/oauth", "GET").Observe(0.05)
			},
		},
		{
			name: "DiscoveryFetchesTotal",
			fn: func() {
				DiscoveryFetchesTotal.WithLabelValues("success").Inc()
			},
		},
		{
			name: "DiscoveryFetchDuration",
			fn: func() {
				DiscoveryFetchDuration.WithLabelValues("http_error").Observe(0.2)
			},
		},
		{
			name: "SourceValidationsTotal",
			fn: func() {
				SourceValidationsTotal.WithLabelValues("generic-oidc", "valid").Inc()
			},
		},
		{
			name: "JWKSRefreshRunsTotal",
			fn: func() {
				JWKSRefreshRunsTotal.WithLabelValues("success").Inc()
			},
		},
		{
			name: "JWKSRefreshSourcesTotal",
			fn: func() {
				JWKSRefreshSourcesTotal.WithLabelValues("updated").Add(3)
			},
		},
		{
			name: "JWKSRefreshDuration",
			fn: func() {
				JWKSRefreshDuration.Observe(1.5)
			},
		},
		{
			name: "JWKSRefreshLastSuccess",
			fn: func() {
				JWKSRefreshLastSuccess.SetToCurrentTime()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			tt.fn()
		})
	}
}

func TestLabelConstants(t *testing.T) {
	labels := map[string]string{
		"endpoint":      LabelEndpoint,
		"method":        LabelMethod,
		"status":        LabelStatus,
		"outcome":       LabelOutcome,
		"provider_type": LabelProviderType,
		"result":        LabelResult,
	}

	for expected, got := range labels {
		if got != expected {
			t.Errorf("label constant mismatch: expected %q, got %q", expected, got)
		}
	}
}

func TestNamespaceAndSubsystems(t *testing.T) {
	if Namespace != "idbroker" {
		t.Errorf("expected namespace 'idbroker', got %q", Namespace)
	}

	subsystems := map[string]string{
		"api":          SubsystemAPI,
		"discovery":    SubsystemDiscovery,
		"sources":      SubsystemSources,
		"jwks_refresh": SubsystemRefresh,
	}

	for expected, got := range subsystems {
		if got != expected {
			t.Errorf("subsystem constant mismatch: expected %q, got %q", expected, got)
		}
	}
}
