// Package provider implements connection-capable RPC provider handles.
package provider

import (
	"context"
	"time"
)

// Provider is a generic RPC provider handle. A handle is opened once per chain
// at startup and shared by every task spawned for that chain.
type Provider interface {
	// Name returns the provider identifier (for logging/metrics).
	Name() string

	// Call makes an RPC call.
	Call(ctx context.Context, method string, params []any) (any, error)

	// Healthy reports whether the provider is currently usable.
	Healthy() bool

	// Close cleans up resources.
	Close() error
}

// HealthStatus tracks a provider's availability.
type HealthStatus struct {
	Available     bool
	LastSuccessAt time.Time
	LastFailureAt time.Time
	ErrorRate     float64
}
