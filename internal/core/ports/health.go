package ports

import "context"

// HealthChecker reports the state of one dependency on GET /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
	// Critical dependencies turn the whole service unhealthy (503). A failing
	// non-critical one only marks the report as degraded.
	Critical() bool
}
