package database

import (
	"context"
	"time"
)

// HealthStatus reports connectivity and connection pool statistics for
// the read pool, the surface exposed through the daemon's /doctor check.
type HealthStatus struct {
	Status          string        `json:"status"`
	ResponseTime    time.Duration `json:"response_time_ms"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
}

// Health checks database connectivity via the read pool and reports
// connection pool statistics.
func Health(ctx context.Context, c *Client) (*HealthStatus, error) {
	start := time.Now()

	if err := c.readDB.PingContext(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start)}, err
	}

	stats := c.readDB.Stats()
	return &HealthStatus{
		Status:          "healthy",
		ResponseTime:    time.Since(start),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
	}, nil
}
