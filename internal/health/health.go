// Package health aggregates dependency probes into the HTTP /health answer
// and the standard gRPC health service.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

type check struct {
	name     string
	critical bool
	probe    Probe
}

// Report is the /health response body.
type Report struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Healthy reports whether every critical probe passed.
func (r Report) Healthy() bool { return r.Status == StatusOK }

// Checker runs its probes on demand. Only critical probes decide the overall
// status; the others are reported for information.
type Checker struct {
	service string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	checks []check
}

func NewChecker(service string, timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{service: service, timeout: timeout, logger: logger.With("component", "health")}
}

// Critical adds a probe whose failure makes the service unhealthy.
func (c *Checker) Critical(name string, p Probe) {
	c.add(check{name: name, critical: true, probe: p})
}

// Optional adds a probe that is reported but never fails the service.
func (c *Checker) Optional(name string, p Probe) {
	c.add(check{name: name, probe: p})
}

func (c *Checker) add(ch check) {
	c.mu.Lock()
	c.checks = append(c.checks, ch)
	c.mu.Unlock()
}

func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	report := Report{Status: StatusOK, Service: c.service}
	if len(checks) > 0 {
		report.Checks = make(map[string]string, len(checks))
	}
	for _, ch := range checks {
		if err := ch.probe(ctx); err != nil {
			c.logger.Warn("probe failed", "check", ch.name, "critical", ch.critical, "error", err)
			report.Checks[ch.name] = StatusError
			if ch.critical {
				report.Status = StatusError
			}
			continue
		}
		report.Checks[ch.name] = StatusOK
	}
	return report
}

// ServeHTTP answers 200 when healthy and 503 otherwise.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := c.Check(r.Context())
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// Watch mirrors the checker onto srv every interval until ctx is done. The
// overall ("") service and the named service share one status.
func (c *Checker) Watch(ctx context.Context, srv *health.Server, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if !c.Check(ctx).Healthy() {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		srv.SetServingStatus("", status)
		srv.SetServingStatus(c.service, status)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
