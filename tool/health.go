package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// HealthChecker is implemented by tools that can probe their external
// collaborator (a remote API, a local binary). Tools without one are assumed
// healthy and skipped by the monitor.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthState is the outcome of one health probe.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthReport is the result of probing one tool's collaborator.
type HealthReport struct {
	Tool      string      `json:"tool_name"`
	State     HealthState `json:"state"`
	Error     string      `json:"error,omitempty"`
	LatencyMS int64       `json:"latency_ms"`
	CheckedAt time.Time   `json:"checked_at"`
}

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

func parseCronExpressionUTC(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// MonitorConfig controls background collaborator health probing.
type MonitorConfig struct {
	Registry *Registry
	// Schedule is a UTC five-field cron expression.
	Schedule string
	Logger   *slog.Logger
	OnReport func(report HealthReport)
	// ProbeTimeout bounds one probe; defaults to 10s.
	ProbeTimeout time.Duration
}

// Monitor periodically probes every health-checkable tool in a sealed
// registry. Probe outcomes are observational only: the registry is immutable,
// so an unhealthy collaborator never changes routing, it is just logged and
// reported.
type Monitor struct {
	registry     *Registry
	logger       *slog.Logger
	onReport     func(report HealthReport)
	probeTimeout time.Duration

	cron *cron.Cron
}

// NewMonitor creates a health monitor on the given cron schedule.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Registry == nil {
		return nil, errors.New("tool: health monitor registry is nil")
	}
	schedule, err := parseCronExpressionUTC(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("tool: health monitor schedule: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	onReport := cfg.OnReport
	if onReport == nil {
		onReport = func(HealthReport) {}
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}

	m := &Monitor{
		registry:     cfg.Registry,
		logger:       logger,
		onReport:     onReport,
		probeTimeout: probeTimeout,
		cron:         cron.New(cron.WithLocation(time.UTC)),
	}
	m.cron.Schedule(schedule, cron.FuncJob(func() {
		m.RunOnce(context.Background())
	}))
	return m, nil
}

// Start begins scheduled probing.
func (m *Monitor) Start() {
	m.cron.Start()
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (m *Monitor) Stop(ctx context.Context) error {
	stopped := m.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one probe sweep over the registry.
func (m *Monitor) RunOnce(ctx context.Context) []HealthReport {
	reports := make([]HealthReport, 0)
	for _, entry := range m.registry.Catalog() {
		t, ok := m.registry.Lookup(entry.Name)
		if !ok {
			continue
		}
		checker, ok := t.(HealthChecker)
		if !ok {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
		start := time.Now()
		err := checker.CheckHealth(probeCtx)
		cancel()

		report := HealthReport{
			Tool:      entry.Name,
			State:     HealthHealthy,
			LatencyMS: time.Since(start).Milliseconds(),
			CheckedAt: start.UTC(),
		}
		if err != nil {
			report.State = HealthUnhealthy
			report.Error = err.Error()
			m.logger.Warn("tool collaborator unhealthy",
				"tool", entry.Name,
				"error", err,
			)
		}
		m.onReport(report)
		reports = append(reports, report)
	}
	return reports
}
