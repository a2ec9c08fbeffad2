package v1

import (
	"context"
	"log/slog"
	"time"

	"github.com/quka-ai/supportchat/app/core"
)

const (
	HEALTH_STATUS_HEALTHY   = "healthy"
	HEALTH_STATUS_UNHEALTHY = "unhealthy"

	SERVICE_UP       = "up"
	SERVICE_DOWN     = "down"
	SERVICE_DISABLED = "disabled"

	healthProbeTimeout = 5 * time.Second
)

type HealthServices struct {
	Database string `json:"database"`
	LLM      string `json:"llm"`
	Cache    string `json:"cache"`
}

type HealthReport struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Services  HealthServices `json:"services"`
}

func (r *HealthReport) Healthy() bool {
	return r.Status == HEALTH_STATUS_HEALTHY
}

type HealthLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewHealthLogic(ctx context.Context, core *core.Core) *HealthLogic {
	return &HealthLogic{
		ctx:  ctx,
		core: core,
	}
}

// Check probes the database and the llm provider. The cache is reported
// but never makes the service unhealthy.
func (l *HealthLogic) Check() *HealthReport {
	ctx, cancel := context.WithTimeout(l.ctx, healthProbeTimeout)
	defer cancel()

	report := &HealthReport{
		Timestamp: time.Now(),
		Services: HealthServices{
			Database: SERVICE_UP,
			LLM:      SERVICE_UP,
			Cache:    SERVICE_DISABLED,
		},
	}

	if err := l.core.Store().Ping(ctx); err != nil {
		slog.Warn("database health check failed", slog.String("error", err.Error()))
		report.Services.Database = SERVICE_DOWN
	}
	if !l.core.Srv().AI().HealthCheck(ctx) {
		report.Services.LLM = SERVICE_DOWN
	}
	if client := l.core.Redis(); client != nil {
		report.Services.Cache = SERVICE_UP
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("redis health check failed", slog.String("error", err.Error()))
			report.Services.Cache = SERVICE_DOWN
		}
	}

	report.Status = HEALTH_STATUS_HEALTHY
	if report.Services.Database == SERVICE_DOWN || report.Services.LLM == SERVICE_DOWN {
		report.Status = HEALTH_STATUS_UNHEALTHY
	}
	return report
}
