// Package jobs runs the long administrative operations (rotation, export)
// in the background so API requests never hold a connection for the
// duration of a pg_dump.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	exportsvc "github.com/craftline/craftline-platform/domains/export/be/service"
	rotationsvc "github.com/craftline/craftline-platform/domains/rotation/be/service"
)

const (
	// QueueDefault is the queue all platform jobs run on.
	QueueDefault = "default"
	// TaskTypeRotate provisions and activates a tenant's next yearly database.
	TaskTypeRotate = "tenant:rotate"
	// TaskTypeExport produces a tenant archive.
	TaskTypeExport = "tenant:export"
)

// RotatePayload identifies the tenant and target year of a rotation job.
type RotatePayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Year     int       `json:"year"`
}

// ExportPayload identifies the tenant and year to archive.
type ExportPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Year     int       `json:"year"`
}

// NewRotateTask constructs an Asynq task for a rotation.
func NewRotateTask(payload RotatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRotate, data), nil
}

// NewExportTask constructs an Asynq task for an export.
func NewExportTask(payload ExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeExport, data), nil
}

// Tasks holds the services the job handlers delegate to.
type Tasks struct {
	coordinator *rotationsvc.Coordinator
	exporter    *exportsvc.Exporter
	logger      *zap.Logger
}

// NewTasks constructs the job handler set.
func NewTasks(coordinator *rotationsvc.Coordinator, exporter *exportsvc.Exporter, logger *zap.Logger) *Tasks {
	if coordinator == nil {
		panic("rotation coordinator is required")
	}
	if exporter == nil {
		panic("exporter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tasks{coordinator: coordinator, exporter: exporter, logger: logger}
}

// HandleRotate processes TaskTypeRotate tasks. A malformed payload is never
// retried; rotation failures are, because the coordinator compensates and
// leaves the tenant in its pre-rotation state.
func (t *Tasks) HandleRotate(ctx context.Context, task *asynq.Task) error {
	var payload RotatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("rotate payload: %w: %w", err, asynq.SkipRetry)
	}

	result, err := t.coordinator.Rotate(ctx, payload.TenantID, payload.Year)
	if err != nil {
		t.logger.Error("rotation job failed",
			zap.String("tenant_id", payload.TenantID.String()),
			zap.Int("year", payload.Year),
			zap.Error(err),
		)
		return err
	}

	t.logger.Info("rotation job finished",
		zap.String("tenant_id", payload.TenantID.String()),
		zap.String("old_db", result.OldDB),
		zap.String("new_db", result.NewDB),
	)
	return nil
}

// HandleExport processes TaskTypeExport tasks.
func (t *Tasks) HandleExport(ctx context.Context, task *asynq.Task) error {
	var payload ExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("export payload: %w: %w", err, asynq.SkipRetry)
	}

	archive, err := t.exporter.ExportTenant(ctx, payload.TenantID, payload.Year)
	if err != nil {
		t.logger.Error("export job failed",
			zap.String("tenant_id", payload.TenantID.String()),
			zap.Int("year", payload.Year),
			zap.Error(err),
		)
		return err
	}

	t.logger.Info("export job finished",
		zap.String("tenant_id", payload.TenantID.String()),
		zap.String("archive", archive.Path),
	)
	return nil
}
