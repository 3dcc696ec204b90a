// Package ledger is the server-side store of partner commands targeted at
// devices, including their device-acknowledgement state. The ledger is the
// durable source of truth for command delivery: partner notification is
// at-least-once and reconciled against it on every telemetry cycle.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voltbridge/battery-relay/internal/models"
)

// NotifyFunc reports a command's arrival on the device to the upstream
// partner platform. A non-nil error leaves the command unacked so it is
// retried on the next telemetry cycle.
type NotifyFunc func(ctx context.Context, cmd models.Command) error

// CommandRepository stores partner commands and their ack state.
type CommandRepository interface {
	Upsert(ctx context.Context, cmd models.Command) error
	Unacked(ctx context.Context, deviceID string) ([]models.Command, error)
	AckUpTo(ctx context.Context, deviceID string, watermark time.Time, notify NotifyFunc) (int, error)
	SaveEnrollment(ctx context.Context, enrollment models.Enrollment) error
}

type commandRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewCommandRepository opens the database through the given connector and
// migrates the ledger schema.
func NewCommandRepository(connect ConnectorFunc, logger zerolog.Logger) (CommandRepository, error) {
	db, err := connect()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&CommandRecord{}, &EnrollmentRecord{}); err != nil {
		return nil, err
	}

	return &commandRepository{db: db, logger: logger}, nil
}

// Upsert inserts or replaces a command keyed by its id. A conflicting upsert
// always clears device_acked_at: a re-issued command is, by contract,
// un-acknowledged again even if an older version had been acked.
func (r *commandRepository) Upsert(ctx context.Context, cmd models.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to serialize command %s: %w", cmd.ID, err)
	}

	record := CommandRecord{
		CommandID: cmd.ID,
		DeviceID:  cmd.DeviceID,
		CreatedAt: cmd.CreatedAt,
		UpdatedAt: cmd.UpdatedAt,
		Payload:   payload,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "command_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"device_id":       record.DeviceID,
			"created_at":      record.CreatedAt,
			"updated_at":      record.UpdatedAt,
			"payload":         record.Payload,
			"device_acked_at": nil,
		}),
	}).Create(&record)

	if result.Error != nil {
		return fmt.Errorf("failed to upsert command %s: %w", cmd.ID, result.Error)
	}

	return nil
}

// Unacked returns all commands for the device with device_acked_at unset,
// ordered by created_at ascending so the device applies them in order. Ties
// on created_at keep stable storage order via the command id.
func (r *commandRepository) Unacked(ctx context.Context, deviceID string) ([]models.Command, error) {
	var records []CommandRecord

	result := r.db.WithContext(ctx).
		Where("device_id = ? AND device_acked_at IS NULL", deviceID).
		Order("created_at ASC, command_id ASC").
		Find(&records)

	if result.Error != nil {
		return nil, fmt.Errorf("failed to query unacked commands for %s: %w", deviceID, result.Error)
	}

	commands := make([]models.Command, 0, len(records))
	for _, record := range records {
		cmd, err := r.toCommand(record)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}

// AckUpTo marks acked every command for the device with created_at at or
// before the watermark and device_acked_at unset, notifying the partner
// platform per command first. A failed notification skips the mark for that
// command only; independently eligible commands still ack. The marking is a
// conditional update guarded by device_acked_at IS NULL, so concurrent
// handlers for the same device race safely. Returns the number of commands
// acked.
func (r *commandRepository) AckUpTo(ctx context.Context, deviceID string, watermark time.Time, notify NotifyFunc) (int, error) {
	var records []CommandRecord

	result := r.db.WithContext(ctx).
		Where("device_id = ? AND created_at <= ? AND device_acked_at IS NULL", deviceID, watermark).
		Order("created_at ASC, command_id ASC").
		Find(&records)

	if result.Error != nil {
		return 0, fmt.Errorf("failed to query ackable commands for %s: %w", deviceID, result.Error)
	}

	acked := 0
	var ackErrors []error

	for _, record := range records {
		cmd, err := r.toCommand(record)
		if err != nil {
			ackErrors = append(ackErrors, err)
			continue
		}

		if notify != nil {
			if err := notify(ctx, cmd); err != nil {
				r.logger.Warn().Err(err).Str("command_id", cmd.ID).Msg("Upstream notify failed, leaving command unacked")
				ackErrors = append(ackErrors, fmt.Errorf("notify failed for command %s: %w", cmd.ID, err))
				continue
			}
		}

		update := r.db.WithContext(ctx).
			Model(&CommandRecord{}).
			Where("command_id = ? AND device_acked_at IS NULL", record.CommandID).
			Update("device_acked_at", time.Now().UTC())

		if update.Error != nil {
			ackErrors = append(ackErrors, fmt.Errorf("failed to ack command %s: %w", record.CommandID, update.Error))
			continue
		}

		if update.RowsAffected > 0 {
			acked++
		}
	}

	return acked, errors.Join(ackErrors...)
}

// SaveEnrollment inserts or replaces an enrollment record keyed by its id.
func (r *commandRepository) SaveEnrollment(ctx context.Context, enrollment models.Enrollment) error {
	payload, err := json.Marshal(enrollment)
	if err != nil {
		return fmt.Errorf("failed to serialize enrollment %s: %w", enrollment.ID, err)
	}

	record := EnrollmentRecord{
		EnrollmentID: enrollment.ID,
		SiteID:       enrollment.SiteID,
		ProgramID:    enrollment.ProgramID,
		Status:       enrollment.Status,
		UpdatedAt:    time.Now().UTC(),
		Payload:      payload,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment_id"}},
		UpdateAll: true,
	}).Create(&record)

	if result.Error != nil {
		return fmt.Errorf("failed to upsert enrollment %s: %w", enrollment.ID, result.Error)
	}

	return nil
}

// toCommand decodes a stored record back into a command. The ledger columns
// are authoritative for creation time and ack state.
func (r *commandRepository) toCommand(record CommandRecord) (models.Command, error) {
	var cmd models.Command
	if err := json.Unmarshal(record.Payload, &cmd); err != nil {
		return models.Command{}, fmt.Errorf("corrupt payload for command %s: %w", record.CommandID, err)
	}

	cmd.ID = record.CommandID
	cmd.DeviceID = record.DeviceID
	cmd.CreatedAt = record.CreatedAt
	cmd.UpdatedAt = record.UpdatedAt
	cmd.DeviceAckedAt = record.DeviceAckedAt

	return cmd, nil
}
