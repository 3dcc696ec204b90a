package models

import "time"

// CommandStatus is the partner-side lifecycle status of a command.
type CommandStatus string

const (
	CommandStatusCanceled CommandStatus = "CANCELED"
	CommandStatusOK       CommandStatus = "OK"
	CommandStatusOptOut   CommandStatus = "OPT_OUT"
)

// DeviceStatus reports whether a command reached the device.
type DeviceStatus string

const (
	DeviceStatusFailed  DeviceStatus = "FAILED"
	DeviceStatusOK      DeviceStatus = "OK"
	DeviceStatusPending DeviceStatus = "PENDING"
)

// BatteryMode is the operating mode a battery command puts the device in.
type BatteryMode string

const (
	ModeBackup          BatteryMode = "BACKUP"
	ModeCharge          BatteryMode = "CHARGE"
	ModeDischarge       BatteryMode = "DISCHARGE"
	ModeSavings         BatteryMode = "SAVINGS"
	ModeSelfConsumption BatteryMode = "SELF_CONSUMPTION"
	ModeStandby         BatteryMode = "STANDBY"
)

// PowerMode selects how the setpoint is interpreted.
type PowerMode string

const (
	PowerModeFollowLoad PowerMode = "FOLLOW_LOAD"
	PowerModeSetpoint   PowerMode = "SETPOINT"
)

// BatteryCommand is a single battery directive embedded in a Command.
// Immutable once embedded.
type BatteryCommand struct {
	Status               CommandStatus `json:"status,omitempty"`
	DeviceStatus         DeviceStatus  `json:"device_status,omitempty"`
	Mode                 BatteryMode   `json:"mode,omitempty"`
	PowerMode            *PowerMode    `json:"power_mode,omitempty"`
	SetpointWatts        *int          `json:"setpoint_w,omitempty"`
	GridImportEnabled    *bool         `json:"grid_import_enabled,omitempty"`
	GridExportEnabled    *bool         `json:"grid_export_enabled,omitempty"`
	BackupReservePercent *int          `json:"backup_reserve_percentage,omitempty"`
	MaxChargePercent     *int          `json:"max_charge_percentage,omitempty"`
}

// Command is a partner-issued directive targeted at a device. Commands are
// upserted by id from webhook events and never deleted, only superseded by a
// newer upsert with the same id.
type Command struct {
	ID                  string           `json:"id"`
	DeviceID            string           `json:"device_id"`
	Status              CommandStatus    `json:"status"`
	StartAt             time.Time        `json:"start_at"`
	EndsAt              time.Time        `json:"ends_at"`
	DurationSeconds     *int             `json:"duration_s,omitempty"`
	IsPreparatoryAction bool             `json:"is_preparatory_action"`
	BatteryCommands     []BatteryCommand `json:"battery_commands"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	DeviceAckedAt       *time.Time       `json:"device_acked_at,omitempty"`
}
