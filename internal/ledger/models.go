package ledger

import "time"

// CommandRecord is the stored form of a partner command. The full command
// payload is kept as JSON; the columns the relay queries on (device, creation
// time, ack state) are broken out.
type CommandRecord struct {
	CommandID     string     `gorm:"primaryKey;column:command_id"`
	DeviceID      string     `gorm:"index;column:device_id"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime:false"`
	DeviceAckedAt *time.Time `gorm:"column:device_acked_at"`
	Payload       []byte     `gorm:"column:payload"`
}

// TableName keeps the table name stable regardless of gorm pluralization
// settings.
func (CommandRecord) TableName() string {
	return "commands"
}

// EnrollmentRecord is the stored form of a partner program enrollment,
// updated from enrollment webhook events.
type EnrollmentRecord struct {
	EnrollmentID string    `gorm:"primaryKey;column:enrollment_id"`
	SiteID       string    `gorm:"column:site_id"`
	ProgramID    string    `gorm:"column:program_id"`
	Status       string    `gorm:"column:status"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
	Payload      []byte    `gorm:"column:payload"`
}

// TableName keeps the table name stable regardless of gorm pluralization
// settings.
func (EnrollmentRecord) TableName() string {
	return "enrollments"
}
