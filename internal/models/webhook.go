package models

import (
	"strings"
	"time"
)

// WebhookEventFamily groups partner webhook event types into the families the
// relay knows how to handle.
type WebhookEventFamily string

const (
	FamilyEnrollment WebhookEventFamily = "enrollment"
	FamilyCommand    WebhookEventFamily = "command"
	FamilyEvent      WebhookEventFamily = "event"
	FamilyUnknown    WebhookEventFamily = "unknown"
)

// Enrollment mirrors the partner program enrollment record carried in
// enrollment webhook events.
type Enrollment struct {
	ID           string     `json:"id"`
	DeviceIDs    []string   `json:"device_ids"`
	SiteID       string     `json:"site_id"`
	ProgramID    string     `json:"program_id"`
	EnrollMethod string     `json:"enroll_method"`
	Status       string     `json:"status"`
	StatusReason string     `json:"status_reason,omitempty"`
	EnrolledAt   *time.Time `json:"enrolled_at,omitempty"`
	UnenrolledAt *time.Time `json:"unenrolled_at,omitempty"`
}

// ProgramEvent is an informational grid-program event. The relay records its
// receipt but takes no action on it.
type ProgramEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// WebhookEvent is the tagged envelope for partner webhook deliveries. The
// event type string selects which of the payload fields is populated, one
// case per {enrollment, command, event} family. Unknown event types are a
// no-op, not an error.
type WebhookEvent struct {
	EventType  string        `json:"event_type"`
	Command    *Command      `json:"command,omitempty"`
	Enrollment *Enrollment   `json:"enrollment,omitempty"`
	Event      *ProgramEvent `json:"event,omitempty"`
}

// Family returns the event family for the envelope's event type, keyed on the
// prefix before the first dot (e.g. "command.created" -> FamilyCommand).
func (e WebhookEvent) Family() WebhookEventFamily {
	prefix, _, _ := strings.Cut(e.EventType, ".")

	switch WebhookEventFamily(prefix) {
	case FamilyEnrollment:
		return FamilyEnrollment
	case FamilyCommand:
		return FamilyCommand
	case FamilyEvent:
		return FamilyEvent
	default:
		return FamilyUnknown
	}
}
