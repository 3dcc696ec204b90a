package models

import "time"

// CommandBatchEntry pairs a command payload with its ledger creation time.
// The creation time is the device's ack watermark key.
type CommandBatchEntry struct {
	CreatedAt   time.Time `json:"created_at"`
	CommandJSON Command   `json:"command_json"`
}

// CommandBatch is the message published on a device's commands channel. The
// entries are ordered by creation time ascending and the device applies them
// in array order.
type CommandBatch struct {
	Commands []CommandBatchEntry `json:"commands"`
}
