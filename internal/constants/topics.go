package constants

import "time"

// Per-device channel topic formats, parameterized by thing name.
const (
	TelemetryTopicFormat = "devices/%s/telemetry"
	CommandsTopicFormat  = "devices/%s/commands"
)

// Defaults applied when the configuration leaves a value unset.
const (
	DefaultTelemetryInterval = 5 * time.Second
	DefaultCommandQueueSize  = 16
	DefaultQOS               = 1
)
