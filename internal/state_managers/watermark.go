package state_managers

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/pkg/file"
)

// WatermarkStateManager owns the device's ack watermark: the creation time of
// the most recent command the device has applied. The watermark is persisted
// to a single text file holding an RFC 3339 timestamp (empty or absent file
// means unset) and only ever moves forward. It is the single source of truth
// for the watermark; all reads and writes go through its serialized
// accessors.
type WatermarkStateManager struct {
	filePath   string
	fileClient file.FileOperations
	logger     zerolog.Logger

	mu        sync.Mutex
	watermark *time.Time
}

// NewWatermarkStateManager initializes a new WatermarkStateManager.
func NewWatermarkStateManager(filePath string, fileClient file.FileOperations, logger zerolog.Logger) *WatermarkStateManager {
	return &WatermarkStateManager{
		filePath:   filePath,
		fileClient: fileClient,
		logger:     logger,
	}
}

// Load reads the persisted watermark from disk. An absent file leaves the
// watermark unset.
func (sm *WatermarkStateManager) Load() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	data, err := sm.fileClient.ReadFile(sm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			sm.watermark = nil
			return nil
		}
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to read watermark file")
		return err
	}

	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		sm.watermark = nil
		return nil
	}

	parsed, err := time.Parse(time.RFC3339Nano, trimmed)
	if err != nil {
		return fmt.Errorf("invalid watermark %q in %s: %w", trimmed, sm.filePath, err)
	}

	sm.watermark = &parsed
	return nil
}

// Current returns a copy of the watermark, or nil when unset.
func (sm *WatermarkStateManager) Current() *time.Time {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.watermark == nil {
		return nil
	}
	t := *sm.watermark
	return &t
}

// CurrentString returns the watermark as an RFC 3339 string for the telemetry
// envelope, or nil when unset.
func (sm *WatermarkStateManager) CurrentString() *string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.watermark == nil {
		return nil
	}
	s := sm.watermark.Format(time.RFC3339Nano)
	return &s
}

// Covers reports whether the watermark is set and at or past t, meaning a
// command created at t has already been acknowledged.
func (sm *WatermarkStateManager) Covers(t time.Time) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return sm.watermark != nil && !sm.watermark.Before(t)
}

// Advance moves the watermark forward to t. The write is flushed to stable
// storage before the in-memory value changes, so a crash mid-batch cannot
// lose an already-applied ack. Calls with t at or before the current
// watermark are no-ops; the watermark never moves backward.
func (sm *WatermarkStateManager) Advance(t time.Time) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.watermark != nil && !t.After(*sm.watermark) {
		return nil
	}

	encoded := t.Format(time.RFC3339Nano)
	if err := sm.fileClient.WriteFileSync(sm.filePath, []byte(encoded)); err != nil {
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to persist watermark")
		return err
	}

	sm.watermark = &t
	return nil
}
