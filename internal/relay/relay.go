// Package relay implements the backend side of the telemetry/command loop:
// on every telemetry message it advances command ack state from the device's
// reported watermark, forwards the sample upstream, then pushes the remaining
// unacked commands back down the device's commands channel.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/internal/constants"
	"github.com/voltbridge/battery-relay/internal/ledger"
	"github.com/voltbridge/battery-relay/internal/models"
	"github.com/voltbridge/battery-relay/internal/partner"
	"github.com/voltbridge/battery-relay/pkg/mqtt"
)

// Service relays telemetry and commands between devices and the partner
// platform. Handlers for different devices run concurrently; the ack path is
// a guarded conditional update and the device tolerates duplicate command
// batches, so concurrent calls for the same device are safe.
type Service struct {
	repo       ledger.CommandRepository
	notifier   partner.Notifier
	mqttClient mqtt.MQTTClient
	qos        int
	logger     zerolog.Logger
}

// NewService creates a relay service.
func NewService(repo ledger.CommandRepository, notifier partner.Notifier, mqttClient mqtt.MQTTClient,
	qos int, logger zerolog.Logger) *Service {

	return &Service{
		repo:       repo,
		notifier:   notifier,
		mqttClient: mqttClient,
		qos:        qos,
		logger:     logger,
	}
}

// ProcessTelemetry handles one telemetry delivery from a device. Internal
// partial failures (partner notification, publish) are logged and absorbed;
// anything unacked reconciles on the next telemetry cycle. The returned error
// is reserved for ledger failures the caller may want to surface.
func (s *Service) ProcessTelemetry(ctx context.Context, thingName string, msg models.TelemetryMessage) error {
	deviceID := partner.DeviceIDForThingName(thingName)
	log := s.logger.With().Str("thing_name", thingName).Logger()

	if msg.LastCommandAcked != nil {
		watermark, err := time.Parse(time.RFC3339Nano, *msg.LastCommandAcked)
		if err != nil {
			log.Warn().Err(err).Str("watermark", *msg.LastCommandAcked).Msg("Ignoring unparsable ack watermark")
		} else {
			acked, err := s.repo.AckUpTo(ctx, deviceID, watermark, s.notifyDelivered)
			if err != nil {
				log.Warn().Err(err).Msg("Some commands could not be acked, will retry next cycle")
			}
			if acked > 0 {
				log.Info().Int("acked", acked).Time("watermark", watermark).Msg("Advanced command ack state")
			}
		}
	}

	s.forwardTelemetry(ctx, deviceID, msg, log)

	unacked, err := s.repo.Unacked(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to load unacked commands: %w", err)
	}

	if len(unacked) == 0 {
		return nil
	}

	s.publishBatch(thingName, unacked, log)
	return nil
}

// notifyDelivered reports a command as delivered to the partner platform.
func (s *Service) notifyDelivered(ctx context.Context, cmd models.Command) error {
	return s.notifier.UpdateCommandStatus(ctx, cmd.ID, models.DeviceStatusOK)
}

// forwardTelemetry uploads the device sample to the partner platform. Upload
// failures are logged only; telemetry is periodic and self-healing.
func (s *Service) forwardTelemetry(ctx context.Context, deviceID string, msg models.TelemetryMessage, log zerolog.Logger) {
	payload := partner.TelemetryPayload{
		StartTime: time.Now().UTC().Format(time.RFC3339),
		DurationS: int(constants.DefaultTelemetryInterval.Seconds()),
		Telemetry: []partner.DeviceStatusSample{
			{
				DeviceID:        deviceID,
				LastIsOnline:    true,
				TelemetrySample: msg.Telemetry,
			},
		},
	}

	if err := s.notifier.LogBatteryTelemetry(ctx, payload); err != nil {
		log.Warn().Err(err).Msg("Failed to forward telemetry to partner platform")
	}
}

// publishBatch pushes the full ordered unacked set to the device's commands
// channel as a single message. The batch is re-published on every telemetry
// cycle on purpose; the device-side watermark makes redelivery idempotent.
func (s *Service) publishBatch(thingName string, commands []models.Command, log zerolog.Logger) {
	batch := models.CommandBatch{
		Commands: make([]models.CommandBatchEntry, 0, len(commands)),
	}
	for _, cmd := range commands {
		batch.Commands = append(batch.Commands, models.CommandBatchEntry{
			CreatedAt:   cmd.CreatedAt,
			CommandJSON: cmd,
		})
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		log.Error().Err(err).Msg("Failed to serialize command batch")
		return
	}

	topic := fmt.Sprintf(constants.CommandsTopicFormat, thingName)
	token := s.mqttClient.Publish(topic, byte(s.qos), false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to publish command batch")
		return
	}

	log.Info().Int("commands", len(batch.Commands)).Str("topic", topic).Msg("Relayed command batch")
}

// HandleWebhookEvent dispatches one partner webhook event by family. Command
// events upsert into the ledger, enrollment events update the enrollment
// record, informational events and unknown types are a logged no-op.
func (s *Service) HandleWebhookEvent(ctx context.Context, event models.WebhookEvent) error {
	switch event.Family() {
	case models.FamilyCommand:
		if event.Command == nil {
			return fmt.Errorf("command event %q without command payload", event.EventType)
		}
		if err := s.repo.Upsert(ctx, *event.Command); err != nil {
			return err
		}
		s.logger.Info().Str("command_id", event.Command.ID).Str("event_type", event.EventType).Msg("Command upserted from webhook")
		return nil

	case models.FamilyEnrollment:
		if event.Enrollment == nil {
			return fmt.Errorf("enrollment event %q without enrollment payload", event.EventType)
		}
		if err := s.repo.SaveEnrollment(ctx, *event.Enrollment); err != nil {
			return err
		}
		s.logger.Info().Str("enrollment_id", event.Enrollment.ID).Str("event_type", event.EventType).Msg("Enrollment updated from webhook")
		return nil

	case models.FamilyEvent:
		s.logger.Info().Str("event_type", event.EventType).Msg("Program event received")
		return nil

	default:
		s.logger.Info().Str("event_type", event.EventType).Msg("Ignoring unknown webhook event type")
		return nil
	}
}
