package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/internal/constants"
	"github.com/voltbridge/battery-relay/internal/models"
	"github.com/voltbridge/battery-relay/internal/state_managers"
	"github.com/voltbridge/battery-relay/pkg/identity"
	"github.com/voltbridge/battery-relay/pkg/mqtt"
)

// Sampler produces the instantaneous telemetry sample for each publish cycle.
type Sampler interface {
	Sample() models.TelemetrySample
}

// StaticSampler reports a fixed idle sample. Real metering hardware plugs in
// behind the Sampler interface.
type StaticSampler struct{}

// Sample returns an idle battery sample with the grid online.
func (StaticSampler) Sample() models.TelemetrySample {
	return models.TelemetrySample{
		LastMode:         models.ModeBackup,
		LastIsGridOnline: true,
	}
}

// TelemetryService publishes a telemetry message on a fixed interval. Every
// message carries the current ack watermark, which is what lets the backend
// advance command ack state.
type TelemetryService struct {
	Interval   time.Duration
	QOS        int
	DeviceInfo identity.DeviceInfoInterface
	MqttClient mqtt.MQTTClient
	Sampler    Sampler
	Watermark  *state_managers.WatermarkStateManager
	Logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelemetryService initializes a new TelemetryService.
func NewTelemetryService(interval time.Duration, qos int, deviceInfo identity.DeviceInfoInterface,
	mqttClient mqtt.MQTTClient, sampler Sampler, watermark *state_managers.WatermarkStateManager,
	logger zerolog.Logger) *TelemetryService {

	if interval <= 0 {
		interval = constants.DefaultTelemetryInterval
	}

	return &TelemetryService{
		Interval:   interval,
		QOS:        qos,
		DeviceInfo: deviceInfo,
		MqttClient: mqttClient,
		Sampler:    sampler,
		Watermark:  watermark,
		Logger:     logger,
	}
}

// Start launches the telemetry loop in a separate goroutine.
func (t *TelemetryService) Start() error {
	if t.ctx != nil {
		t.Logger.Warn().Msg("TelemetryService is already running")
		return errors.New("telemetry service is already running")
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runTelemetryLoop()
	}()

	t.Logger.Info().Str("topic", t.topic()).Msg("TelemetryService started successfully")
	return nil
}

// Stop gracefully stops the telemetry service.
func (t *TelemetryService) Stop() error {
	if t.ctx == nil {
		t.Logger.Warn().Msg("TelemetryService is not running")
		return errors.New("telemetry service is not running")
	}

	t.cancel()
	t.wg.Wait()

	t.ctx = nil
	t.cancel = nil

	t.Logger.Info().Msg("TelemetryService stopped successfully")
	return nil
}

func (t *TelemetryService) topic() string {
	return fmt.Sprintf(constants.TelemetryTopicFormat, t.DeviceInfo.GetThingName())
}

// runTelemetryLoop publishes one telemetry message per interval. Publish
// failures are logged and the loop continues; the gap heals on the next tick.
func (t *TelemetryService) runTelemetryLoop() {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			message := models.TelemetryMessage{
				LastCommandAcked: t.Watermark.CurrentString(),
				Telemetry:        t.Sampler.Sample(),
			}

			payload, err := json.Marshal(message)
			if err != nil {
				t.Logger.Error().Err(err).Msg("Failed to serialize telemetry message")
				continue
			}

			token := t.MqttClient.Publish(t.topic(), byte(t.QOS), false, payload)
			token.Wait()

			if err := token.Error(); err != nil {
				t.Logger.Error().Err(err).Msg("Failed to publish telemetry message")
			} else {
				t.Logger.Debug().Msg("Telemetry published successfully")
			}

		case <-t.ctx.Done():
			t.Logger.Info().Msg("TelemetryService stopping gracefully")
			return
		}
	}
}
