package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/internal/constants"
	"github.com/voltbridge/battery-relay/internal/models"
	"github.com/voltbridge/battery-relay/internal/state_managers"
	"github.com/voltbridge/battery-relay/pkg/identity"
	"github.com/voltbridge/battery-relay/pkg/mqtt"
)

// CommandApplier actuates a single command on the hardware.
type CommandApplier interface {
	Apply(ctx context.Context, cmd models.Command) error
}

// LoggingApplier is the default no-op applier: it logs the directive and
// reports success. Actuation against real hardware plugs in here.
type LoggingApplier struct {
	Logger zerolog.Logger
}

// Apply logs the command and succeeds.
func (a LoggingApplier) Apply(_ context.Context, cmd models.Command) error {
	a.Logger.Info().
		Str("command_id", cmd.ID).
		Str("status", string(cmd.Status)).
		Int("battery_commands", len(cmd.BatteryCommands)).
		Msg("Applying command")
	return nil
}

// CommandListenerService subscribes to the device's commands channel and
// applies inbound command batches. The MQTT handler only enqueues batches
// into a bounded channel; a single consumer goroutine decodes and applies
// them, which keeps watermark updates serialized and batch entries processed
// in order.
type CommandListenerService struct {
	QOS        int
	QueueSize  int
	DeviceInfo identity.DeviceInfoInterface
	MqttClient mqtt.MQTTClient
	Applier    CommandApplier
	Watermark  *state_managers.WatermarkStateManager
	Logger     zerolog.Logger

	batches chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewCommandListenerService initializes a new CommandListenerService.
func NewCommandListenerService(qos, queueSize int, deviceInfo identity.DeviceInfoInterface,
	mqttClient mqtt.MQTTClient, applier CommandApplier, watermark *state_managers.WatermarkStateManager,
	logger zerolog.Logger) *CommandListenerService {

	if queueSize <= 0 {
		queueSize = constants.DefaultCommandQueueSize
	}

	return &CommandListenerService{
		QOS:        qos,
		QueueSize:  queueSize,
		DeviceInfo: deviceInfo,
		MqttClient: mqttClient,
		Applier:    applier,
		Watermark:  watermark,
		Logger:     logger,
	}
}

// Start subscribes to the commands channel and launches the consumer loop.
func (cs *CommandListenerService) Start() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ctx != nil {
		cs.Logger.Warn().Msg("CommandListenerService is already running")
		return errors.New("command listener service is already running")
	}

	cs.ctx, cs.cancel = context.WithCancel(context.Background())
	cs.batches = make(chan []byte, cs.QueueSize)

	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		cs.runConsumerLoop()
	}()

	topic := cs.topic()
	token := cs.MqttClient.Subscribe(topic, byte(cs.QOS), cs.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		cs.Logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to commands channel")
		cs.cancel()
		cs.wg.Wait()
		cs.ctx = nil
		cs.cancel = nil
		return err
	}

	cs.Logger.Info().Str("topic", topic).Msg("CommandListenerService started successfully")
	return nil
}

// Stop unsubscribes from the commands channel and drains the consumer loop.
func (cs *CommandListenerService) Stop() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ctx == nil {
		cs.Logger.Warn().Msg("CommandListenerService is not running")
		return errors.New("command listener service is not running")
	}

	topic := cs.topic()
	token := cs.MqttClient.Unsubscribe(topic)
	token.Wait()
	if err := token.Error(); err != nil {
		cs.Logger.Error().Err(err).Str("topic", topic).Msg("Failed to unsubscribe from commands channel")
	}

	cs.cancel()
	cs.wg.Wait()

	cs.ctx = nil
	cs.cancel = nil

	cs.Logger.Info().Msg("CommandListenerService stopped successfully")
	return nil
}

func (cs *CommandListenerService) topic() string {
	return fmt.Sprintf(constants.CommandsTopicFormat, cs.DeviceInfo.GetThingName())
}

// handleMessage enqueues the raw batch for the consumer loop. When the queue
// is full the batch is dropped; the relay re-publishes unacked commands on
// every telemetry cycle, so a dropped batch is redelivered.
func (cs *CommandListenerService) handleMessage(_ MQTT.Client, msg MQTT.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	select {
	case cs.batches <- payload:
	default:
		cs.Logger.Warn().Str("topic", msg.Topic()).Msg("Command queue full, dropping batch")
	}
}

func (cs *CommandListenerService) runConsumerLoop() {
	for {
		select {
		case payload := <-cs.batches:
			cs.processBatch(payload)
		case <-cs.ctx.Done():
			return
		}
	}
}

// processBatch walks the batch entries in array order. Entries at or before
// the watermark have already been applied and are skipped; re-delivery is
// expected and harmless. Each newly applied entry advances and persists the
// watermark before the next entry is touched. An apply failure stops the
// batch: the watermark stays at the last applied entry, so the next relay
// cycle redelivers everything from the failed command onward.
func (cs *CommandListenerService) processBatch(payload []byte) {
	var batch models.CommandBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		cs.Logger.Error().Err(err).Msg("Failed to decode command batch")
		return
	}

	for _, entry := range batch.Commands {
		if cs.Watermark.Covers(entry.CreatedAt) {
			cs.Logger.Debug().
				Str("command_id", entry.CommandJSON.ID).
				Time("created_at", entry.CreatedAt).
				Msg("Skipping already acknowledged command")
			continue
		}

		if err := cs.Applier.Apply(cs.ctx, entry.CommandJSON); err != nil {
			cs.Logger.Error().Err(err).Str("command_id", entry.CommandJSON.ID).Msg("Failed to apply command, stopping batch")
			return
		}

		if err := cs.Watermark.Advance(entry.CreatedAt); err != nil {
			cs.Logger.Error().Err(err).Str("command_id", entry.CommandJSON.ID).Msg("Failed to advance watermark")
			return
		}
	}
}
