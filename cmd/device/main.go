package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/internal/service_registry"
	"github.com/voltbridge/battery-relay/internal/services"
	"github.com/voltbridge/battery-relay/internal/state_managers"
	"github.com/voltbridge/battery-relay/internal/utils"
	"github.com/voltbridge/battery-relay/pkg/file"
	"github.com/voltbridge/battery-relay/pkg/identity"
	"github.com/voltbridge/battery-relay/pkg/mqtt"
)

// brokerURL builds the TLS broker URL from the provisioned endpoint host.
func brokerURL(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "ssl://" + endpoint + ":8883"
}

func main() {
	configPath := flag.String("config", "configs/device.yaml", "path to the device configuration file")
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadDeviceConfig(*configPath, fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	deviceInfo := identity.NewDeviceInfo(config.Device.ArtifactsDir, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load device information")
	}
	log.Info().Str("thing_name", deviceInfo.GetThingName()).Msg("Loaded device identity")

	watermark := state_managers.NewWatermarkStateManager(config.Device.WatermarkFile, fileClient, log)
	if err := watermark.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load ack watermark")
	}

	// The initial connect is fatal on failure; reconnects after a drop are
	// handled by the client's reconnect policy.
	mqttClient := mqtt.NewMqttService(fileClient, log)
	err = mqttClient.InitializeMutualTLS(
		brokerURL(deviceInfo.GetEndpoint()),
		deviceInfo.GetThingName(),
		deviceInfo.CertificatePath(),
		deviceInfo.PrivateKeyPath(),
		deviceInfo.RootCAPath(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to establish MQTT connection")
	}

	registry := service_registry.NewServiceRegistry(log)

	registry.RegisterService("commands", services.NewCommandListenerService(
		config.Services.Commands.QOS,
		config.Services.Commands.QueueSize,
		deviceInfo,
		mqttClient,
		services.LoggingApplier{Logger: log},
		watermark,
		log,
	))

	registry.RegisterService("telemetry", services.NewTelemetryService(
		config.Services.Telemetry.Interval*time.Second,
		config.Services.Telemetry.QOS,
		deviceInfo,
		mqttClient,
		services.StaticSampler{},
		watermark,
		log,
	))

	if err := registry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if err := registry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Error stopping services")
	}
	mqttClient.Disconnect(250)
}
