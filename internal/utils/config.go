package utils

import (
	"time"

	"github.com/voltbridge/battery-relay/pkg/file"
)

// DeviceConfig represents the structure of the device agent configuration
// file.
type DeviceConfig struct {
	Device struct {
		ArtifactsDir  string `yaml:"artifacts_dir"`  // Directory holding device-info.json and certificate material
		WatermarkFile string `yaml:"watermark_file"` // Path to the persisted ack watermark
	} `yaml:"device"`

	Services struct {
		Telemetry struct {
			Interval time.Duration `yaml:"interval"` // Interval between telemetry messages
			QOS      int           `yaml:"qos"`      // MQTT QoS level for telemetry messages
		} `yaml:"telemetry"`

		Commands struct {
			QOS       int `yaml:"qos"`        // MQTT QoS level for the commands subscription
			QueueSize int `yaml:"queue_size"` // Bounded queue size for inbound command batches
		} `yaml:"commands"`
	} `yaml:"services"`
}

// RelayConfig represents the structure of the relay server configuration
// file. Secrets (partner token, database DSN) come from the environment, not
// from this file.
type RelayConfig struct {
	HTTP struct {
		Address string `yaml:"address"` // Listen address, e.g. ":8080"
	} `yaml:"http"`

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // Base MQTT client ID (a UUID suffix is appended)
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate
		QOS           int    `yaml:"qos"`            // MQTT QoS level for relayed command batches
	} `yaml:"mqtt"`

	Database struct {
		Driver string `yaml:"driver"` // "sqlite" or "postgres"
	} `yaml:"database"`

	Partner struct {
		BaseURL string `yaml:"base_url"` // Partner platform API base URL
	} `yaml:"partner"`

	KeyRegistry struct {
		CertificatesDir string `yaml:"certificates_dir"` // Directory of per-thing certificate PEMs
	} `yaml:"key_registry"`
}

// LoadDeviceConfig loads the device agent YAML configuration from the
// specified file.
func LoadDeviceConfig(filename string, fileClient file.FileOperations) (*DeviceConfig, error) {
	var config DeviceConfig
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadRelayConfig loads the relay server YAML configuration from the
// specified file.
func LoadRelayConfig(filename string, fileClient file.FileOperations) (*RelayConfig, error) {
	var config RelayConfig
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
