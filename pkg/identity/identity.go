package identity

import (
	"errors"
	"path/filepath"

	"github.com/voltbridge/battery-relay/pkg/file"
)

// Identity holds the provisioned device identity loaded from device-info.json.
type Identity struct {
	ThingName   string `json:"thingName"`
	IoTEndpoint string `json:"iotEndpoint"`
}

// DeviceInfoInterface defines methods for accessing the device identity and
// its provisioning artifacts.
type DeviceInfoInterface interface {
	LoadDeviceInfo() error
	GetThingName() string
	GetEndpoint() string
	CertificatePath() string
	PrivateKeyPath() string
	RootCAPath() string
}

// DeviceInfo manages the device identity and the sibling certificate material
// produced by provisioning. The artifacts directory is read-only at runtime.
type DeviceInfo struct {
	ArtifactsDir string
	Identity     Identity
	fileOps      file.FileOperations
}

// NewDeviceInfo initializes a new DeviceInfo instance rooted at artifactsDir.
func NewDeviceInfo(artifactsDir string, fileOps file.FileOperations) DeviceInfoInterface {
	return &DeviceInfo{
		ArtifactsDir: artifactsDir,
		fileOps:      fileOps,
		Identity:     Identity{},
	}
}

// LoadDeviceInfo reads device-info.json from the artifacts directory and
// populates the Identity field.
func (d *DeviceInfo) LoadDeviceInfo() error {
	infoPath := filepath.Join(d.ArtifactsDir, "device-info.json")

	if err := d.fileOps.ReadJsonFile(infoPath, &d.Identity); err != nil {
		return err
	}

	if d.Identity.ThingName == "" {
		return errors.New("missing thingName in device-info.json")
	}
	if d.Identity.IoTEndpoint == "" {
		return errors.New("missing iotEndpoint in device-info.json")
	}

	return nil
}

// GetThingName returns the provisioned thing name.
func (d *DeviceInfo) GetThingName() string {
	return d.Identity.ThingName
}

// GetEndpoint returns the broker endpoint address.
func (d *DeviceInfo) GetEndpoint() string {
	return d.Identity.IoTEndpoint
}

// CertificatePath returns the path to the device certificate.
func (d *DeviceInfo) CertificatePath() string {
	return filepath.Join(d.ArtifactsDir, "certificate.pem")
}

// PrivateKeyPath returns the path to the device private key.
func (d *DeviceInfo) PrivateKeyPath() string {
	return filepath.Join(d.ArtifactsDir, "private-key.pem")
}

// RootCAPath returns the path to the root CA bundle.
func (d *DeviceInfo) RootCAPath() string {
	return filepath.Join(d.ArtifactsDir, "AmazonRootCA1.pem")
}
