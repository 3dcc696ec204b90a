package mocks

import "github.com/stretchr/testify/mock"

// MockDeviceInfo is a mock implementation of identity.DeviceInfoInterface.
type MockDeviceInfo struct {
	mock.Mock
}

func (m *MockDeviceInfo) LoadDeviceInfo() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDeviceInfo) GetThingName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockDeviceInfo) GetEndpoint() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockDeviceInfo) CertificatePath() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockDeviceInfo) PrivateKeyPath() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockDeviceInfo) RootCAPath() string {
	args := m.Called()
	return args.String(0)
}
