package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/voltbridge/battery-relay/internal/models"
	"github.com/voltbridge/battery-relay/internal/partner"
)

// MockNotifier is a mock implementation of partner.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) UpdateCommandStatus(ctx context.Context, commandID string, status models.DeviceStatus) error {
	args := m.Called(ctx, commandID, status)
	return args.Error(0)
}

func (m *MockNotifier) LogBatteryTelemetry(ctx context.Context, payload partner.TelemetryPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}
