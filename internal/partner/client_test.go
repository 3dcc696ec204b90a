package partner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltbridge/battery-relay/internal/models"
)

func TestUpdateCommandStatus(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token", nil, zerolog.Nop())

	err := client.UpdateCommandStatus(context.Background(), "cmd-1", models.DeviceStatusOK)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/v1/command/cmd-1", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, map[string]string{"device_status": "OK"}, gotBody)
}

func TestUpdateCommandStatus_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "command not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token", nil, zerolog.Nop())

	err := client.UpdateCommandStatus(context.Background(), "cmd-1", models.DeviceStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestLogBatteryTelemetry(t *testing.T) {
	var gotPath string
	var gotPayload TelemetryPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		json.NewEncoder(w).Encode([]telemetryResult{{Status: "OK"}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token", nil, zerolog.Nop())

	payload := TelemetryPayload{
		StartTime: "2024-01-01T00:00:00Z",
		DurationS: 5,
		Telemetry: []DeviceStatusSample{
			{DeviceID: "device::battery-001", LastIsOnline: true},
		},
	}

	require.NoError(t, client.LogBatteryTelemetry(context.Background(), payload))
	assert.Equal(t, "/v1/telemetry/BATTERY", gotPath)
	assert.Equal(t, "device::battery-001", gotPayload.Telemetry[0].DeviceID)
}

func TestLogBatteryTelemetry_PerItemFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]telemetryResult{
			{Status: "OK"},
			{Status: "FAILED", Message: "unknown device"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token", nil, zerolog.Nop())

	err := client.LogBatteryTelemetry(context.Background(), TelemetryPayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown device")
}

func TestIDHelpers(t *testing.T) {
	assert.Equal(t, "site-for-device::battery-001", SiteIDForThingName("battery-001"))
	assert.Equal(t, "device::battery-001", DeviceIDForThingName("battery-001"))
}
