package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voltbridge/battery-relay/internal/ledger"
	"github.com/voltbridge/battery-relay/internal/mocks"
	"github.com/voltbridge/battery-relay/internal/models"
	"github.com/voltbridge/battery-relay/internal/relay"
	"github.com/voltbridge/battery-relay/pkg/registration"
)

type staticResolver struct {
	keys map[string][][]byte
}

func (r *staticResolver) PublicKeysForThing(_ context.Context, thingName string) ([][]byte, error) {
	return r.keys[thingName], nil
}

func generateKeyPair(t *testing.T) (privatePEM, publicPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privatePEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicDER,
	})
	return privatePEM, publicPEM
}

// signedRegistration builds a registration URL and extracts the payload and
// signature body fields a device client would POST.
func signedRegistration(t *testing.T, thingName string, privatePEM []byte) (payload, sig string) {
	t.Helper()

	signedURL, err := registration.BuildURL("https://example.com/register", thingName, privatePEM)
	require.NoError(t, err)

	parsed, err := url.Parse(signedURL)
	require.NoError(t, err)
	return parsed.Query().Get("payload"), parsed.Query().Get("signature")
}

type testEnv struct {
	server     *httptest.Server
	repo       ledger.CommandRepository
	notifier   *mocks.MockNotifier
	mqttClient *mocks.MockMQTTClient
}

func newTestEnv(t *testing.T, resolver registration.KeyResolver, now func() time.Time) *testEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "ledger.db")
	repo, err := ledger.NewCommandRepository(ledger.NewSQLiteConnector(dsn), zerolog.Nop())
	require.NoError(t, err)

	notifier := new(mocks.MockNotifier)
	mqttClient := new(mocks.MockMQTTClient)
	relaySvc := relay.NewService(repo, notifier, mqttClient, 1, zerolog.Nop())

	if resolver == nil {
		resolver = &staticResolver{}
	}
	if now == nil {
		now = time.Now
	}

	router := RegisterHandlers(chi.NewRouter(), zerolog.Nop(), relaySvc, registration.NewVerifierWithClock(resolver, now))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, repo: repo, notifier: notifier, mqttClient: mqttClient}
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(e.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTelemetryEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.notifier.On("LogBatteryTelemetry", mock.Anything, mock.Anything).Return(nil)

	resp := env.post(t, "/api/v0/devices/battery-001/telemetry", `{"telemetry":{"last_is_grid_online":true}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "telemetry received", body["message"])
}

func TestTelemetryEndpoint_BadJSON(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := env.post(t, "/api/v0/devices/battery-001/telemetry", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTelemetryEndpoint_PartnerFailureStillAcknowledged(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.notifier.On("LogBatteryTelemetry", mock.Anything, mock.Anything).Return(assert.AnError)

	resp := env.post(t, "/api/v0/devices/battery-001/telemetry", `{"telemetry":{}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTelemetryEndpoint_RelaysPendingCommands(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.notifier.On("LogBatteryTelemetry", mock.Anything, mock.Anything).Return(nil)
	env.mqttClient.On("Publish", "devices/battery-001/commands", byte(1), false, mock.Anything).
		Return(mocks.NewSucceededToken()).Once()

	cmd := models.Command{
		ID:        "c1",
		DeviceID:  "device::battery-001",
		Status:    models.CommandStatusOK,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, env.repo.Upsert(context.Background(), cmd))

	resp := env.post(t, "/api/v0/devices/battery-001/telemetry", `{"telemetry":{}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.mqttClient.AssertExpectations(t)
}

func TestRegisterEndpoint(t *testing.T) {
	privatePEM, publicPEM := generateKeyPair(t)
	otherPrivatePEM, _ := generateKeyPair(t)

	resolver := &staticResolver{keys: map[string][][]byte{
		"battery-001": {publicPEM},
	}}

	t.Run("valid registration", func(t *testing.T) {
		env := newTestEnv(t, resolver, nil)
		payload, sig := signedRegistration(t, "battery-001", privatePEM)

		body, _ := json.Marshal(map[string]string{"payload": payload, "signature": sig})
		resp := env.post(t, "/api/v0/devices/register", string(body))
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("wrong key", func(t *testing.T) {
		env := newTestEnv(t, resolver, nil)
		payload, sig := signedRegistration(t, "battery-001", otherPrivatePEM)

		body, _ := json.Marshal(map[string]string{"payload": payload, "signature": sig})
		resp := env.post(t, "/api/v0/devices/register", string(body))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown thing", func(t *testing.T) {
		env := newTestEnv(t, resolver, nil)
		payload, sig := signedRegistration(t, "battery-999", privatePEM)

		body, _ := json.Marshal(map[string]string{"payload": payload, "signature": sig})
		resp := env.post(t, "/api/v0/devices/register", string(body))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("expired payload", func(t *testing.T) {
		// A backend clock two hours ahead puts the payload past the
		// freshness window.
		env := newTestEnv(t, resolver, func() time.Time { return time.Now().Add(2 * time.Hour) })
		payload, sig := signedRegistration(t, "battery-001", privatePEM)

		body, _ := json.Marshal(map[string]string{"payload": payload, "signature": sig})
		resp := env.post(t, "/api/v0/devices/register", string(body))
		assert.Equal(t, http.StatusGone, resp.StatusCode)
	})

	t.Run("malformed payload", func(t *testing.T) {
		env := newTestEnv(t, resolver, nil)

		body, _ := json.Marshal(map[string]string{"payload": "{not json", "signature": "abc"})
		resp := env.post(t, "/api/v0/devices/register", string(body))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing fields", func(t *testing.T) {
		env := newTestEnv(t, resolver, nil)

		resp := env.post(t, "/api/v0/devices/register", `{"payload":"","signature":""}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad body", func(t *testing.T) {
		env := newTestEnv(t, resolver, nil)

		resp := env.post(t, "/api/v0/devices/register", `not json at all`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestWebhookEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	cmd := models.Command{
		ID:        "c1",
		DeviceID:  "device::battery-001",
		Status:    models.CommandStatusOK,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	event := models.WebhookEvent{EventType: "command.created", Command: &cmd}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	resp := env.post(t, "/api/v0/webhooks/partner", string(body))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	unacked, err := env.repo.Unacked(context.Background(), "device::battery-001")
	require.NoError(t, err)
	require.Len(t, unacked, 1)
	assert.Equal(t, "c1", unacked[0].ID)
}

func TestWebhookEndpoint_BadJSON(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := env.post(t, "/api/v0/webhooks/partner", `{broken`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookEndpoint_HandlerError(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	// A command event without a command payload is rejected by the relay.
	resp := env.post(t, "/api/v0/webhooks/partner", `{"event_type":"command.created"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
