package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/internal/models"
	"github.com/voltbridge/battery-relay/internal/relay"
	"github.com/voltbridge/battery-relay/pkg/registration"
)

// RegisterHandlers wires the relay's HTTP surface onto the router.
func RegisterHandlers(router *chi.Mux, log zerolog.Logger, relaySvc *relay.Service, verifier *registration.Verifier) *chi.Mux {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Route("/api/v0", func(r chi.Router) {
		r.Post("/devices/{thingName}/telemetry", telemetryHandler(log, relaySvc))
		r.Post("/devices/register", registerDeviceHandler(log, verifier))
		r.Post("/webhooks/partner", partnerWebhookHandler(log, relaySvc))
	})

	return router
}

// telemetryHandler ingests one telemetry message from a device. Internal
// failures still acknowledge receipt with a 200 so the transport layer does
// not trigger a redelivery storm; unacked work reconciles on the next cycle.
func telemetryHandler(log zerolog.Logger, svc *relay.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		thingName := chi.URLParam(r, "thingName")

		var msg models.TelemetryMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			log.Error().Err(err).Str("thing_name", thingName).Msg("Unable to decode telemetry body")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := svc.ProcessTelemetry(r.Context(), thingName, msg); err != nil {
			log.Error().Err(err).Str("thing_name", thingName).Msg("Telemetry processing failed")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "telemetry received"})
	}
}

// registerRequest is the body of a device registration attempt: the raw
// payload JSON exactly as signed, plus its base64url signature.
type registerRequest struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// registerDeviceHandler verifies a signed registration payload. Binding a
// verified registration to a user account is the caller's concern; this
// endpoint only answers whether the device's claim is valid.
func registerDeviceHandler(log zerolog.Logger, verifier *registration.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if req.Payload == "" || req.Signature == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err := verifier.Verify(r.Context(), req.Payload, req.Signature)
		if err != nil {
			log.Warn().Err(err).Msg("Registration verification failed")

			switch {
			case errors.Is(err, registration.ErrMalformedPayload):
				w.WriteHeader(http.StatusBadRequest)
			case errors.Is(err, registration.ErrExpiredPayload):
				w.WriteHeader(http.StatusGone)
			case errors.Is(err, registration.ErrNoCertificates):
				w.WriteHeader(http.StatusNotFound)
			case errors.Is(err, registration.ErrInvalidSignature):
				w.WriteHeader(http.StatusUnauthorized)
			default:
				w.WriteHeader(http.StatusInternalServerError)
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// partnerWebhookHandler ingests partner platform lifecycle events. Unknown
// event types are acknowledged without action.
func partnerWebhookHandler(log zerolog.Logger, svc *relay.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var event models.WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			log.Error().Err(err).Msg("Unable to decode webhook body")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err := svc.HandleWebhookEvent(r.Context(), event); err != nil {
			log.Error().Err(err).Str("event_type", event.EventType).Msg("Webhook processing failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
