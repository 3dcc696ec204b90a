// Package registration implements the signed-URL device registration
// handshake: a device builds a time-boxed, nonce-bearing URL signed with its
// private key, and the backend verifies the payload against the public keys
// currently bound to the device in the identity registry.
package registration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/voltbridge/battery-relay/pkg/signature"
)

// PayloadVersion is the current registration payload format version.
const PayloadVersion = 1

// MaxPayloadAge is the freshness window for registration payloads. Payloads
// older than this are rejected regardless of signature validity.
const MaxPayloadAge = time.Hour

// Typed verification failures, surfaced to the registration flow.
var (
	ErrMalformedPayload = errors.New("malformed registration payload")
	ErrExpiredPayload   = errors.New("registration payload expired")
	ErrNoCertificates   = errors.New("no certificates found for thing")
	ErrInvalidSignature = errors.New("invalid registration signature")
)

// Payload is the registration payload. Field order matters: the payload is
// signed over its exact serialized form, and encoding/json preserves struct
// field order, giving a stable canonical serialization.
type Payload struct {
	ThingName string `json:"thingName"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Version   int    `json:"version"`
}

// BuildURL constructs a signed registration URL for the given thing. The
// returned URL carries the url-encoded payload JSON and its base64url
// signature as query parameters.
func BuildURL(baseURL, thingName string, privateKeyPEM []byte) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	payload := Payload{
		ThingName: thingName,
		Nonce:     hex.EncodeToString(nonce),
		Timestamp: time.Now().Unix(),
		Version:   PayloadVersion,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize registration payload: %w", err)
	}

	sig, err := signature.Sign(payloadJSON, privateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("failed to sign registration payload: %w", err)
	}

	return fmt.Sprintf("%s?payload=%s&signature=%s",
		baseURL,
		url.QueryEscape(string(payloadJSON)),
		url.QueryEscape(sig),
	), nil
}

// KeyResolver resolves the set of public keys currently bound to a thing in
// the device identity registry. A thing may have multiple active
// certificates, hence multiple candidate keys.
type KeyResolver interface {
	PublicKeysForThing(ctx context.Context, thingName string) ([][]byte, error)
}

// Verifier validates signed registration payloads.
type Verifier struct {
	keys KeyResolver
	now  func() time.Time
}

// NewVerifier creates a Verifier backed by the given key resolver.
func NewVerifier(keys KeyResolver) *Verifier {
	return &Verifier{
		keys: keys,
		now:  time.Now,
	}
}

// NewVerifierWithClock creates a Verifier with an injected clock, used by
// tests to exercise the freshness window.
func NewVerifierWithClock(keys KeyResolver, now func() time.Time) *Verifier {
	return &Verifier{
		keys: keys,
		now:  now,
	}
}

// Verify checks a raw payload and its signature. It returns nil on success or
// one of ErrMalformedPayload, ErrExpiredPayload, ErrNoCertificates,
// ErrInvalidSignature.
//
// The nonce is carried in the payload but not checked for replay; only
// freshness by timestamp is enforced. Replaying a captured URL within the
// freshness window therefore succeeds.
func (v *Verifier) Verify(ctx context.Context, rawPayload string, sig string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(rawPayload), &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var thingName string
	if raw, ok := fields["thingName"]; ok {
		if err := json.Unmarshal(raw, &thingName); err != nil {
			return fmt.Errorf("%w: thingName is not a string", ErrMalformedPayload)
		}
	}
	if thingName == "" {
		return fmt.Errorf("%w: missing thingName", ErrMalformedPayload)
	}

	var timestamp int64
	raw, ok := fields["timestamp"]
	if !ok {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedPayload)
	}
	if err := json.Unmarshal(raw, &timestamp); err != nil {
		return fmt.Errorf("%w: timestamp is not a number", ErrMalformedPayload)
	}

	if v.now().Unix()-timestamp > int64(MaxPayloadAge.Seconds()) {
		return ErrExpiredPayload
	}

	candidateKeys, err := v.keys.PublicKeysForThing(ctx, thingName)
	if err != nil {
		return fmt.Errorf("failed to resolve keys for %s: %w", thingName, err)
	}
	if len(candidateKeys) == 0 {
		return ErrNoCertificates
	}

	for _, key := range candidateKeys {
		ok, err := signature.Verify([]byte(rawPayload), sig, key)
		if err != nil {
			return fmt.Errorf("bad candidate key for %s: %w", thingName, err)
		}
		if ok {
			return nil
		}
	}

	return ErrInvalidSignature
}
