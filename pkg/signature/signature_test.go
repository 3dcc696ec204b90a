package signature

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func TestSignVerify_RoundTrip(t *testing.T) {
	privatePEM, publicPEM := generateKeyPair(t)
	payload := []byte(`{"thingName":"battery-001","nonce":"abcd","timestamp":1700000000,"version":1}`)

	sig, err := Sign(payload, privatePEM)
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	ok, err := Verify(payload, sig, publicPEM)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_TamperedPayload(t *testing.T) {
	privatePEM, publicPEM := generateKeyPair(t)
	payload := []byte(`{"thingName":"battery-001"}`)

	sig, err := Sign(payload, privatePEM)
	require.NoError(t, err)

	tampered := []byte(`{"thingName":"battery-002"}`)
	ok, err := Verify(tampered, sig, publicPEM)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_WrongKey(t *testing.T) {
	privatePEM, _ := generateKeyPair(t)
	_, otherPublicPEM := generateKeyPair(t)
	payload := []byte("payload")

	sig, err := Sign(payload, privatePEM)
	require.NoError(t, err)

	ok, err := Verify(payload, sig, otherPublicPEM)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_GarbageSignature(t *testing.T) {
	_, publicPEM := generateKeyPair(t)

	ok, err := Verify([]byte("payload"), "not-base64url!!!", publicPEM)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSign_MalformedKey(t *testing.T) {
	_, err := Sign([]byte("payload"), []byte("not a pem block"))
	assert.ErrorIs(t, err, ErrKeyFormat)

	_, err = Sign([]byte("payload"), pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: []byte("garbage"),
	}))
	assert.ErrorIs(t, err, ErrKeyFormat)
}

func TestVerify_MalformedKey(t *testing.T) {
	_, err := Verify([]byte("payload"), "c2ln", []byte("not a pem block"))
	assert.ErrorIs(t, err, ErrKeyFormat)
}

func TestVerify_CertificatePEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "battery-001"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})

	payload := []byte("payload signed by cert holder")
	sig, err := Sign(payload, privatePEM)
	require.NoError(t, err)

	ok, err := Verify(payload, sig, certPEM)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_AcceptsPaddedBase64(t *testing.T) {
	privatePEM, publicPEM := generateKeyPair(t)
	payload := []byte("payload")

	sig, err := Sign(payload, privatePEM)
	require.NoError(t, err)

	// Some encoders pad base64url output; verification tolerates it.
	padded := sig
	for len(padded)%4 != 0 {
		padded += "="
	}

	ok, err := Verify(payload, padded, publicPEM)
	require.NoError(t, err)
	assert.True(t, ok)
}
