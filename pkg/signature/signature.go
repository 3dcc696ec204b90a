// Package signature implements the payload signing scheme used by the device
// registration handshake: RSA PKCS #1 v1.5 over a SHA-256 digest, with the
// signature carried as a base64url string.
package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// ErrKeyFormat indicates that the supplied key material could not be parsed.
var ErrKeyFormat = errors.New("malformed key material")

// Sign computes a signature over payload using the PEM-encoded RSA private
// key and returns it base64url-encoded.
func Sign(payload []byte, privateKeyPEM []byte) (string, error) {
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify reports whether sig is a valid signature over payload for the
// PEM-encoded public key or certificate. A tampered payload or a wrong key
// yields false, not an error; only unparsable key material is an error.
func Verify(payload []byte, sig string, publicKeyPEM []byte) (bool, error) {
	key, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return false, err
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(sig, "="))
	if err != nil {
		return false, nil
	}

	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], raw); err != nil {
		return false, nil
	}

	return true, nil
}

// ParsePublicKey extracts an RSA public key from a PEM block holding either a
// PKIX public key, a PKCS #1 public key, or an X.509 certificate. The device
// identity registry hands back certificate PEMs, so all three are accepted.
func ParsePublicKey(publicKeyPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyFormat)
	}

	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		rsaKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: certificate does not hold an RSA key", ErrKeyFormat)
		}
		return rsaKey, nil

	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		return key, nil

	default:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA public key", ErrKeyFormat)
		}
		return rsaKey, nil
	}
}

// parsePrivateKey extracts an RSA private key from a PKCS #1 or PKCS #8 PEM
// block.
func parsePrivateKey(privateKeyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyFormat)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key", ErrKeyFormat)
	}

	return rsaKey, nil
}
