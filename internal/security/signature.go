package security

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	ErrMalformedPublicKey = errors.New("malformed public key")
	ErrBadSignature       = errors.New("signature verification failed")
)

// SignatureVerifier checks that signature is a valid signature of message
// under the PEM-encoded public key. Implementations are pure and safe for
// concurrent use.
type SignatureVerifier interface {
	Verify(publicKeyPEM, message, signature string) error
}

// DeviceKeyVerifier verifies RSA (PKCS#1 v1.5 over SHA-256) and Ed25519
// signatures. Signatures arrive base64-encoded.
type DeviceKeyVerifier struct{}

func NewDeviceKeyVerifier() *DeviceKeyVerifier {
	return &DeviceKeyVerifier{}
}

func (v *DeviceKeyVerifier) Verify(publicKeyPEM, message, signature string) error {
	key, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not valid base64", ErrBadSignature)
	}
	switch k := key.(type) {
	case *rsa.PublicKey:
		digest := sha256.Sum256([]byte(message))
		if err := rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], sig); err != nil {
			return ErrBadSignature
		}
		return nil
	case ed25519.PublicKey:
		if !ed25519.Verify(k, []byte(message), sig) {
			return ErrBadSignature
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported key type %T", ErrMalformedPublicKey, key)
	}
}

func parsePublicKey(publicKeyPEM string) (any, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrMalformedPublicKey)
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPublicKey, err)
	}
	return key, nil
}
