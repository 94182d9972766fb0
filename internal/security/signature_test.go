package security

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"testing"
)

func rsaKeyPairForTest(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(pemBytes)
}

func rsaSignForTest(t *testing.T, key *rsa.PrivateKey, message string) string {
	t.Helper()
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign message: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

func TestDeviceKeyVerifierRSA(t *testing.T) {
	verifier := NewDeviceKeyVerifier()
	key, pubPEM := rsaKeyPairForTest(t)

	sig := rsaSignForTest(t, key, "hello broker")
	if err := verifier.Verify(pubPEM, "hello broker", sig); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := verifier.Verify(pubPEM, "another message", sig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for wrong message, got %v", err)
	}
	if err := verifier.Verify(pubPEM, "hello broker", "%%%not-base64%%%"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for undecodable signature, got %v", err)
	}
}

func TestDeviceKeyVerifierEd25519(t *testing.T) {
	verifier := NewDeviceKeyVerifier()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte("challenge-text")))
	if err := verifier.Verify(pubPEM, "challenge-text", sig); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := verifier.Verify(pubPEM, "tampered", sig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestDeviceKeyVerifierMalformedKey(t *testing.T) {
	verifier := NewDeviceKeyVerifier()
	err := verifier.Verify("not a pem block", "msg", base64.StdEncoding.EncodeToString([]byte("sig")))
	if !errors.Is(err, ErrMalformedPublicKey) {
		t.Fatalf("expected ErrMalformedPublicKey, got %v", err)
	}
}
