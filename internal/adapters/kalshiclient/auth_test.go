package kalshiclient

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestKeyPEM(t *testing.T) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), key
}

func TestSignRequestHeaders(t *testing.T) {
	pemBytes, key := generateTestKeyPEM(t)
	signer, err := NewSigner("key-id-123", pemBytes)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "https://example.com/trade-api/v2/portfolio/balance", nil)
	require.NoError(t, err)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, signer.SignRequest(req, http.MethodGet, "/trade-api/v2/portfolio/balance", now))

	assert.Equal(t, "key-id-123", req.Header.Get("KALSHI-ACCESS-KEY"))
	assert.Equal(t, "1788091200000", req.Header.Get("KALSHI-ACCESS-TIMESTAMP"))

	// The signature must verify against timestamp + method + path.
	sig, err := base64.StdEncoding.DecodeString(req.Header.Get("KALSHI-ACCESS-SIGNATURE"))
	require.NoError(t, err)

	message := "1788091200000" + "GET" + "/trade-api/v2/portfolio/balance"
	hash := sha256.Sum256([]byte(message))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	assert.NoError(t, err)
}

func TestNewSignerParsesPKCS1(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	_, err = NewSigner("key-id", pemBytes)
	assert.NoError(t, err)
}

func TestNewSignerRejectsGarbage(t *testing.T) {
	_, err := NewSigner("key-id", []byte("not a pem"))
	assert.Error(t, err)

	_, err = NewSigner("", nil)
	assert.Error(t, err)
}
