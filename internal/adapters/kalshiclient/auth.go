package kalshiclient

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Signer produces the RSA-PSS authentication headers the exchange
// requires. The signed message is timestamp + method + path, hashed with
// SHA-256 and signed with a salt length equal to the hash size.
type Signer struct {
	keyID      string
	privateKey *rsa.PrivateKey
}

// NewSigner parses a PEM-encoded RSA private key (PKCS#8 or PKCS#1) and
// returns a signer for the given API key ID.
func NewSigner(keyID string, pemBytes []byte) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("API key ID is required")
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	var rsaKey *rsa.PrivateKey
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		rsaKey = pkcs1Key
	} else {
		var ok bool
		rsaKey, ok = key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("expected RSA private key, got %T", key)
		}
	}

	return &Signer{keyID: keyID, privateKey: rsaKey}, nil
}

// SignRequest adds the authentication headers for one request. The path
// must include the API prefix but not the query string.
func (s *Signer) SignRequest(req *http.Request, method, path string, now time.Time) error {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", s.keyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}
