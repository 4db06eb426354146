package crypto

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"path"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// assertionTTL bounds the validity of one execution assertion.
const assertionTTL = 2 * time.Minute

// KeyManager implements the KeyVault port: ECDSA P-256 session keypairs with
// private halves held in the secret store, and ES256 execution assertions
// minted on demand.
type KeyManager struct {
	store  SecretStore
	logger logger.Logger
}

// NewKeyManager creates a key manager over the given secret store.
func NewKeyManager(store SecretStore, log logger.Logger) service.KeyVault {
	return &KeyManager{store: store, logger: log.WithComponent("KeyManager")}
}

func handleFor(sessionID string) string {
	return path.Join("sessions", sessionID)
}

// GenerateKeypair creates a fresh P-256 keypair, stores the PEM-encoded
// private key under the session's handle, and returns the uncompressed
// public point in hex.
func (k *KeyManager) GenerateKeypair(ctx context.Context, sessionID string) (string, string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate keypair: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("encode private key: %w", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	handle := handleFor(sessionID)
	if err := k.store.Put(ctx, handle, map[string]interface{}{
		"private_key": string(pemKey),
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return "", "", fmt.Errorf("store private key: %w", err)
	}

	// Uncompressed SEC1 point: 0x04 || X || Y.
	point := make([]byte, 65)
	point[0] = 4
	key.PublicKey.X.FillBytes(point[1:33])
	key.PublicKey.Y.FillBytes(point[33:65])

	return "0x" + hex.EncodeToString(point), handle, nil
}

// SignAssertion mints a short-lived ES256 token over the given claims with
// the handle's private key. The settlement gateway verifies it against the
// session's public key.
func (k *KeyManager) SignAssertion(ctx context.Context, handle string, claims map[string]interface{}) (string, error) {
	key, err := k.loadPrivateKey(ctx, handle)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	mapClaims := jwt.MapClaims{
		"iss": constants.ServiceName,
		"iat": now.Unix(),
		"exp": now.Add(assertionTTL).Unix(),
	}
	for key, value := range claims {
		mapClaims[key] = value
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, mapClaims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}

// Destroy removes the handle's private key. Terminal credentials keep their
// record for audit but lose their signing capability.
func (k *KeyManager) Destroy(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	return k.store.Delete(ctx, handle)
}

func (k *KeyManager) loadPrivateKey(ctx context.Context, handle string) (*ecdsa.PrivateKey, error) {
	data, err := k.store.Get(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	pemKey, ok := data["private_key"].(string)
	if !ok {
		return nil, fmt.Errorf("malformed key material at %s", handle)
	}
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("malformed PEM at %s", handle)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
