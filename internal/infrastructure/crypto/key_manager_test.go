package crypto

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitizen-labs/sessiond/pkg/logger"
)

func publicKeyFromHex(t *testing.T, hexKey string) *ecdsa.PublicKey {
	t.Helper()
	raw, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	require.NoError(t, err)
	require.Len(t, raw, 65)
	require.Equal(t, byte(4), raw[0])
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(raw[1:33]),
		Y:     new(big.Int).SetBytes(raw[33:65]),
	}
}

func TestGenerateKeypair(t *testing.T) {
	store := NewMemorySecretStore()
	km := NewKeyManager(store, logger.NewNoop())
	ctx := context.Background()

	publicKey, handle, err := km.GenerateKeypair(ctx, "session_1")
	require.NoError(t, err)
	assert.Equal(t, "sessions/session_1", handle)

	// The public key is a valid uncompressed P-256 point.
	pub := publicKeyFromHex(t, publicKey)
	assert.True(t, pub.Curve.IsOnCurve(pub.X, pub.Y))

	// The private half landed in the store, not in the return values.
	data, err := store.Get(ctx, handle)
	require.NoError(t, err)
	assert.Contains(t, data["private_key"], "EC PRIVATE KEY")

	// Keypairs are unique per session.
	otherKey, _, err := km.GenerateKeypair(ctx, "session_2")
	require.NoError(t, err)
	assert.NotEqual(t, publicKey, otherKey)
}

func TestSignAssertionVerifiesAgainstPublicKey(t *testing.T) {
	store := NewMemorySecretStore()
	km := NewKeyManager(store, logger.NewNoop())
	ctx := context.Background()

	publicKey, handle, err := km.GenerateKeypair(ctx, "session_3")
	require.NoError(t, err)

	signed, err := km.SignAssertion(ctx, handle, map[string]interface{}{
		"session_id": "session_3",
		"task_id":    "task_9",
		"action":     "execute-transfer",
		"amount":     int64(40),
	})
	require.NoError(t, err)

	pub := publicKeyFromHex(t, publicKey)
	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "sessiond", claims["iss"])
	assert.Equal(t, "session_3", claims["session_id"])
	assert.Equal(t, "task_9", claims["task_id"])
	assert.Equal(t, "execute-transfer", claims["action"])
	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.NotNil(t, exp)
}

func TestDestroyRemovesKeyMaterial(t *testing.T) {
	store := NewMemorySecretStore()
	km := NewKeyManager(store, logger.NewNoop())
	ctx := context.Background()

	_, handle, err := km.GenerateKeypair(ctx, "session_4")
	require.NoError(t, err)
	require.NoError(t, km.Destroy(ctx, handle))

	_, err = store.Get(ctx, handle)
	assert.Error(t, err)

	// Signing with a destroyed handle fails.
	_, err = km.SignAssertion(ctx, handle, nil)
	assert.Error(t, err)

	// Destroying nothing is a no-op.
	assert.NoError(t, km.Destroy(ctx, ""))
}
