package jwt_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heishia/ppop-auth/internal/jwt"
	"github.com/heishia/ppop-auth/internal/keys"
)

func testMaterial(t *testing.T) *keys.Material {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	material, err := keys.Load(string(privPEM), "", string(pubPEM), "")
	require.NoError(t, err)
	return material
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer := jwt.NewIssuer(testMaterial(t), 900, 604800)

	pair, err := issuer.Issue(42, "user@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, 900, pair.ExpiresIn)

	claims, err := issuer.Verify(pair.AccessToken, jwt.TypeAccess)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, "user@example.com", claims.Email)
	require.Equal(t, jwt.TypeAccess, claims.Type)

	claims, err = issuer.Verify(pair.RefreshToken, jwt.TypeRefresh)
	require.NoError(t, err)
	require.Equal(t, jwt.TypeRefresh, claims.Type)
}

func TestVerifyWrongType(t *testing.T) {
	issuer := jwt.NewIssuer(testMaterial(t), 900, 604800)

	pair, err := issuer.Issue(7, "user@example.com")
	require.NoError(t, err)

	_, err = issuer.Verify(pair.AccessToken, jwt.TypeRefresh)
	require.ErrorIs(t, err, jwt.ErrWrongType)

	_, err = issuer.Verify(pair.RefreshToken, jwt.TypeAccess)
	require.ErrorIs(t, err, jwt.ErrWrongType)
}

func TestVerifyExpired(t *testing.T) {
	issuer := jwt.NewIssuer(testMaterial(t), -60, -60)

	pair, err := issuer.Issue(7, "user@example.com")
	require.NoError(t, err)

	_, err = issuer.Verify(pair.AccessToken, jwt.TypeAccess)
	require.ErrorIs(t, err, jwt.ErrExpired)
}

func TestVerifyForeignKey(t *testing.T) {
	issuer := jwt.NewIssuer(testMaterial(t), 900, 604800)
	other := jwt.NewIssuer(testMaterial(t), 900, 604800)

	pair, err := issuer.Issue(7, "user@example.com")
	require.NoError(t, err)

	_, err = other.Verify(pair.AccessToken, jwt.TypeAccess)
	require.ErrorIs(t, err, jwt.ErrBadSignature)
}

func TestVerifyGarbage(t *testing.T) {
	issuer := jwt.NewIssuer(testMaterial(t), 900, 604800)

	_, err := issuer.Verify("not.a.jwt", jwt.TypeAccess)
	require.ErrorIs(t, err, jwt.ErrBadSignature)
}
