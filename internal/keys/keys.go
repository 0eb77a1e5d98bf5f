package keys

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// Material holds the process-wide RSA signing keypair. It is loaded and
// validated once at startup; a malformed or missing key aborts boot
// rather than letting the server sign with garbage material.
type Material struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	kid     string
}

// Load reads the keypair from literal PEM values or file paths. Literal
// values take precedence; escaped newlines in env values are unescaped.
func Load(privatePEM, privatePath, publicPEM, publicPath string) (*Material, error) {
	privRaw, err := resolvePEM(privatePEM, privatePath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	pubRaw, err := resolvePEM(publicPEM, publicPath)
	if err != nil {
		return nil, fmt.Errorf("load public key: %w", err)
	}

	priv, err := parsePrivateKey(privRaw)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	pub, err := parsePublicKey(pubRaw)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	if priv.PublicKey.N.Cmp(pub.N) != 0 || priv.PublicKey.E != pub.E {
		return nil, fmt.Errorf("public key does not match private key")
	}

	sum := sha256.Sum256(pubRaw)
	return &Material{
		private: priv,
		public:  pub,
		kid:     hex.EncodeToString(sum[:])[:16],
	}, nil
}

// Private returns the signing key. It never leaves this process.
func (m *Material) Private() *rsa.PrivateKey { return m.private }

// Public returns the verification key.
func (m *Material) Public() *rsa.PublicKey { return m.public }

// KID is derived deterministically from the public PEM so external
// verifiers can cache keys by kid across restarts.
func (m *Material) KID() string { return m.kid }

// JWKS builds the publishable key set containing only the public half.
func (m *Material) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       m.public,
			KeyID:     m.kid,
			Use:       "sig",
			Algorithm: string(jose.RS256),
		}},
	}
}

func resolvePEM(literal, path string) ([]byte, error) {
	if trimmed := strings.TrimSpace(literal); trimmed != "" {
		// Env values carry \n as two characters.
		return []byte(strings.ReplaceAll(trimmed, `\n`, "\n")), nil
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("no key material configured")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func parsePrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return key, nil
}

func parsePublicKey(raw []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return key, nil
}
