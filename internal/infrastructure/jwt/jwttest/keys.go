// Package jwttest builds token providers backed by throwaway RSA keys.
package jwttest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/config"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/stretchr/testify/require"
)

// WriteKeyPair generates an RSA key pair into t.TempDir() and returns the PEM paths.
func WriteKeyPair(t *testing.T) (privPath, pubPath string) {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath = filepath.Join(dir, "private.pem")
	pubPath = filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))
	return privPath, pubPath
}

// Config returns the token settings used across tests.
func Config(t *testing.T) *config.Config {
	t.Helper()
	priv, pub := WriteKeyPair(t)
	return &config.Config{
		JWTPrivateKeyPath: priv,
		JWTPublicKeyPath:  pub,
		JWTIssuer:         "test",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   7 * 24 * time.Hour,
	}
}

// NewProvider returns a provider with fresh keys.
func NewProvider(t *testing.T, opts ...jwtinfra.Option) *jwtinfra.Provider {
	t.Helper()
	p, err := jwtinfra.NewProvider(Config(t), opts...)
	require.NoError(t, err)
	return p
}
