package util

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerateCert(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "tls", "tls.crt")
	keyPath := filepath.Join(dir, "tls", "tls.key")

	cert, err := LoadOrGenerateCert(certPath, keyPath, "gw.local", "10.0.0.1")
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)
	assert.NotNil(t, cert.PrivateKey)
	assert.FileExists(t, certPath)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"gw.local"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "10.0.0.1", leaf.IPAddresses[0].String())

	// existing files are loaded, not regenerated
	again, err := LoadOrGenerateCert(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, cert.Certificate[0], again.Certificate[0])
}

func TestLoadOrGenerateCertInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "tls.crt")
	keyPath := filepath.Join(dir, "tls.key")
	require.NoError(t, os.WriteFile(certPath, []byte("not a cert"), 0o600))
	require.NoError(t, os.WriteFile(keyPath, []byte("not a key"), 0o600))

	_, err := LoadOrGenerateCert(certPath, keyPath)
	assert.ErrorContains(t, err, "failed to load TLS certificate")
}
