package util

import (
	"bytes"
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	closer, err := InitLogger(LogConfig{Level: "debug", Directory: dir, MaxBackups: 5, Console: true, ConsoleOut: &console})
	require.NoError(t, err)

	logger := ComponentLogger("test")
	logger.Info().Msg("hello from test")
	require.NoError(t, closer.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "mcwatch_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, console.String(), "hello from test")
}

func TestInitLoggerWithoutFile(t *testing.T) {
	closer, err := InitLogger(LogConfig{Level: "bogus"})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	log.Info().Msg("discarded")
}

func TestPruneLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"mcwatch_2024-01-01.log",
		"mcwatch_2024-01-02.log",
		"mcwatch_2024-01-03.log",
		"other.log",
	}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	removed := pruneLogs(dir, 2)
	assert.Equal(t, []string{filepath.Join(dir, "mcwatch_2024-01-01.log")}, removed)
	assert.FileExists(t, filepath.Join(dir, "other.log"))
	assert.FileExists(t, filepath.Join(dir, "mcwatch_2024-01-03.log"))
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls", "cert.pem")
	keyFile := filepath.Join(dir, "tls", "key.pem")

	created, err := EnsureSelfSignedCert(certFile, keyFile, "localhost", "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, created)

	_, err = tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)

	created, err = EnsureSelfSignedCert(certFile, keyFile)
	require.NoError(t, err)
	assert.False(t, created, "existing files are kept")
}

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.NotEmpty(t, info.Platform)
	assert.Positive(t, info.CPUCores)

	load := GetHostLoad()
	assert.Positive(t, load.Goroutines)
}
