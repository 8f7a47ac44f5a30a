package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_WritesToLogFile(t *testing.T) {
	orig := logFileName
	logFileName = filepath.Join(t.TempDir(), "specwave.log")
	defer func() { logFileName = orig }()

	Initialize(false)
	Initialize(false) // second call is a no-op
	WarningLog.Printf("wave %d failed", 2)
	Close()
	Close()

	data, err := os.ReadFile(logFileName)
	require.NoError(t, err)
	assert.Contains(t, string(data), "WARNING: ")
	assert.Contains(t, string(data), "wave 2 failed")
	assert.Equal(t, logFileName, FileName())
}

func TestInitialize_UnwritableFileStillWorks(t *testing.T) {
	orig := logFileName
	logFileName = filepath.Join(t.TempDir(), "missing", "dir", "specwave.log")
	defer func() { logFileName = orig }()

	Initialize(false)
	assert.NotPanics(t, func() { ErrorLog.Printf("boom") })
	Close()
}
