package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullDocument(t *testing.T) {
	p, err := Parse([]byte(`{
		"configCaptureInterval": 5,
		"configIdleTimeout": 60,
		"configHeartbeatInterval": 15,
		"configAckTimeout": 25,
		"lockThreshold": 80,
		"unlockThreshold": 40,
		"tempFolderMaxSizeMB": 50,
		"configDestFolderPath": "ignored"
	}`))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, p.CaptureInterval)
	assert.Equal(t, 60*time.Second, p.IdleTimeout)
	assert.Equal(t, 15*time.Second, p.HeartbeatInterval)
	assert.Equal(t, 25*time.Second, p.AckTimeout)
	assert.InDelta(t, 0.8, p.DiskLockFraction, 1e-9)
	assert.InDelta(t, 0.4, p.DiskUnlockFraction, 1e-9)
	assert.Equal(t, int64(50), p.MaxQueueFolderMB)
	assert.Equal(t, int64(50*1024*1024), p.MaxQueueFolderBytes())
}

func TestParse_MissingFieldsFallBack(t *testing.T) {
	p, err := Parse([]byte(`{"configCaptureInterval": 0, "configIdleTimeout": 30}`))
	require.NoError(t, err)

	d := Defaults()
	assert.Equal(t, d.CaptureInterval, p.CaptureInterval)
	assert.Equal(t, 30*time.Second, p.IdleTimeout)
	assert.Equal(t, d.AckTimeout, p.AckTimeout)
	assert.Equal(t, d.DiskLockFraction, p.DiskLockFraction)
	assert.Equal(t, d.MaxQueueFolderMB, p.MaxQueueFolderMB)
}

func TestParse_CollapsedHysteresisIsRepaired(t *testing.T) {
	p, err := Parse([]byte(`{"lockThreshold": 60, "unlockThreshold": 70}`))
	require.NoError(t, err)

	assert.InDelta(t, 0.6, p.DiskLockFraction, 1e-9)
	assert.Less(t, p.DiskUnlockFraction, p.DiskLockFraction)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	require.Error(t, err)
}

func TestParse_FreeSpaceThresholdDoesNotSetCap(t *testing.T) {
	p, err := Parse([]byte(`{"tempFolderFreeSpaceThreshold": 5, "lockThreshold": 70}`))
	require.NoError(t, err)

	assert.Equal(t, Defaults().MaxQueueFolderMB, p.MaxQueueFolderMB)
	assert.InDelta(t, 0.7, p.DiskLockFraction, 1e-9)
}
