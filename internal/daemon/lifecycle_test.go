package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLifecycleManager(t *testing.T) {
	dir := t.TempDir()

	lm := NewLifecycleManager(dir, testLogger())
	assert.Equal(t, filepath.Join(dir, "toolgate.pid"), lm.PIDFile())
}

func TestLifecycleManagerStartStop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	lm := NewLifecycleManager(dir, testLogger())

	require.NoError(t, lm.Start())

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, lm.IsRunning())

	require.NoError(t, lm.Stop())
	_, err = os.Stat(lm.PIDFile())
	assert.True(t, os.IsNotExist(err))
	assert.False(t, lm.IsRunning())

	// stopping twice is harmless
	assert.NoError(t, lm.Stop())
}

func TestLifecycleManager_StalePIDFile(t *testing.T) {
	dir := t.TempDir()
	lm := NewLifecycleManager(dir, testLogger())

	// PIDs above the kernel maximum never belong to a live process
	require.NoError(t, os.WriteFile(lm.PIDFile(), []byte(strconv.Itoa(1<<30)), 0644))
	assert.False(t, lm.IsRunning())

	require.NoError(t, lm.Start())
	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLifecycleManager_InvalidPIDFile(t *testing.T) {
	dir := t.TempDir()
	lm := NewLifecycleManager(dir, testLogger())

	require.NoError(t, os.WriteFile(lm.PIDFile(), []byte("not-a-pid"), 0644))

	_, err := lm.GetPID()
	assert.Error(t, err)
	assert.False(t, lm.IsRunning())
}
