package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	state, err := LoadState(dir)
	require.NoError(t, err)
	_, ok := state.Get(StateCurrentContent)
	assert.False(t, ok, "fresh state starts empty")

	require.NoError(t, state.Set(StateCurrentContent, "토익"))
	require.NoError(t, state.Set(StatePhone, "01012345678"))

	reloaded, err := LoadState(dir)
	require.NoError(t, err)
	content, ok := reloaded.Get(StateCurrentContent)
	require.True(t, ok)
	assert.Equal(t, "토익", content)
	phone, _ := reloaded.Get(StatePhone)
	assert.Equal(t, "01012345678", phone)
}

func TestState_DeviceIDIsStable(t *testing.T) {
	dir := t.TempDir()

	state, err := LoadState(dir)
	require.NoError(t, err)
	first, err := state.DeviceID()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	again, err := state.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	reloaded, err := LoadState(dir)
	require.NoError(t, err)
	persisted, err := reloaded.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, first, persisted, "the id survives restarts")
}

func TestState_CorruptFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFileName), []byte("{broken"), 0o644))

	_, err := LoadState(dir)
	assert.Error(t, err)
}
