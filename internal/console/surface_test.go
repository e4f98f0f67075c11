package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadalink/internal/polling"
)

func TestRestartGroup_StopsThenStartsWithStoredConfig(t *testing.T) {
	cs := newFakeControlSurface()
	cs.configs["G1"] = polling.GroupConfig{ID: "G1", PLCCode: "P1"}

	err := RestartGroup(cs, "G1")

	require.NoError(t, err)
	assert.Equal(t, []string{"G1"}, cs.stopped)
	assert.Equal(t, []string{"G1"}, cs.started)
}

func TestRestartGroup_UnknownGroupReturnsError(t *testing.T) {
	cs := newFakeControlSurface()

	err := RestartGroup(cs, "missing")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	assert.Empty(t, cs.started)
}
