package agentstate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndClearHistory(t *testing.T) {
	s := New("")
	s.AppendTurn("user", "hello")
	s.AppendTurn("assistant", "hi there")
	assert.Len(t, s.GetHistory(), 2)

	s.ClearHistory()
	assert.Empty(t, s.GetHistory())
}

func TestSaveAndLoadSessionRoundTrips(t *testing.T) {
	s := New("gpt-4o")
	s.AppendTurn("user", "hello")
	s.SetModel("gpt-4.1")
	s.ToggleVerbose()

	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, s.SaveSession(path))

	loaded := New("")
	require.NoError(t, loaded.LoadSession(path))
	assert.Equal(t, "gpt-4.1", loaded.GetCurrentModel())
	assert.True(t, loaded.verbose)
	require.Len(t, loaded.GetHistory(), 1)
	assert.Equal(t, "hello", loaded.GetHistory()[0].Content)
}

func TestToggles(t *testing.T) {
	s := New("")
	assert.True(t, s.ToggleParallel())
	assert.False(t, s.ToggleParallel())
	assert.True(t, s.ToggleVerbose())
}

func TestListAvailableModels(t *testing.T) {
	s := New("")
	models := s.ListAvailableModels()
	assert.Contains(t, models, "gpt-4o-mini")
}
