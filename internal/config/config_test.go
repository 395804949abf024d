package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	cmd := &cobra.Command{Use: "test"}
	RegisterFlags(cmd, v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxConcurrentSessions)
	assert.Equal(t, 1000, cfg.RingBufferCapacity)
	assert.True(t, cfg.DurableLogEnabled)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("AGENTSHELL_MODEL", "gpt-4o")
	v := viper.New()
	cmd := &cobra.Command{Use: "test"}
	RegisterFlags(cmd, v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
}
