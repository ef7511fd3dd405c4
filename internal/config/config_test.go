package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Database.Path)
	require.Equal(t, 4, cfg.Import.MaxConcurrentTransforms)
	require.Equal(t, 30*time.Second, cfg.Import.TransformTimeout)
	require.Equal(t, "EUR", cfg.Currency.Home)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BANKFEED_CURRENCY_HOME", "AUD")
	t.Setenv("BANKFEED_IMPORT_TRANSFORM_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "AUD", cfg.Currency.Home)
	require.Equal(t, 5*time.Second, cfg.Import.TransformTimeout)
}
