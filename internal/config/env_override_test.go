package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("PMODEL_LOG_LEVEL enables debug mode", func(t *testing.T) {
		t.Setenv("PMODEL_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.True(t, cfg.Logging.DebugMode)
	})

	t.Run("PMODEL_FACT_LIMIT", func(t *testing.T) {
		t.Setenv("PMODEL_FACT_LIMIT", "7")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 7, cfg.Engine.FactLimit)
	})

	t.Run("malformed PMODEL_FACT_LIMIT is ignored", func(t *testing.T) {
		t.Setenv("PMODEL_FACT_LIMIT", "lots")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 100000, cfg.Engine.FactLimit)
	})

	t.Run("PMODEL_BUILTIN", func(t *testing.T) {
		t.Setenv("PMODEL_BUILTIN", "/etc/pmodel/builtin.yaml")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "/etc/pmodel/builtin.yaml", cfg.Mapping.BuiltinPath)
	})

	t.Run("unset variables change nothing", func(t *testing.T) {
		t.Setenv("PMODEL_LOG_LEVEL", "")
		t.Setenv("PMODEL_FACT_LIMIT", "")
		t.Setenv("PMODEL_BUILTIN", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, DefaultConfig(), cfg)
	})
}
