package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.Equal(t, "custody", cfg.AMQPExchange)
	assert.Equal(t, []string{"COLLECTED", "SEALED", "ANALYZED", "VERIFIED"}, cfg.RequiredOrder)
	assert.Empty(t, cfg.AllowedSkips)
	assert.Equal(t, 24*time.Hour, cfg.MaxAccessDuration)
	assert.True(t, cfg.NoParallelAccess)
}

func TestLoadConfig_DefaultsWhenNoOverrides(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"cmd"}

	cfg := LoadConfig()
	assert.Equal(t, 24*time.Hour, cfg.MaxAccessDuration)
	assert.Equal(t, "custody.commands", cfg.CommandQueue)
}
