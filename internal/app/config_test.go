package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, shared.RoundHalfUp, cfg.Rounding())
	assert.Equal(t, "0.21", cfg.Rates().VAT.String())
	assert.True(t, cfg.Rates().Perception.IsZero())
	assert.True(t, cfg.InventoryAllowNegative)
	assert.Equal(t, 3, cfg.NumberingMaxRetries)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ROUNDING_MODE", "half_even")
	t.Setenv("TAX_DEFAULT_PERCEPTION_RATE", "0.03")
	t.Setenv("INVENTORY_ALLOW_NEGATIVE", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, shared.RoundHalfEven, cfg.Rounding())
	assert.Equal(t, "0.03", cfg.Rates().Perception.String())
	assert.False(t, cfg.InventoryAllowNegative)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"ROUNDING_MODE":                 "truncate",
		"TAX_DEFAULT_VAT_RATE":          "21%",
		"TAX_DEFAULT_GROSS_INCOME_RATE": "1.5",
		"NUMBERING_MAX_RETRIES":         "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "staging", LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.Int64("document_id", 7))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "staging", entry["env"])
	assert.Equal(t, float64(7), entry["document_id"])
}
