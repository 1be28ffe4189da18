package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Trading.ConfidenceThreshold)
	assert.Equal(t, 0.70, cfg.Trading.MaxEntryPrice)
	assert.Equal(t, SizingFixed, cfg.Trading.SizingMode)
	assert.Equal(t, 0.01, cfg.Trading.FeeRate)
	assert.Equal(t, 0.005, cfg.Trading.SlippageRate)
	assert.Equal(t, 2, cfg.Trading.EnsembleMinVotes)
	assert.Equal(t, 1000.0, cfg.Risk.InitialCapital)
	assert.Equal(t, 0.2, cfg.Risk.MaxDrawdownLimit)
	assert.Equal(t, 50.0, cfg.Risk.MaxDailyLoss)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	payload := `{
		"trading": {"sizingMode": "percent", "positionSizePct": 0.05},
		"risk": {"initialCapital": 500},
		"database": {"driver": "postgres", "host": "db", "database": "trading"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SizingPercent, cfg.Trading.SizingMode)
	assert.Equal(t, 0.05, cfg.Trading.PositionSizePct)
	assert.Equal(t, 500.0, cfg.Risk.InitialCapital)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad sizing mode":   `{"trading": {"sizingMode": "martingale"}}`,
		"bad driver":        `{"database": {"driver": "sqlite"}}`,
		"bad entry ceiling": `{"trading": {"maxEntryPrice": 1.5}}`,
		"bad imbalance":     `{"trading": {"imbalanceThreshold": 0.5}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
