package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStrategyPath(t *testing.T) {
	assert.Equal(t, filepath.Join("configs", "btc_5m.json"), ResolveStrategyPath("btc_5m"))
	assert.Equal(t, filepath.Join("configs", "plan.yaml"), ResolveStrategyPath("plan.yaml"))
	assert.Equal(t, "/tmp/plan.json", ResolveStrategyPath("/tmp/plan"))
}

func TestStrategyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans", "btc.json")
	cfg := NewDefaultDcaStrategyConfig()
	require.NoError(t, SaveStrategyFile(cfg, path))

	loaded, err := LoadStrategyFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Levels, loaded.Levels)
	assert.Equal(t, cfg.TakeProfits, loaded.TakeProfits)
	assert.True(t, loaded.Enabled)
}

func TestLoadStrategyFileFromWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"total_capital": 1000,
		"levels": [
			{"level": 1, "drop_pct": 0, "weight_pct": 60},
			{"level": 2, "drop_pct": 3, "weight_pct": 40}
		],
		"take_profit_pct": 2
	}`), 0o644))

	cfg, err := LoadStrategyFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled, "plans are enabled unless the file says otherwise")
	assert.Equal(t, 600.0, cfg.Levels[0].OrderAmount)
	assert.Equal(t, 400.0, cfg.Levels[1].OrderAmount)
	assert.Len(t, cfg.EffectiveTakeProfits(), 1)
}

func TestLoadStrategyFileRejectsInvalidPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"levels":[{"level":1,"drop_pct":5,"order_amount":10}]}`), 0o644))
	_, err := LoadStrategyFile(path)
	require.Error(t, err)

	_, err = LoadStrategyFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
