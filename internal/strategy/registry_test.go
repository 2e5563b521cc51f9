package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlab/internal/market"
)

func writeStrategyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validProfiles = `
strategies:
  sma_cross:
    enabled: true
    params:
      short_window: 5
      long_window: 20
  rsi_bb:
    enabled: false
    params:
      rsi_window: 14
  vwap_reversion:
    enabled: true
    params:
      entry_threshold: 0.03
      exit_threshold: 0.01
`

func TestRegistryLoadsProfiles(t *testing.T) {
	reg, err := NewRegistry(writeStrategyFile(t, validProfiles))
	require.NoError(t, err)

	snap := reg.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Profiles, 3)

	gens, err := reg.Generators()
	require.NoError(t, err)
	require.Len(t, gens, 2)
	// 按名称排序。
	assert.Equal(t, NameSMACross, gens[0].Name())
	assert.Equal(t, NameVWAPReversion, gens[1].Name())
	assert.Equal(t, 20, gens[0].MinLookback())
}

func TestRegistryParams(t *testing.T) {
	reg, err := NewRegistry(writeStrategyFile(t, validProfiles))
	require.NoError(t, err)

	params, err := reg.Params(NameSMACross)
	require.NoError(t, err)
	assert.EqualValues(t, 5, params["short_window"])

	_, err = reg.Params(NameRSIBollinger)
	assert.ErrorIs(t, err, market.ErrInvalidParameter, "disabled strategy must be rejected")

	_, err = reg.Params("momentum")
	assert.ErrorIs(t, err, market.ErrInvalidParameter)
}

func TestRegistryRejectsUnknownStrategy(t *testing.T) {
	_, err := NewRegistry(writeStrategyFile(t, `
strategies:
  momentum:
    enabled: true
    params: {}
`))
	assert.ErrorIs(t, err, market.ErrInvalidParameter)
}

func TestRegistryRejectsSchemaViolation(t *testing.T) {
	_, err := NewRegistry(writeStrategyFile(t, `
strategies:
  sma_cross:
    enabled: true
    params:
      short_window: -3
      long_window: 20
`))
	assert.Error(t, err)
}

func TestRegistryRejectsCrossFieldViolation(t *testing.T) {
	// Schema 逐字段通过，但 long <= short 由构造函数兜底拒绝。
	_, err := NewRegistry(writeStrategyFile(t, `
strategies:
  sma_cross:
    enabled: true
    params:
      short_window: 30
      long_window: 20
`))
	assert.ErrorIs(t, err, market.ErrInvalidParameter)
}

func TestRegistryRejectsUnknownTopLevelKey(t *testing.T) {
	_, err := NewRegistry(writeStrategyFile(t, `
strategies: {}
extra_key: true
`))
	assert.Error(t, err)
}

func TestRegistryRequiresPath(t *testing.T) {
	_, err := NewRegistry("  ")
	assert.ErrorIs(t, err, market.ErrInvalidParameter)
}
