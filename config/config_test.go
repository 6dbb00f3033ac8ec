package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{
		Controller: "0x00000000000000000000000000000000000000a1",
		Collateral: []CollateralConfig{
			{Symbol: "WETH", Decimals: 18, Feed: "WETH", Active: true},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsExcessPrecision(t *testing.T) {
	cfg := validConfig()
	cfg.Collateral[0].Decimals = 19
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds canonical")
}

func TestValidateRejectsDuplicateSymbols(t *testing.T) {
	cfg := validConfig()
	cfg.Collateral = append(cfg.Collateral, CollateralConfig{Symbol: "weth", Decimals: 18, Feed: "WETH"})
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroController(t *testing.T) {
	cfg := validConfig()
	cfg.Controller = "0x0000000000000000000000000000000000000000"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnderCollateralisation(t *testing.T) {
	cfg := validConfig()
	cfg.MinCollateralBps = 9_000
	require.Error(t, cfg.Validate())
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synthvault.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.EqualValues(t, 15_000, cfg.MinCollateralBps)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ListenAddress, reloaded.ListenAddress)
	require.Len(t, reloaded.Collateral, 2)
}
