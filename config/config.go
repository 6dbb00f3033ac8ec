package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// CollateralConfig declares one approved collateral asset.
type CollateralConfig struct {
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
	Feed     string `toml:"Feed"`
	Active   bool   `toml:"Active"`
}

type Config struct {
	ListenAddress       string             `toml:"ListenAddress"`
	DataDir             string             `toml:"DataDir"`
	Environment         string             `toml:"Environment"`
	Controller          string             `toml:"Controller"`
	StalenessSeconds    int64              `toml:"StalenessSeconds"`
	MinCollateralBps    uint64             `toml:"MinCollateralBps"`
	LiquidationBonusBps uint64             `toml:"LiquidationBonusBps"`
	Collateral          []CollateralConfig `toml:"collateral"`
}

// Load reads the configuration from path, creating a commented default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8641"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./synthvault-data"
	}
	if c.StalenessSeconds <= 0 {
		c.StalenessSeconds = 3 * 60 * 60
	}
	if c.MinCollateralBps == 0 {
		c.MinCollateralBps = 15_000
	}
	if c.LiquidationBonusBps == 0 {
		c.LiquidationBonusBps = 1_000
	}
}

// Validate rejects configurations the engine must never start with.
// Collateral precision above the canonical 18 decimals is caught here, at
// registration time, never during valuation.
func (c *Config) Validate() error {
	if !ethcommon.IsHexAddress(c.Controller) {
		return fmt.Errorf("config: Controller must be a hex address, got %q", c.Controller)
	}
	if ethcommon.HexToAddress(c.Controller) == (ethcommon.Address{}) {
		return fmt.Errorf("config: Controller must not be the zero address")
	}
	if c.MinCollateralBps < 10_000 {
		return fmt.Errorf("config: MinCollateralBps %d would allow debt above collateral value", c.MinCollateralBps)
	}
	if c.LiquidationBonusBps >= 10_000 {
		return fmt.Errorf("config: LiquidationBonusBps %d must stay below 100%%", c.LiquidationBonusBps)
	}
	if len(c.Collateral) == 0 {
		return fmt.Errorf("config: at least one collateral asset required")
	}
	seen := make(map[string]struct{}, len(c.Collateral))
	for _, asset := range c.Collateral {
		sym := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if sym == "" {
			return fmt.Errorf("config: collateral entry with empty symbol")
		}
		if _, dup := seen[sym]; dup {
			return fmt.Errorf("config: duplicate collateral symbol %s", sym)
		}
		seen[sym] = struct{}{}
		if asset.Decimals > 18 {
			return fmt.Errorf("config: collateral %s precision %d exceeds canonical 18", sym, asset.Decimals)
		}
		if strings.TrimSpace(asset.Feed) == "" {
			return fmt.Errorf("config: collateral %s missing price feed", sym)
		}
	}
	return nil
}

// ControllerAddress parses the privileged controller identity.
func (c *Config) ControllerAddress() ethcommon.Address {
	return ethcommon.HexToAddress(c.Controller)
}

// StalenessWindow converts the configured seconds into a duration.
func (c *Config) StalenessWindow() time.Duration {
	return time.Duration(c.StalenessSeconds) * time.Second
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Controller: "0x0000000000000000000000000000000000000001",
		Collateral: []CollateralConfig{
			{Symbol: "WETH", Decimals: 18, Feed: "WETH", Active: true},
			{Symbol: "WBTC", Decimals: 8, Feed: "WBTC", Active: true},
		},
	}
	cfg.applyDefaults()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("config: create directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString("# synthvault engine configuration\n\n"); err != nil {
		return nil, err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode default: %w", err)
	}
	return cfg, nil
}
