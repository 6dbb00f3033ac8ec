package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"synthvault/config"
	nativecommon "synthvault/native/common"
	"synthvault/native/oracle"
	"synthvault/native/synth"
	"synthvault/observability/logging"
	"synthvault/rpc"
	"synthvault/storage"
	"synthvault/token"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./synthvault.toml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup("synthvaultd", "").Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("synthvaultd", cfg.Environment)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open state database", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	state := storage.NewState(db)

	// Token ledgers treat the controller address as the vault holding
	// pulled collateral. Each ledger is restored from disk at boot and
	// written through on every mutation, so balances and supply stay in
	// step with the persisted positions across restarts.
	custody := cfg.ControllerAddress()
	openLedger := func(symbol string) *token.Ledger {
		ledger := token.NewLedger(symbol, custody)
		snap, ok, err := state.LoadLedger(symbol)
		if err != nil {
			logger.Error("failed to load token ledger", "symbol", symbol, "error", err)
			os.Exit(1)
		}
		if ok {
			if err := ledger.Restore(snap); err != nil {
				logger.Error("failed to restore token ledger", "symbol", symbol, "error", err)
				os.Exit(1)
			}
		}
		ledger.SetOnChange(func(snap token.Snapshot) {
			if err := state.SaveLedger(snap); err != nil {
				logger.Error("failed to persist token ledger", "symbol", symbol, "error", err)
			}
		})
		return ledger
	}
	debtToken := openLedger("SUSD")

	source := oracle.NewManualSource()
	adapter := oracle.NewAdapter(source, cfg.StalenessWindow())

	pauses := nativecommon.NewProtocolState(cfg.ControllerAddress())

	engine := synth.NewEngine(synth.RiskParameters{
		MinCollateralBps:    cfg.MinCollateralBps,
		LiquidationBonusBps: cfg.LiquidationBonusBps,
	})
	engine.SetState(state)
	engine.SetOracle(adapter)
	engine.SetDebtToken(debtToken)
	engine.SetPauses(pauses)
	engine.SetLogger(logger.With("component", "synth"))

	collateralLedgers := make(map[string]*token.Ledger, len(cfg.Collateral))
	for _, c := range cfg.Collateral {
		asset := synth.CollateralAsset{
			Symbol:   c.Symbol,
			Decimals: c.Decimals,
			Feed:     c.Feed,
			Active:   c.Active,
		}
		ledger := openLedger(c.Symbol)
		if err := engine.RegisterAsset(asset, ledger); err != nil {
			logger.Error("failed to register collateral", "symbol", c.Symbol, "error", err)
			os.Exit(1)
		}
		collateralLedgers[strings.ToUpper(c.Symbol)] = ledger
		logger.Info("collateral registered", "symbol", c.Symbol, "decimals", c.Decimals, "feed", c.Feed, "active", c.Active)
	}

	server := rpc.NewServer(engine, pauses,
		rpc.WithLogger(logger.With("component", "rpc")),
		rpc.WithPriceOverride(source),
		rpc.WithFunding(collateralLedgers),
	)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
