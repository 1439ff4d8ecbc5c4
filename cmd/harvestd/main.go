package main

import (
	"flag"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"harvestledger/internal/passphrase"
	"harvestledger/config"
	"harvestledger/core/events"
	"harvestledger/crypto"
	"harvestledger/native/settlement"
	"harvestledger/observability/logging"
	"harvestledger/rpc"
	"harvestledger/state"
	"harvestledger/storage"
)

const ownerPassEnv = "HRV_OWNER_PASS"

// commitInterval bounds how much settled state a crash can lose.
const commitInterval = 30 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("HRV_ENV"))
	logger := logging.Setup("harvestd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	params, err := cfg.Parameters()
	if err != nil {
		logger.Error("Failed to parse configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ownerPass := ""
	if _, ok := os.LookupEnv(ownerPassEnv); ok {
		resolved, err := passphrase.NewSource(ownerPassEnv).Get()
		if err != nil {
			logger.Error("Failed to resolve owner passphrase", slog.Any("error", err))
			os.Exit(1)
		}
		ownerPass = resolved
	}
	ownerKey, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, ownerPass)
	if err != nil {
		logger.Error("Failed to load owner keystore", slog.Any("error", err))
		os.Exit(1)
	}
	ownerAddr := ownerKey.PubKey().Address().Array()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	ledger := state.NewLedger()
	if err := ledger.Load(db); err != nil {
		logger.Error("Failed to load ledger state", slog.Any("error", err))
		os.Exit(1)
	}

	registry := settlement.NewRegistry()
	engine, err := settlement.NewEngine(ledger, registry, params.LedgerAddress, params.CompanyWallet, ownerAddr)
	if err != nil {
		logger.Error("Failed to construct settlement engine", slog.Any("error", err))
		os.Exit(1)
	}
	recorder := events.NewRecorder()
	engine.SetEmitter(recorder)

	if err := applyOverrides(engine, ownerAddr, params); err != nil {
		logger.Error("Failed to apply configuration overrides", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("harvestd ready",
		"owner", crypto.NewAddress(crypto.HarvestPrefix, ownerAddr[:]).String(),
		"company", crypto.NewAddress(crypto.HarvestPrefix, params.CompanyWallet[:]).String(),
		"rpc", cfg.RPCAddress,
	)

	server := rpc.NewServer(engine, recorder)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.RPCAddress)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(commitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ledger.Commit(db); err != nil {
				logger.Error("Failed to commit ledger state", slog.Any("error", err))
			}
		case sig := <-stop:
			logger.Info("Shutting down", "signal", sig.String())
			if err := ledger.Commit(db); err != nil {
				logger.Error("Failed to commit ledger state on shutdown", slog.Any("error", err))
				os.Exit(1)
			}
			return
		case err := <-serveErr:
			logger.Error("RPC server stopped", slog.Any("error", err))
			if commitErr := ledger.Commit(db); commitErr != nil {
				logger.Error("Failed to commit ledger state on shutdown", slog.Any("error", commitErr))
			}
			os.Exit(1)
		}
	}
}

// applyOverrides pushes configured fee values and the deny list into the
// engine as owner operations. Stored engine state wins on restart unless
// the config supplies an explicit override.
func applyOverrides(engine *settlement.Engine, ownerAddr [20]byte, params config.Parameters) error {
	ctx := settlement.CallContext{Caller: ownerAddr}
	apply := func(current *big.Int, override *big.Int, set func(settlement.CallContext, *big.Int) error) error {
		if override == nil || current.Cmp(override) == 0 {
			return nil
		}
		return set(ctx, override)
	}
	if err := apply(engine.ServiceFee(), params.ServiceFee, engine.SetServiceFee); err != nil {
		return err
	}
	if err := apply(engine.TokenPayment(), params.TokenPayment, engine.SetTokenPayment); err != nil {
		return err
	}
	if err := apply(engine.MinNativeToHarvest(), params.MinNativeToHarvest, engine.SetMinNativeToHarvest); err != nil {
		return err
	}
	for _, addr := range params.Denied {
		if engine.IsDenied(addr) {
			continue
		}
		if err := engine.SetDenylisted(ctx, addr, true); err != nil {
			return err
		}
	}
	return nil
}
