package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"harvestledger/internal/passphrase"
	"harvestledger/crypto"
	"harvestledger/observability/logging"
	"harvestledger/services/scoresigner/config"
	"harvestledger/services/scoresigner/server"
	"harvestledger/services/scoresigner/signer"
	"harvestledger/services/scoresigner/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/scoresigner/config.yaml", "path to scoresigner configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("HRV_ENV"))
	logger := logging.Setup("scoresigner", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("scoresigner: load config: %v", err)
	}

	secret := ""
	if strings.TrimSpace(cfg.PassphraseEnv) != "" {
		resolved, err := passphrase.NewSource(cfg.PassphraseEnv).Get()
		if err != nil {
			log.Fatalf("scoresigner: resolve keystore passphrase: %v", err)
		}
		secret = resolved
	}

	key, err := crypto.LoadFromKeystore(cfg.KeystorePath, secret)
	if err != nil {
		log.Fatalf("scoresigner: load keystore: %v", err)
	}
	sig, err := signer.New(key)
	if err != nil {
		log.Fatalf("scoresigner: construct signer: %v", err)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("scoresigner: open storage: %v", err)
	}
	defer store.Close()

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		RatePerSecond: cfg.RateLimit.PerSecond,
		RateBurst:     cfg.RateLimit.Burst,
	}, sig, store, logger)
	if err != nil {
		log.Fatalf("scoresigner: construct server: %v", err)
	}

	signerAddr := sig.Address()
	logger.Info("scoresigner ready", "signer", crypto.NewAddress(crypto.HarvestPrefix, signerAddr[:]).String())
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("scoresigner: serve: %v", err)
	}
}
