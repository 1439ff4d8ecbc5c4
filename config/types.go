package config

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"harvestledger/crypto"
)

// Parameters captures the parsed runtime configuration for the
// settlement engine: decoded wallet addresses, optional fee overrides
// and the normalised deny list.
type Parameters struct {
	CompanyWallet      [20]byte
	LedgerAddress      [20]byte
	ServiceFee         *big.Int
	TokenPayment       *big.Int
	MinNativeToHarvest *big.Int
	Denied             [][20]byte
}

// Normalise trims whitespace, removes duplicates, and applies canonical
// casing to the deny list.
func (cfg Config) Normalise() Config {
	out := cfg
	if len(cfg.DenyList) == 0 {
		out.DenyList = nil
		return out
	}
	trimmed := make([]string, 0, len(cfg.DenyList))
	seen := make(map[string]struct{}, len(cfg.DenyList))
	for _, raw := range cfg.DenyList {
		normalized := strings.ToLower(strings.TrimSpace(raw))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		trimmed = append(trimmed, normalized)
	}
	sort.Strings(trimmed)
	out.DenyList = trimmed
	return out
}

// Parameters converts the configuration into runtime parameters.
func (cfg Config) Parameters() (Parameters, error) {
	normalized := cfg.Normalise()
	params := Parameters{}

	company, err := decodeWallet(normalized.CompanyWallet, "CompanyWallet")
	if err != nil {
		return params, err
	}
	params.CompanyWallet = company

	ledger, err := decodeWallet(normalized.LedgerAddress, "LedgerAddress")
	if err != nil {
		return params, err
	}
	params.LedgerAddress = ledger

	if params.ServiceFee, err = parseAmount(normalized.ServiceFee, "ServiceFee"); err != nil {
		return params, err
	}
	if params.TokenPayment, err = parseAmount(normalized.TokenPayment, "TokenPayment"); err != nil {
		return params, err
	}
	if params.MinNativeToHarvest, err = parseAmount(normalized.MinNativeToHarvest, "MinNativeToHarvest"); err != nil {
		return params, err
	}

	if len(normalized.DenyList) > 0 {
		denied := make([][20]byte, 0, len(normalized.DenyList))
		for _, entry := range normalized.DenyList {
			addr, err := decodeWallet(entry, "DenyList entry")
			if err != nil {
				return params, err
			}
			denied = append(denied, addr)
		}
		params.Denied = denied
	}
	return params, nil
}

func decodeWallet(raw, field string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, fmt.Errorf("config: %s is required", field)
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, fmt.Errorf("config: decode %s %q: %w", field, trimmed, err)
	}
	return decoded.Array(), nil
}

// parseAmount parses an optional decimal amount in base units. An empty
// string means no override.
func parseAmount(raw, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("config: %s %q is not a decimal amount", field, trimmed)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("config: %s must be positive", field)
	}
	return value, nil
}
