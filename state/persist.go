package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"harvestledger/storage"
)

var ledgerStateKey = []byte("ledger/state")

type persistedAccount struct {
	Address [20]byte
	Nonce   uint64
	Balance *big.Int
}

type persistedRecord struct {
	Key   []byte
	Value []byte
}

type persistedLedger struct {
	Accounts []persistedAccount
	Records  []persistedRecord
}

// Commit writes the full ledger state to the backing store. Accounts
// and auxiliary records are sorted so the encoding is deterministic.
func (l *Ledger) Commit(db storage.Database) error {
	if db == nil {
		return errors.New("state: nil database")
	}
	snapshot := persistedLedger{
		Accounts: make([]persistedAccount, 0, len(l.accounts)),
		Records:  make([]persistedRecord, 0, len(l.kv)),
	}
	for addr, acc := range l.accounts {
		snapshot.Accounts = append(snapshot.Accounts, persistedAccount{
			Address: addr,
			Nonce:   acc.nonce,
			Balance: acc.balance.ToBig(),
		})
	}
	sort.Slice(snapshot.Accounts, func(i, j int) bool {
		return string(snapshot.Accounts[i].Address[:]) < string(snapshot.Accounts[j].Address[:])
	})
	for key, value := range l.kv {
		snapshot.Records = append(snapshot.Records, persistedRecord{
			Key:   []byte(key),
			Value: append([]byte(nil), value...),
		})
	}
	sort.Slice(snapshot.Records, func(i, j int) bool {
		return string(snapshot.Records[i].Key) < string(snapshot.Records[j].Key)
	})
	encoded, err := rlp.EncodeToBytes(snapshot)
	if err != nil {
		return fmt.Errorf("state: encode ledger: %w", err)
	}
	return db.Put(ledgerStateKey, encoded)
}

// Load replaces the in-memory state with the persisted snapshot. A
// missing snapshot leaves the ledger empty.
func (l *Ledger) Load(db storage.Database) error {
	if db == nil {
		return errors.New("state: nil database")
	}
	encoded, err := db.Get(ledgerStateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var snapshot persistedLedger
	if err := rlp.DecodeBytes(encoded, &snapshot); err != nil {
		return fmt.Errorf("state: decode ledger: %w", err)
	}
	l.accounts = make(map[[20]byte]*accountEntry, len(snapshot.Accounts))
	l.kv = make(map[string][]byte, len(snapshot.Records))
	l.journal = journal{}
	l.validRevisions = nil
	l.nextRevisionID = 0
	for _, acc := range snapshot.Accounts {
		balance, err := toUint256(acc.Balance)
		if err != nil {
			return fmt.Errorf("state: persisted balance for %x: %w", acc.Address, err)
		}
		l.accounts[acc.Address] = &accountEntry{nonce: acc.Nonce, balance: balance}
	}
	for _, record := range snapshot.Records {
		l.kv[string(record.Key)] = append([]byte(nil), record.Value...)
	}
	return nil
}
