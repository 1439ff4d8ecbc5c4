package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketAttestations = []byte("attestations")

	// ErrNotFound is returned when no attestation exists for an address.
	ErrNotFound = errors.New("storage: no attestations recorded")
)

// Store persists an append-only audit trail of issued attestations.
type Store struct {
	db *bolt.DB
}

// Attestation records a single issued signature.
type Attestation struct {
	Address   string    `json:"address"`
	Score     string    `json:"score"`
	Signature string    `json:"signature"`
	RequestID string    `json:"requestId"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// Open opens or creates the bolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketAttestations)
		return createErr
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an attestation under the subject address.
func (s *Store) Record(addr [20]byte, att Attestation) error {
	if s == nil || s.db == nil {
		return errors.New("storage: store not initialised")
	}
	encoded, err := json.Marshal(att)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketAttestations)
		sub, err := bucket.CreateBucketIfNotExists(addrKey(addr))
		if err != nil {
			return err
		}
		seq, err := sub.NextSequence()
		if err != nil {
			return err
		}
		return sub.Put(seqKey(seq), encoded)
	})
}

// Attestations returns every attestation recorded for the address in
// issue order.
func (s *Store) Attestations(addr [20]byte) ([]Attestation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage: store not initialised")
	}
	var out []Attestation
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketAttestations)
		sub := bucket.Bucket(addrKey(addr))
		if sub == nil {
			return ErrNotFound
		}
		return sub.ForEach(func(_, v []byte) error {
			var att Attestation
			if err := json.Unmarshal(v, &att); err != nil {
				return err
			}
			out = append(out, att)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func addrKey(addr [20]byte) []byte {
	return []byte(hex.EncodeToString(addr[:]))
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}
