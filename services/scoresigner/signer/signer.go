package signer

import (
	"encoding/binary"
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"harvestledger/crypto"
)

var (
	ErrNilKey        = errors.New("signer: signing key not configured")
	ErrNegativeScore = errors.New("signer: score must not be negative")
)

// Signer produces recoverable secp256k1 attestations binding an account
// to a reputation score. The digest commits to the signer's own address
// so attestations from different signers never collide.
type Signer struct {
	key *crypto.PrivateKey
}

// New wraps a loaded keystore key.
func New(key *crypto.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	return &Signer{key: key}, nil
}

// Address returns the signer's own 20-byte address.
func (s *Signer) Address() [20]byte {
	return s.key.PubKey().Address().Array()
}

// Digest computes the keccak commitment for an address/score pair.
func (s *Signer) Digest(subject [20]byte, score *big.Int) ([]byte, error) {
	if score == nil || score.Sign() < 0 {
		return nil, ErrNegativeScore
	}
	signerAddr := s.Address()
	payload := make([]byte, 0, 20+32+20)
	payload = append(payload, subject[:]...)
	payload = append(payload, padScore(score)...)
	payload = append(payload, signerAddr[:]...)
	return ethcrypto.Keccak256(payload), nil
}

// Sign returns the 65-byte recoverable signature over the digest.
func (s *Signer) Sign(subject [20]byte, score *big.Int) ([]byte, error) {
	digest, err := s.Digest(subject, score)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Sign(digest, s.key.PrivateKey)
}

// Verify reports whether sig recovers to this signer for the given
// address/score pair.
func (s *Signer) Verify(subject [20]byte, score *big.Int, sig []byte) (bool, error) {
	digest, err := s.Digest(subject, score)
	if err != nil {
		return false, err
	}
	if len(sig) != 65 {
		return false, nil
	}
	recovered, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false, nil
	}
	return ethcrypto.PubkeyToAddress(*recovered) == ethcrypto.PubkeyToAddress(*s.key.PubKey().PublicKey), nil
}

// padScore renders the score as a 32-byte big-endian word.
func padScore(score *big.Int) []byte {
	out := make([]byte, 32)
	raw := score.Bytes()
	if len(raw) > 32 {
		// Scores beyond 256 bits keep only the low word; callers
		// validate ranges before signing.
		raw = raw[len(raw)-32:]
	}
	copy(out[32-len(raw):], raw)
	return out
}

// uint64 scores arrive from JSON; keep a helper for hosts that carry
// them natively.
func ScoreFromUint64(v uint64) *big.Int {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return new(big.Int).SetBytes(buf)
}
