package signer

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"harvestledger/crypto"
)

func newSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	s, err := New(key)
	require.NoError(t, err)
	return s
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrNilKey)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s := newSigner(t)
	subject := [20]byte{0x42}
	score := big.NewInt(7500)

	sig, err := s.Sign(subject, score)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	ok, err := s.Verify(subject, score, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsTamperedInputs(t *testing.T) {
	s := newSigner(t)
	subject := [20]byte{0x42}
	score := big.NewInt(7500)

	sig, err := s.Sign(subject, score)
	require.NoError(t, err)

	ok, err := s.Verify(subject, big.NewInt(7501), sig)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Verify([20]byte{0x43}, score, sig)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Verify(subject, score, sig[:64])
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDigestBindsSigner(t *testing.T) {
	a := newSigner(t)
	b := newSigner(t)
	subject := [20]byte{0x42}
	score := big.NewInt(1)

	digestA, err := a.Digest(subject, score)
	require.NoError(t, err)
	digestB, err := b.Digest(subject, score)
	require.NoError(t, err)
	require.NotEqual(t, digestA, digestB)
}

func TestSignRejectsNegativeScore(t *testing.T) {
	s := newSigner(t)
	_, err := s.Sign([20]byte{0x42}, big.NewInt(-1))
	require.ErrorIs(t, err, ErrNegativeScore)

	_, err = s.Sign([20]byte{0x42}, nil)
	require.ErrorIs(t, err, ErrNegativeScore)
}

func TestScoreFromUint64(t *testing.T) {
	require.Equal(t, big.NewInt(123456), ScoreFromUint64(123456))
}
