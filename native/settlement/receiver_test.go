package settlement

import (
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSelectorsDerivedFromHandlerSignatures(t *testing.T) {
	expect := func(signature string) [4]byte {
		var sel [4]byte
		copy(sel[:], ethcrypto.Keccak256([]byte(signature))[:4])
		return sel
	}
	require.Equal(t, expect("onNonFungibleReceived(address,address,uint256,bytes)"), SelectorNonFungibleReceived)
	require.Equal(t, expect("onSemiFungibleReceived(address,address,uint256,uint256,bytes)"), SelectorSemiFungibleReceived)
	require.Equal(t, expect("onSemiFungibleBatchReceived(address,address,uint256[],uint256[],bytes)"), SelectorSemiFungibleBatchReceive)
}

func TestSelectorsDistinct(t *testing.T) {
	require.NotEqual(t, SelectorNonFungibleReceived, SelectorSemiFungibleReceived)
	require.NotEqual(t, SelectorNonFungibleReceived, SelectorSemiFungibleBatchReceive)
	require.NotEqual(t, SelectorSemiFungibleReceived, SelectorSemiFungibleBatchReceive)
	require.NotEqual(t, [4]byte{}, SelectorNonFungibleReceived)
}

func TestEngineAcknowledgesEveryTransferShape(t *testing.T) {
	env := newTestEnv(t)
	id := big.NewInt(1)
	amount := big.NewInt(2)

	require.Equal(t, SelectorNonFungibleReceived, env.engine.AckNonFungible(userAddr, userAddr, id, nil))
	require.Equal(t, SelectorSemiFungibleReceived, env.engine.AckSemiFungible(userAddr, userAddr, id, amount, nil))
	require.Equal(t, SelectorSemiFungibleBatchReceive, env.engine.AckSemiFungibleBatch(userAddr, userAddr, []*big.Int{id}, []*big.Int{amount}, nil))
}
