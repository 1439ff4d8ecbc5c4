package settlement

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Acknowledgment selectors returned to asset contracts performing
// push-style safe transfers. Each is the first four bytes of the keccak
// hash of the handler signature; an asset contract receiving any other
// value treats the transfer as rejected.
var (
	SelectorNonFungibleReceived      = selector("onNonFungibleReceived(address,address,uint256,bytes)")
	SelectorSemiFungibleReceived     = selector("onSemiFungibleReceived(address,address,uint256,uint256,bytes)")
	SelectorSemiFungibleBatchReceive = selector("onSemiFungibleBatchReceived(address,address,uint256[],uint256[],bytes)")
)

func selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], ethcrypto.Keccak256([]byte(signature))[:4])
	return sel
}

// AckNonFungible acknowledges receipt of a single unique item. Pure;
// accepts any caller.
func (e *Engine) AckNonFungible(operator, from [20]byte, id *big.Int, data []byte) [4]byte {
	return SelectorNonFungibleReceived
}

// AckSemiFungible acknowledges receipt of a quantity of a single unique
// item. Pure; accepts any caller.
func (e *Engine) AckSemiFungible(operator, from [20]byte, id, amount *big.Int, data []byte) [4]byte {
	return SelectorSemiFungibleReceived
}

// AckSemiFungibleBatch acknowledges receipt of a batch of unique-item
// quantities. Pure; accepts any caller.
func (e *Engine) AckSemiFungibleBatch(operator, from [20]byte, ids, amounts []*big.Int, data []byte) [4]byte {
	return SelectorSemiFungibleBatchReceive
}
