// signer.go produces EIP-712 typed-data signatures over orders before
// they're submitted on-chain, for order-book contracts that verify an
// off-chain signature at settlement time rather than requiring every
// maker to send their own transaction. The domain/typed-data shape and
// the v-normalization to 27/28 follow the 1-shot "ClobAuth"-style
// signing pattern common to EIP-712 order signing, generalized away
// from any one contract's exact struct layout to the handful of fields
// every limit order needs: maker, side, amounts, and a salt. The price
// is not signed separately; it is implied by the two amounts.
package onchain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// OrderTypes is the EIP-712 type set for a signed limit order.
var OrderTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Order": {
		{Name: "maker", Type: "address"},
		{Name: "isBuy", Type: "bool"},
		{Name: "buyAmount", Type: "uint256"},
		{Name: "sellAmount", Type: "uint256"},
		{Name: "salt", Type: "uint256"},
	},
}

// signOrder signs an order's typed-data hash with key and returns the
// 65-byte (r, s, v) signature with v normalized to 27/28.
func signOrder(key *ecdsa.PrivateKey, contract common.Address, chainID *big.Int, maker common.Address, isBuy bool, buyAmount, sellAmount, salt *big.Int) ([]byte, error) {
	domain := apitypes.TypedDataDomain{
		Name:              "OnChainOrderBook",
		Version:           "1",
		ChainId:           (*ethmath.HexOrDecimal256)(new(big.Int).Set(chainID)),
		VerifyingContract: contract.Hex(),
	}
	message := apitypes.TypedDataMessage{
		"maker":      maker.Hex(),
		"isBuy":      isBuy,
		"buyAmount":  buyAmount.String(),
		"sellAmount": sellAmount.String(),
		"salt":       salt.String(),
	}
	typedData := apitypes.TypedData{
		Types:       OrderTypes,
		PrimaryType: "Order",
		Domain:      domain,
		Message:     message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("typed data hash: %w", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
