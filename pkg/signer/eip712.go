package signer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/coachpo/aevo/pkg/env"
)

const (
	orderType    = "Order"
	withdrawType = "Withdraw"
)

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
}

var orderFields = []apitypes.Type{
	{Name: "maker", Type: "address"},
	{Name: "isBuy", Type: "bool"},
	{Name: "limitPrice", Type: "uint256"},
	{Name: "amount", Type: "uint256"},
	{Name: "salt", Type: "uint256"},
	{Name: "instrument", Type: "uint256"},
	{Name: "timestamp", Type: "uint256"},
}

var withdrawFields = []apitypes.Type{
	{Name: "collateral", Type: "address"},
	{Name: "to", Type: "address"},
	{Name: "amount", Type: "uint256"},
	{Name: "salt", Type: "uint256"},
	{Name: "data", Type: "uint256"},
}

func typedDomain(d env.SigningDomain) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:    d.Name,
		Version: d.Version,
		ChainId: (*math.HexOrDecimal256)(d.ChainIDBig()),
	}
}

// orderRecord is the canonical Order struct in field order.
type orderRecord struct {
	maker      string
	isBuy      bool
	limitPrice *big.Int
	amount     *big.Int
	salt       *big.Int
	instrument *big.Int
	timestamp  *big.Int
}

func (o orderRecord) typedData(domain apitypes.TypedDataDomain) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			orderType:      orderFields,
		},
		PrimaryType: orderType,
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"maker":      o.maker,
			"isBuy":      o.isBuy,
			"limitPrice": o.limitPrice,
			"amount":     o.amount,
			"salt":       o.salt,
			"instrument": o.instrument,
			"timestamp":  o.timestamp,
		},
	}
}

// withdrawRecord is the canonical Withdraw struct in field order.
type withdrawRecord struct {
	collateral string
	to         string
	amount     *big.Int
	salt       *big.Int
	data       *big.Int
}

func (w withdrawRecord) typedData(domain apitypes.TypedDataDomain) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			withdrawType:   withdrawFields,
		},
		PrimaryType: withdrawType,
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"collateral": w.collateral,
			"to":         w.to,
			"amount":     w.amount,
			"salt":       w.salt,
			"data":       w.data,
		},
	}
}

// hashTypedData returns the EIP-712 signing digest: keccak256(0x1901 || domainSeparator || structHash).
func hashTypedData(td apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", td.PrimaryType, err)
	}
	return digest, nil
}
