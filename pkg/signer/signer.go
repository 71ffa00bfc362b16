// Package signer turns trading intent into EIP-712 typed records and signs them.
//
// Prices and amounts are scaled to fixed-point integers with six decimals and
// truncated toward zero. Every call draws a fresh random salt so two orders with
// identical parameters never share a signature.
package signer

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/internal/numeric"
	"github.com/coachpo/aevo/pkg/env"
)

const (
	// PriceDecimals is the exchange-mandated precision of limit prices.
	PriceDecimals int32 = 6
	// AmountDecimals is the exchange-mandated precision of quantities and withdrawals.
	AmountDecimals int32 = 6
)

// SaltSource yields the per-call random salt.
type SaltSource func() (uint64, error)

// RandomSalt draws a uniformly random 64-bit salt from crypto/rand.
func RandomSalt() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read salt: %w", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// Signed is the replay-resistant representation of one trading action.
type Signed struct {
	Salt      *big.Int
	Signature string
	Hash      string
}

// OrderIntent describes an order before scaling and signing.
// A nil LimitPrice requests a market order.
type OrderIntent struct {
	Instrument uint64
	IsBuy      bool
	LimitPrice *decimal.Decimal
	Quantity   decimal.Decimal
	Timestamp  int64
}

// SignedOrder carries the signature together with the exact integers that were signed.
type SignedOrder struct {
	Signed
	Maker      string
	LimitPrice *big.Int
	Amount     *big.Int
	Timestamp  int64
}

// WithdrawIntent describes a withdrawal before scaling and signing.
type WithdrawIntent struct {
	Collateral string
	To         string
	Amount     decimal.Decimal
	Data       *big.Int
}

// SignedWithdraw carries the signature together with the exact integers that were signed.
type SignedWithdraw struct {
	Signed
	Account    string
	Collateral string
	To         string
	Amount     *big.Int
	Data       *big.Int
}

// Option configures a Signer.
type Option func(*Signer)

// WithSaltSource overrides the salt generator, e.g. with a fixed value in tests.
func WithSaltSource(src SaltSource) Option {
	return func(s *Signer) {
		if src != nil {
			s.salt = src
		}
	}
}

// Signer signs orders and withdrawals for one wallet under one signing domain.
type Signer struct {
	key    KeySigner
	maker  common.Address
	domain apitypes.TypedDataDomain
	salt   SaltSource
}

// New builds a Signer from a hex private key and the wallet (maker) address.
func New(signingKey, walletAddress string, domain env.SigningDomain, opts ...Option) (*Signer, error) {
	if strings.TrimSpace(walletAddress) == "" {
		return nil, errs.MissingCredentials("signer.new", "wallet address")
	}
	if strings.TrimSpace(signingKey) == "" {
		return nil, errs.MissingCredentials("signer.new", "signing key")
	}
	key, err := NewPrivateKeySigner(signingKey)
	if err != nil {
		return nil, err
	}
	return NewWithKey(key, walletAddress, domain, opts...)
}

// NewWithKey builds a Signer around an existing KeySigner.
func NewWithKey(key KeySigner, walletAddress string, domain env.SigningDomain, opts ...Option) (*Signer, error) {
	if key == nil {
		return nil, errs.MissingCredentials("signer.new", "signing key")
	}
	maker, err := parseAddress("signer.new", "wallet_address", walletAddress)
	if err != nil {
		return nil, err
	}
	s := &Signer{
		key:    key,
		maker:  maker,
		domain: typedDomain(domain),
		salt:   RandomSalt,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Maker returns the checksummed wallet address orders are signed for.
func (s *Signer) Maker() string { return s.maker.Hex() }

// SignOrder scales, canonicalizes and signs an order.
func (s *Signer) SignOrder(intent OrderIntent) (SignedOrder, error) {
	if intent.Timestamp < 0 {
		return SignedOrder{}, errs.New("signer.order", errs.CodeInvalid, errs.WithMessage("timestamp must not be negative"))
	}
	price, err := LimitPrice(intent.IsBuy, intent.LimitPrice)
	if err != nil {
		return SignedOrder{}, err
	}
	amount, err := ScaleAmount(intent.Quantity)
	if err != nil {
		return SignedOrder{}, err
	}
	salt, err := s.nextSalt()
	if err != nil {
		return SignedOrder{}, err
	}

	record := orderRecord{
		maker:      s.maker.Hex(),
		isBuy:      intent.IsBuy,
		limitPrice: price,
		amount:     amount,
		salt:       salt,
		instrument: new(big.Int).SetUint64(intent.Instrument),
		timestamp:  big.NewInt(intent.Timestamp),
	}
	signed, err := s.sign(record.typedData(s.domain), salt)
	if err != nil {
		return SignedOrder{}, err
	}
	return SignedOrder{
		Signed:     signed,
		Maker:      s.maker.Hex(),
		LimitPrice: price,
		Amount:     amount,
		Timestamp:  intent.Timestamp,
	}, nil
}

// SignWithdraw scales, canonicalizes and signs a withdrawal. A nil Data signs zero.
func (s *Signer) SignWithdraw(intent WithdrawIntent) (SignedWithdraw, error) {
	collateral, err := parseAddress("signer.withdraw", "collateral", intent.Collateral)
	if err != nil {
		return SignedWithdraw{}, err
	}
	to, err := parseAddress("signer.withdraw", "to", intent.To)
	if err != nil {
		return SignedWithdraw{}, err
	}
	amount, err := ScaleAmount(intent.Amount)
	if err != nil {
		return SignedWithdraw{}, err
	}
	data := intent.Data
	if data == nil {
		data = new(big.Int)
	}
	if data.Sign() < 0 {
		return SignedWithdraw{}, errs.New("signer.withdraw", errs.CodeInvalid, errs.WithMessage("data must not be negative"))
	}
	salt, err := s.nextSalt()
	if err != nil {
		return SignedWithdraw{}, err
	}

	record := withdrawRecord{
		collateral: collateral.Hex(),
		to:         to.Hex(),
		amount:     amount,
		salt:       salt,
		data:       data,
	}
	signed, err := s.sign(record.typedData(s.domain), salt)
	if err != nil {
		return SignedWithdraw{}, err
	}
	return SignedWithdraw{
		Signed:     signed,
		Account:    s.maker.Hex(),
		Collateral: collateral.Hex(),
		To:         to.Hex(),
		Amount:     amount,
		Data:       data,
	}, nil
}

func (s *Signer) sign(td apitypes.TypedData, salt *big.Int) (Signed, error) {
	digest, err := hashTypedData(td)
	if err != nil {
		return Signed{}, err
	}
	sig, err := s.key.SignDigest(digest)
	if err != nil {
		return Signed{}, err
	}
	if len(sig) != 65 {
		return Signed{}, fmt.Errorf("sign %s: unexpected signature length %d", td.PrimaryType, len(sig))
	}
	out := make([]byte, 65)
	copy(out, sig)
	if out[64] < 27 {
		out[64] += 27
	}
	return Signed{
		Salt:      salt,
		Signature: hexutil.Encode(out),
		Hash:      hexutil.Encode(digest),
	}, nil
}

func (s *Signer) nextSalt() (*big.Int, error) {
	v, err := s.salt()
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(v), nil
}

// MarketPrice returns the sentinel price of a market order: the maximum
// uint256 for buys and zero for sells.
func MarketPrice(isBuy bool) *big.Int {
	if isBuy {
		return new(big.Int).Set(math.MaxBig256)
	}
	return new(big.Int)
}

// LimitPrice scales a limit price, or returns the market sentinel when price is nil.
func LimitPrice(isBuy bool, price *decimal.Decimal) (*big.Int, error) {
	if price == nil {
		return MarketPrice(isBuy), nil
	}
	return numeric.ScaleFloor(*price, PriceDecimals)
}

// ScaleAmount converts a quantity to exchange units.
func ScaleAmount(quantity decimal.Decimal) (*big.Int, error) {
	return numeric.ScaleFloor(quantity, AmountDecimals)
}

func parseAddress(op, field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Address{}, errs.MissingCredentials(op, strings.ReplaceAll(field, "_", " "))
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, errs.New(op, errs.CodeConfig,
			errs.WithMessage("not a valid account address"),
			errs.WithCanonicalCode(errs.CanonicalInvalidAddress),
			errs.WithField(field, trimmed))
	}
	return common.HexToAddress(trimmed), nil
}
