package signer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/pkg/env"
)

const (
	testKey    = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testWallet = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func testDomain(t *testing.T, e env.Environment) env.SigningDomain {
	t.Helper()
	cfg, err := env.Lookup(e)
	require.NoError(t, err)
	return cfg.Domain
}

func fixedSalt(v uint64) SaltSource {
	return func() (uint64, error) { return v, nil }
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestSignOrderIsDeterministicWithFixedSaltAndRecoverable(t *testing.T) {
	s, err := New(testKey, testWallet, testDomain(t, env.Production), WithSaltSource(fixedSalt(42)))
	require.NoError(t, err)

	intent := OrderIntent{
		Instrument: 1,
		IsBuy:      true,
		LimitPrice: dec("2500.1234567"),
		Quantity:   decimal.RequireFromString("0.5"),
		Timestamp:  1700000000,
	}
	first, err := s.SignOrder(intent)
	require.NoError(t, err)
	second, err := s.SignOrder(intent)
	require.NoError(t, err)

	require.Equal(t, first.Signature, second.Signature)
	require.Equal(t, first.Hash, second.Hash)
	require.Equal(t, "42", first.Salt.String())
	require.Equal(t, "2500123456", first.LimitPrice.String())
	require.Equal(t, "500000", first.Amount.String())

	digest, err := hexutil.Decode(first.Hash)
	require.NoError(t, err)
	sig, err := hexutil.Decode(first.Signature)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])
	sig[64] -= 27

	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*pub))
}

func TestOrderDigestMatchesManualEIP712Encoding(t *testing.T) {
	domain := testDomain(t, env.Staging)
	s, err := New(testKey, testWallet, domain, WithSaltSource(fixedSalt(7)))
	require.NoError(t, err)

	signed, err := s.SignOrder(OrderIntent{
		Instrument: 11235,
		IsBuy:      false,
		LimitPrice: dec("1.5"),
		Quantity:   decimal.RequireFromString("3"),
		Timestamp:  1710000000,
	})
	require.NoError(t, err)

	word := func(n *big.Int) []byte { return common.LeftPadBytes(n.Bytes(), 32) }
	domainType := crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	separator := crypto.Keccak256(
		domainType,
		crypto.Keccak256([]byte(domain.Name)),
		crypto.Keccak256([]byte(domain.Version)),
		word(big.NewInt(domain.ChainID)),
	)
	orderTypeHash := crypto.Keccak256([]byte("Order(address maker,bool isBuy,uint256 limitPrice,uint256 amount,uint256 salt,uint256 instrument,uint256 timestamp)"))
	structHash := crypto.Keccak256(
		orderTypeHash,
		common.LeftPadBytes(common.HexToAddress(testWallet).Bytes(), 32),
		word(big.NewInt(0)),
		word(big.NewInt(1500000)),
		word(big.NewInt(3000000)),
		word(big.NewInt(7)),
		word(big.NewInt(11235)),
		word(big.NewInt(1710000000)),
	)
	want := crypto.Keccak256([]byte{0x19, 0x01}, separator, structHash)

	require.Equal(t, hexutil.Encode(want), signed.Hash)
}

func TestSignOrderSaltsNeverCollide(t *testing.T) {
	s, err := New(testKey, testWallet, testDomain(t, env.Production))
	require.NoError(t, err)

	intent := OrderIntent{
		Instrument: 1,
		IsBuy:      true,
		LimitPrice: dec("100"),
		Quantity:   decimal.RequireFromString("1"),
		Timestamp:  1700000000,
	}
	salts := make(map[string]struct{}, 1000)
	sigs := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		signed, err := s.SignOrder(intent)
		require.NoError(t, err)
		salts[signed.Salt.String()] = struct{}{}
		sigs[signed.Signature] = struct{}{}
	}
	require.Len(t, salts, 1000)
	require.Len(t, sigs, 1000)
}

func TestMarketOrderSentinels(t *testing.T) {
	require.Zero(t, MarketPrice(true).Cmp(math.MaxBig256))
	require.Zero(t, MarketPrice(false).Sign())

	// The returned sentinel must be a copy.
	MarketPrice(true).SetInt64(1)
	require.Zero(t, MarketPrice(true).Cmp(math.MaxBig256))

	s, err := New(testKey, testWallet, testDomain(t, env.Production), WithSaltSource(fixedSalt(1)))
	require.NoError(t, err)

	buy, err := s.SignOrder(OrderIntent{Instrument: 1, IsBuy: true, Quantity: decimal.NewFromInt(1), Timestamp: 1})
	require.NoError(t, err)
	require.Zero(t, buy.LimitPrice.Cmp(math.MaxBig256))

	sell, err := s.SignOrder(OrderIntent{Instrument: 1, IsBuy: false, Quantity: decimal.NewFromInt(1), Timestamp: 1})
	require.NoError(t, err)
	require.Zero(t, sell.LimitPrice.Sign())
}

func TestDomainBindsSignatureToEnvironment(t *testing.T) {
	prod, err := New(testKey, testWallet, testDomain(t, env.Production), WithSaltSource(fixedSalt(9)))
	require.NoError(t, err)
	staging, err := New(testKey, testWallet, testDomain(t, env.Staging), WithSaltSource(fixedSalt(9)))
	require.NoError(t, err)

	intent := OrderIntent{Instrument: 1, IsBuy: true, LimitPrice: dec("1"), Quantity: decimal.NewFromInt(1), Timestamp: 5}
	a, err := prod.SignOrder(intent)
	require.NoError(t, err)
	b, err := staging.SignOrder(intent)
	require.NoError(t, err)
	require.NotEqual(t, a.Hash, b.Hash)
	require.NotEqual(t, a.Signature, b.Signature)
}

func TestNewRejectsMissingCredentials(t *testing.T) {
	domain := testDomain(t, env.Production)

	_, err := New(testKey, "", domain)
	require.True(t, errs.Is(err, errs.CodeConfig))
	require.Contains(t, err.Error(), "wallet address not set")

	_, err = New("", testWallet, domain)
	require.True(t, errs.Is(err, errs.CodeConfig))
	require.Contains(t, err.Error(), "signing key not set")

	_, err = New("zz-not-hex", testWallet, domain)
	require.True(t, errs.Is(err, errs.CodeConfig))

	_, err = New(testKey, "0x1234", domain)
	require.True(t, errs.Is(err, errs.CodeConfig))
	require.Contains(t, err.Error(), "invalid_address")
}

func TestSignOrderRejectsNegativeInputs(t *testing.T) {
	s, err := New(testKey, testWallet, testDomain(t, env.Production))
	require.NoError(t, err)

	_, err = s.SignOrder(OrderIntent{Instrument: 1, IsBuy: true, Quantity: decimal.RequireFromString("-1"), Timestamp: 1})
	require.True(t, errs.Is(err, errs.CodeInvalid))

	_, err = s.SignOrder(OrderIntent{Instrument: 1, IsBuy: true, Quantity: decimal.NewFromInt(1), Timestamp: -1})
	require.True(t, errs.Is(err, errs.CodeInvalid))
}

func TestSignWithdraw(t *testing.T) {
	cfg, err := env.Lookup(env.Staging)
	require.NoError(t, err)
	s, err := New(testKey, testWallet, cfg.Domain, WithSaltSource(fixedSalt(3)))
	require.NoError(t, err)

	signed, err := s.SignWithdraw(WithdrawIntent{
		Collateral: cfg.Addresses.L1USDC,
		To:         cfg.Addresses.L2WithdrawProxy,
		Amount:     decimal.RequireFromString("10.1234569"),
	})
	require.NoError(t, err)
	require.Equal(t, "10123456", signed.Amount.String())
	require.Zero(t, signed.Data.Sign())
	require.Equal(t, common.HexToAddress(testWallet).Hex(), signed.Account)
	require.Equal(t, "3", signed.Salt.String())
	require.NotEmpty(t, signed.Signature)

	_, err = s.SignWithdraw(WithdrawIntent{Collateral: "nope", To: cfg.Addresses.L2WithdrawProxy, Amount: decimal.NewFromInt(1)})
	require.True(t, errs.Is(err, errs.CodeConfig))
}
