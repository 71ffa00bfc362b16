package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/coachpo/aevo/errs"
)

// KeySigner produces a recoverable secp256k1 signature over a 32-byte digest.
// Implementations return 65 bytes laid out as r || s || v with v in {0, 1}.
// The key need not belong to the maker wallet.
type KeySigner interface {
	SignDigest(digest []byte) ([]byte, error)
}

type privateKeySigner struct {
	key *ecdsa.PrivateKey
}

// NewPrivateKeySigner parses a hex encoded secp256k1 private key, with or
// without the 0x prefix.
func NewPrivateKeySigner(hexKey string) (KeySigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if trimmed == "" {
		return nil, errs.MissingCredentials("signer.key", "signing key")
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, errs.New("signer.key", errs.CodeConfig,
			errs.WithMessage("signing key is not a valid secp256k1 key"),
			errs.WithCanonicalCode(errs.CanonicalInvalidKey),
			errs.WithCause(err))
	}
	return &privateKeySigner{key: key}, nil
}

func (p *privateKeySigner) SignDigest(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, p.key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	return sig, nil
}
