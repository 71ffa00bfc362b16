// Package env resolves Aevo network environments to their static endpoints,
// signing domains and contract addresses.
package env

import (
	"math/big"
	"strings"

	"github.com/coachpo/aevo/errs"
)

// Environment identifies an Aevo network.
type Environment string

const (
	// Production is the Aevo mainnet.
	Production Environment = "production"
	// Staging is the Aevo testnet.
	Staging Environment = "staging"
)

// SigningDomain is the EIP-712 domain that binds signatures to one network.
type SigningDomain struct {
	Name    string
	Version string
	ChainID int64
}

// ChainIDBig returns the chain id as a big integer.
func (d SigningDomain) ChainIDBig() *big.Int {
	return big.NewInt(d.ChainID)
}

// Addresses lists the bridge and stablecoin contracts of a network.
type Addresses struct {
	L1Bridge        string
	L1USDC          string
	L2WithdrawProxy string
	L2USDC          string
}

// Config is the immutable configuration record of an environment.
type Config struct {
	Environment Environment
	RESTURL     string
	WSURL       string
	Domain      SigningDomain
	Addresses   Addresses
}

// Lookup resolves an environment to its configuration.
func Lookup(e Environment) (Config, error) {
	switch e {
	case Production:
		return Config{
			Environment: Production,
			RESTURL:     "https://api.aevo.xyz",
			WSURL:       "wss://ws.aevo.xyz",
			Domain: SigningDomain{
				Name:    "Aevo Mainnet",
				Version: "1",
				ChainID: 1,
			},
			Addresses: Addresses{
				L1Bridge:        "0x4082C9647c098a6493fb499EaE63b5ce3259c574",
				L1USDC:          "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				L2WithdrawProxy: "0x4d44B9AbB13C80d2E376b7C5c982aa972239d845",
				L2USDC:          "0x643aaB1618c600229785A5E06E4b2d13946F7a1A",
			},
		}, nil
	case Staging:
		return Config{
			Environment: Staging,
			RESTURL:     "https://api-testnet.aevo.xyz",
			WSURL:       "wss://ws-testnet.aevo.xyz",
			Domain: SigningDomain{
				Name:    "Aevo Testnet",
				Version: "1",
				ChainID: 11155111,
			},
			Addresses: Addresses{
				L1Bridge:        "0xb459023ECAf4ee7E55BEC136e592d2B7afF482E2",
				L1USDC:          "0xcC3e3DBb31a7410e1dc5156593CdBFA0616BB309",
				L2WithdrawProxy: "0x870b65A0816B9e9A0dFCE08Fd18EFE20f245011f",
				L2USDC:          "0x52623B37Ff81c53567D6D16fd94638734cCDCf27",
			},
		}, nil
	default:
		return Config{}, errs.New("env.lookup", errs.CodeConfig,
			errs.WithMessage("unknown environment"),
			errs.WithField("environment", string(e)))
	}
}

// Parse maps a configuration string to an environment. Mainnet and testnet
// aliases are accepted.
func Parse(raw string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod", "mainnet":
		return Production, nil
	case "staging", "testnet":
		return Staging, nil
	default:
		return "", errs.New("env.parse", errs.CodeConfig,
			errs.WithMessage("unknown environment"),
			errs.WithField("environment", raw))
	}
}

func (e Environment) String() string { return string(e) }
