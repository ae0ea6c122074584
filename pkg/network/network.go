package network

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vulpemventures/go-elements/network"
)

// Policy asset hashes in display (big-endian) order.
const (
	LiquidPolicyAsset        = "6f0279e9ed041c3d710a9f57d0c02928416460c4b722ae3457a11eec381c526d"
	LiquidTestnetPolicyAsset = "144c654344aa716d6f3abcc1ca90e5641e4e2a7f633bc09fe3baf64585819a49"
)

// Network identifies one of the supported Liquid networks. Regtest carries
// its own policy asset since every local setup mints a different one.
type Network struct {
	name        string
	policyAsset string
	params      *network.Network
}

var (
	liquid = Network{
		name:        "liquid",
		policyAsset: LiquidPolicyAsset,
		params:      &network.Liquid,
	}
	liquidTestnet = Network{
		name:        "liquidtestnet",
		policyAsset: LiquidTestnetPolicyAsset,
		params:      &network.Testnet,
	}
)

// Liquid returns the mainnet config.
func Liquid() Network { return liquid }

// LiquidTestnet returns the public testnet config.
func LiquidTestnet() Network { return liquidTestnet }

// ElementsRegtest returns a regtest config bound to the given policy asset.
func ElementsRegtest(policyAsset string) (Network, error) {
	buf, err := hex.DecodeString(policyAsset)
	if err != nil || len(buf) != 32 {
		return Network{}, fmt.Errorf("invalid regtest policy asset %q", policyAsset)
	}
	return Network{
		name:        "elementsregtest",
		policyAsset: policyAsset,
		params:      &network.Regtest,
	}, nil
}

// FromString parses a network name as accepted by config files and env vars.
// Regtest requires the policy asset alongside, ie. "elementsregtest:<asset>".
func FromString(s string) (Network, error) {
	switch {
	case s == "liquid":
		return liquid, nil
	case s == "liquidtestnet":
		return liquidTestnet, nil
	case strings.HasPrefix(s, "elementsregtest:"):
		return ElementsRegtest(strings.TrimPrefix(s, "elementsregtest:"))
	default:
		return Network{}, fmt.Errorf("unknown network %q", s)
	}
}

func (n Network) String() string {
	if n.name == "elementsregtest" {
		return n.name + ":" + n.policyAsset
	}
	return n.name
}

// PolicyAsset returns the asset hash used to pay fees on this network.
func (n Network) PolicyAsset() string { return n.policyAsset }

// Params returns the address encoding parameters.
func (n Network) Params() *network.Network { return n.params }

// IsMainnet reports whether funds on this network have real value.
func (n Network) IsMainnet() bool { return n.name == "liquid" }
