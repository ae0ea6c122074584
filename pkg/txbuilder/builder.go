package txbuilder

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/tdex-network/liquid-wallet/pkg/contract"
	"github.com/tdex-network/liquid-wallet/pkg/network"
	"github.com/tdex-network/liquid-wallet/pkg/wallet"
	"github.com/vulpemventures/go-elements/address"
)

// DefaultFeeRate is expressed in sats per 1000 virtual bytes, the Liquid
// network floor.
const DefaultFeeRate = uint64(100)

// DustThreshold is the minimum amount accepted for policy asset outputs.
const DustThreshold = uint64(546)

type recipient struct {
	address string
	asset   string
	amount  uint64
	burn    bool
}

type issuanceRequest struct {
	assetAmount  uint64
	assetAddress string
	tokenAmount  uint64
	tokenAddress string
	contract     *contract.Contract
}

type reissuanceRequest struct {
	asset         string
	amount        uint64
	address       string
	issuanceTxHex string
}

// Builder assembles a transaction out of wallet coins with a fluent API.
// Argument errors are collected as entries are added and surface at Finish,
// so calls can be chained without checking each one.
type Builder struct {
	net         network.Network
	recipients  []recipient
	feeRate     uint64
	issuance    *issuanceRequest
	reissuance  *reissuanceRequest
	manualCoins []wallet.Outpoint
	errs        []error
}

func New(net network.Network) *Builder {
	return &Builder{net: net, feeRate: DefaultFeeRate}
}

// AddRecipient sends the given amount of an asset to a confidential address.
func (b *Builder) AddRecipient(addr string, sats uint64, asset string) *Builder {
	if err := b.validateAddress(addr); err != nil {
		return b.fail(err)
	}
	if err := b.validateAmount(sats, asset); err != nil {
		return b.fail(err)
	}
	b.recipients = append(b.recipients, recipient{
		address: addr, asset: asset, amount: sats,
	})
	return b
}

// AddLbtcRecipient sends the given amount of the policy asset.
func (b *Builder) AddLbtcRecipient(addr string, sats uint64) *Builder {
	return b.AddRecipient(addr, sats, b.net.PolicyAsset())
}

// AddBurn provably destroys the given amount of an asset with an OP_RETURN
// output.
func (b *Builder) AddBurn(sats uint64, asset string) *Builder {
	if err := b.validateAmount(sats, asset); err != nil {
		return b.fail(err)
	}
	b.recipients = append(b.recipients, recipient{
		asset: asset, amount: sats, burn: true,
	})
	return b
}

// AddUnvalidated parses an "address:sats:asset" or "burn:sats:asset" triple.
// The name refers to the input format, validation still happens.
func (b *Builder) AddUnvalidated(raw string) *Builder {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return b.fail(ErrInvalidRecipient)
	}
	sats, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return b.fail(ErrInvalidRecipient)
	}
	if parts[0] == "burn" {
		return b.AddBurn(sats, parts[2])
	}
	return b.AddRecipient(parts[0], sats, parts[2])
}

// FeeRate overrides the default fee rate, in sats per 1000 virtual bytes.
func (b *Builder) FeeRate(satsPerKvb uint64) *Builder {
	if satsPerKvb > 0 {
		b.feeRate = satsPerKvb
	}
	return b
}

// Issue mints a new asset, committing to the given registry contract if any.
// The reissuance token is minted only when tokenSats is positive.
func (b *Builder) Issue(
	assetSats uint64, assetAddr string,
	tokenSats uint64, tokenAddr string,
	c *contract.Contract,
) *Builder {
	if b.issuance != nil || b.reissuance != nil {
		return b.fail(ErrDoubleIssuance)
	}
	if assetSats == 0 {
		return b.fail(ErrZeroAmount)
	}
	if err := b.validateAddress(assetAddr); err != nil {
		return b.fail(err)
	}
	if tokenSats > 0 {
		if err := b.validateAddress(tokenAddr); err != nil {
			return b.fail(err)
		}
	}
	if c != nil {
		if err := c.Validate(); err != nil {
			return b.fail(err)
		}
	}
	b.issuance = &issuanceRequest{
		assetAmount:  assetSats,
		assetAddress: assetAddr,
		tokenAmount:  tokenSats,
		tokenAddress: tokenAddr,
		contract:     c,
	}
	return b
}

// Reissue mints more units of an already issued asset by spending one of its
// reissuance tokens held by the wallet. The raw issuance transaction is
// needed only if the wallet did not witness the issuance itself.
func (b *Builder) Reissue(
	assetID string, sats uint64, addr string, issuanceTxHex string,
) *Builder {
	if b.issuance != nil || b.reissuance != nil {
		return b.fail(ErrDoubleIssuance)
	}
	if !isAssetHash(assetID) {
		return b.fail(ErrInvalidAsset)
	}
	if sats == 0 {
		return b.fail(ErrZeroAmount)
	}
	if err := b.validateAddress(addr); err != nil {
		return b.fail(err)
	}
	b.reissuance = &reissuanceRequest{
		asset:         assetID,
		amount:        sats,
		address:       addr,
		issuanceTxHex: issuanceTxHex,
	}
	return b
}

// ManualCoins restricts coin selection to the given wallet outpoints.
func (b *Builder) ManualCoins(coins []wallet.Outpoint) *Builder {
	b.manualCoins = append(b.manualCoins, coins...)
	return b
}

func (b *Builder) fail(err error) *Builder {
	b.errs = append(b.errs, err)
	return b
}

func (b *Builder) validateAddress(addr string) error {
	if _, err := address.ToOutputScript(addr); err != nil {
		return ErrInvalidAddress
	}
	net, err := address.NetworkForAddress(addr)
	if err != nil {
		return ErrInvalidAddress
	}
	if net.Name != b.net.Params().Name {
		return ErrWrongNetwork
	}
	return nil
}

func (b *Builder) validateAmount(sats uint64, asset string) error {
	if !isAssetHash(asset) {
		return ErrInvalidAsset
	}
	if sats == 0 {
		return ErrZeroAmount
	}
	if asset == b.net.PolicyAsset() && sats < DustThreshold {
		return ErrDustAmount
	}
	return nil
}

func isAssetHash(asset string) bool {
	buf, err := hex.DecodeString(asset)
	return err == nil && len(buf) == 32
}
