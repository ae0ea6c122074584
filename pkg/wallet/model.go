package wallet

import (
	"math"

	"github.com/tdex-network/liquid-wallet/pkg/descriptor"
	"github.com/tdex-network/liquid-wallet/pkg/transactionutil"
	"github.com/vulpemventures/go-elements/transaction"
)

// UnconfirmedHeight marks transactions seen in mempool but not yet included
// in a block.
const UnconfirmedHeight = uint32(math.MaxUint32)

// Outpoint references an output of a transaction by its display txid.
type Outpoint struct {
	TxID string
	VOut uint32
}

func (o Outpoint) String() string {
	return transactionutil.OutpointKey(o.TxID, o.VOut)
}

// BlockHeader is the subset of an Elements block header the wallet tracks.
type BlockHeader struct {
	Version   uint32
	Height    uint32
	Timestamp uint32
	Hash      []byte // 32 bytes, internal byte order
	PrevHash  []byte // 32 bytes, internal byte order
}

// AddressResult pairs a derived confidential address with its wildcard index.
type AddressResult struct {
	Address string
	Index   uint32
}

// WalletTxOut is an output recognized as owned by the wallet.
type WalletTxOut struct {
	Outpoint  Outpoint
	Script    []byte
	Height    uint32 // UnconfirmedHeight if in mempool
	Chain     descriptor.Chain
	Index     uint32
	Address   string
	Unblinded transactionutil.TxOutSecrets
	Spent     bool
}

// IsConfirmed reports whether the output is included in a block.
func (o *WalletTxOut) IsConfirmed() bool {
	return o.Height != UnconfirmedHeight
}

// TxType classifies a wallet transaction by its net effect.
type TxType string

const (
	TxTypeIssuance   TxType = "issuance"
	TxTypeReissuance TxType = "reissuance"
	TxTypeBurn       TxType = "burn"
	TxTypeRedeposit  TxType = "redeposit"
	TxTypeIncoming   TxType = "incoming"
	TxTypeOutgoing   TxType = "outgoing"
	TxTypeUnknown    TxType = "unknown"
)

// WalletTx is a transaction with at least one leg owned by the wallet.
type WalletTx struct {
	TxID      string
	Tx        *transaction.Transaction
	Height    uint32 // UnconfirmedHeight if in mempool
	Timestamp uint32 // 0 when unknown
	// Balance holds the net per-asset effect of the transaction on the
	// wallet, negative for spends.
	Balance map[string]int64
	Fee     uint64
	Type    TxType
	// Inputs and Outputs hold a slot per tx input/output, nil for legs not
	// owned by the wallet.
	Inputs  []*WalletTxOut
	Outputs []*WalletTxOut
}

// IsConfirmed reports whether the transaction is included in a block.
func (t *WalletTx) IsConfirmed() bool {
	return t.Height != UnconfirmedHeight
}

// IssuanceDetails describes an asset (re)issuance found in a wallet tx.
type IssuanceDetails struct {
	TxID           string
	VIn            uint32
	AssetHash      string
	TokenHash      string
	Entropy        []byte
	AssetAmount    uint64
	TokenAmount    uint64
	IsReissuance   bool
	IsConfidential bool
}
