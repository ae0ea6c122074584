package wallet_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/tdex-network/liquid-wallet/pkg/descriptor"
	"github.com/tdex-network/liquid-wallet/pkg/network"
	"github.com/tdex-network/liquid-wallet/pkg/transactionutil"
	"github.com/tdex-network/liquid-wallet/pkg/wallet"
	"github.com/vulpemventures/go-elements/transaction"
)

const (
	testXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
	testKey  = "516d2a406f4592dcbedfc56d8cd7070a160fbd7ac75cf7837ac33ae56e9ab35c"

	dummyPrevTxid = "aa00000000000000000000000000000000000000000000000000000000000000"
)

func testDescriptor() string {
	return "ct(slip77(" + testKey + "),elwpkh(" + testXpub + "/<0;1>/*))"
}

func newTestWallet(t *testing.T, persister wallet.Persister) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewWallet(wallet.NewWalletOpts{
		Descriptor: testDescriptor(),
		Network:    network.Liquid(),
		Persister:  persister,
	})
	require.NoError(t, err)
	return w
}

// newExplicitTx builds an unblinded transaction spending a dummy prevout and
// paying the given amount of the policy asset to script, plus a fee output.
func newExplicitTx(
	t *testing.T, asset string, value, fee uint64, script []byte,
) *transaction.Transaction {
	t.Helper()

	prevHash, err := bufferutil.TxIDToBytes(dummyPrevTxid)
	require.NoError(t, err)
	assetBytes, err := bufferutil.AssetHashToBytes(asset)
	require.NoError(t, err)
	valueBytes, err := bufferutil.ValueToBytes(value)
	require.NoError(t, err)
	feeBytes, err := bufferutil.ValueToBytes(fee)
	require.NoError(t, err)

	tx := transaction.NewTx(2)
	tx.Inputs = append(tx.Inputs, transaction.NewTxInput(prevHash, 0))
	tx.Outputs = append(tx.Outputs,
		transaction.NewTxOutput(assetBytes, valueBytes, script),
		transaction.NewTxOutput(assetBytes, feeBytes, nil),
	)
	return tx
}

// fundingUpdate wraps the given transaction in the update a scan would have
// produced for a wallet receiving it on its first external script.
func fundingUpdate(
	t *testing.T, w *wallet.Wallet, tx *transaction.Transaction, height uint32,
	tip wallet.BlockHeader,
) *wallet.Update {
	t.Helper()

	txid := transactionutil.HexTxID(tx)
	script, err := w.Descriptor().ScriptPubkey(descriptor.External, 0)
	require.NoError(t, err)
	secrets, err := transactionutil.UnblindOutput(tx.Outputs[0], nil)
	require.NoError(t, err)
	blindingPubkey, err := w.Descriptor().BlindingPublicKey(script)
	require.NoError(t, err)

	return &wallet.Update{
		WalletStatus: w.Status(),
		Txs:          []wallet.TxEntry{{TxID: txid, Tx: tx}},
		Unblinds: []wallet.UnblindEntry{{
			Outpoint: wallet.Outpoint{TxID: txid, VOut: 0},
			Secrets:  *secrets,
		}},
		NewHeights: []wallet.HeightEntry{{TxID: txid, Height: height}},
		Timestamps: []wallet.TimestampEntry{{Height: height, Timestamp: 1700000000}},
		Scripts: []wallet.ScriptEntry{{
			Script:         script,
			Chain:          descriptor.External,
			Index:          0,
			BlindingPubkey: blindingPubkey.SerializeCompressed(),
		}},
		Tip: tip,
	}
}

func testTip(height uint32) wallet.BlockHeader {
	hash := make([]byte, 32)
	hash[0] = byte(height)
	prevHash := make([]byte, 32)
	if height > 0 {
		prevHash[0] = byte(height - 1)
	}
	return wallet.BlockHeader{
		Version:   0x20000000,
		Height:    height,
		Timestamp: 1700000000 + height,
		Hash:      hash,
		PrevHash:  prevHash,
	}
}

func TestNewWallet(t *testing.T) {
	w := newTestWallet(t, nil)
	defer w.Close()

	require.True(t, w.NeverScanned())
	require.Zero(t, w.Status())
	require.Equal(t, network.Liquid().PolicyAsset(), w.PolicyAsset())

	tests := []struct {
		name string
		opts wallet.NewWalletOpts
		err  error
	}{
		{
			"missing descriptor",
			wallet.NewWalletOpts{Network: network.Liquid()},
			wallet.ErrNullDescriptor,
		},
		{
			"missing network",
			wallet.NewWalletOpts{Descriptor: testDescriptor()},
			wallet.ErrNullNetwork,
		},
		{
			"network mismatch",
			wallet.NewWalletOpts{
				Descriptor: testDescriptor(),
				Network:    network.LiquidTestnet(),
			},
			wallet.ErrNetworkMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wallet.NewWallet(tt.opts)
			require.EqualError(t, err, tt.err.Error())
		})
	}

	t.Run("invalid descriptor", func(t *testing.T) {
		_, err := wallet.NewWallet(wallet.NewWalletOpts{
			Descriptor: "wpkh(" + testXpub + ")",
			Network:    network.Liquid(),
		})
		require.Error(t, err)
	})
}

func TestAddresses(t *testing.T) {
	w := newTestWallet(t, nil)
	defer w.Close()

	res, err := w.Address(nil)
	require.NoError(t, err)
	require.Equal(t, uint32(0), res.Index)
	require.True(t, strings.HasPrefix(res.Address, "lq1"))

	change, err := w.ChangeAddress(nil)
	require.NoError(t, err)
	require.Equal(t, uint32(0), change.Index)
	require.NotEqual(t, res.Address, change.Address)

	index := uint32(7)
	at, err := w.Address(&index)
	require.NoError(t, err)
	require.Equal(t, index, at.Index)
	require.NotEqual(t, res.Address, at.Address)
}

func TestApplyUpdateDifferentStatus(t *testing.T) {
	w := newTestWallet(t, nil)
	defer w.Close()

	err := w.ApplyUpdate(&wallet.Update{WalletStatus: 42, Tip: testTip(1)})
	require.EqualError(t, err, wallet.ErrUpdateOnDifferentStatus.Error())
}

func TestApplyUpdateHeightTooOld(t *testing.T) {
	w := newTestWallet(t, nil)
	defer w.Close()

	require.NoError(t, w.ApplyUpdate(&wallet.Update{Tip: testTip(10)}))
	require.False(t, w.NeverScanned())
	require.NotZero(t, w.Status())
	require.Equal(t, uint32(10), w.Tip().Height)

	err := w.ApplyUpdate(&wallet.Update{
		WalletStatus: w.Status(), Tip: testTip(8),
	})
	require.EqualError(t, err, wallet.ErrUpdateHeightTooOld.Error())

	// A single block of reorg is tolerated.
	require.NoError(t, w.ApplyUpdate(&wallet.Update{
		WalletStatus: w.Status(), Tip: testTip(9),
	}))
	require.Equal(t, uint32(9), w.Tip().Height)
}

func TestApplyUpdateFunding(t *testing.T) {
	w := newTestWallet(t, nil)
	defer w.Close()

	tx := newExplicitTx(t, w.PolicyAsset(), 100000, 300, mustScript(t, w, 0))
	txid := transactionutil.HexTxID(tx)
	update := fundingUpdate(t, w, tx, 101, testTip(101))
	require.NoError(t, w.ApplyUpdate(update))

	statusAfterFunding := w.Status()
	require.NotZero(t, statusAfterFunding)
	require.Equal(t, uint32(1), w.LastUnusedIndex(descriptor.External))
	require.Equal(t, uint32(0), w.LastUnusedIndex(descriptor.Internal))

	// The next receiving address moves past the funded one.
	res, err := w.Address(nil)
	require.NoError(t, err)
	require.Equal(t, uint32(1), res.Index)

	txos, err := w.Txos()
	require.NoError(t, err)
	require.Len(t, txos, 1)
	require.Equal(t, wallet.Outpoint{TxID: txid, VOut: 0}, txos[0].Outpoint)
	require.Equal(t, uint32(101), txos[0].Height)
	require.True(t, txos[0].IsConfirmed())
	require.False(t, txos[0].Spent)
	require.Equal(t, w.PolicyAsset(), txos[0].Unblinded.AssetHash())
	require.Equal(t, uint64(100000), txos[0].Unblinded.Value)

	// Explicit outputs are not spendable under a confidential descriptor.
	utxos, err := w.Utxos()
	require.NoError(t, err)
	require.Empty(t, utxos)
	balance, err := w.Balance()
	require.NoError(t, err)
	require.Equal(t, map[string]uint64{w.PolicyAsset(): 0}, balance)

	txs, err := w.Transactions()
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, txid, txs[0].TxID)
	require.Equal(t, wallet.TxTypeIncoming, txs[0].Type)
	require.Equal(t, uint64(300), txs[0].Fee)
	require.Equal(t, int64(100000), txs[0].Balance[w.PolicyAsset()])
	require.Equal(t, uint32(1700000000), txs[0].Timestamp)
	require.True(t, txs[0].IsConfirmed())

	got, err := w.Transaction(txid)
	require.NoError(t, err)
	require.Equal(t, txid, got.TxID)
	_, err = w.Transaction(dummyPrevTxid)
	require.EqualError(t, err, wallet.ErrTxNotFound.Error())

	// An update produced against a stale wallet state is rejected.
	err = w.ApplyUpdate(&wallet.Update{
		WalletStatus: statusAfterFunding + 1, Tip: testTip(101),
	})
	require.EqualError(t, err, wallet.ErrUpdateOnDifferentStatus.Error())
}

func TestApplyTransaction(t *testing.T) {
	w := newTestWallet(t, nil)
	defer w.Close()

	tx := newExplicitTx(t, w.PolicyAsset(), 50000, 250, mustScript(t, w, 3))
	require.NoError(t, w.ApplyTransaction(tx))

	txos, err := w.Txos()
	require.NoError(t, err)
	require.Len(t, txos, 1)
	require.False(t, txos[0].IsConfirmed())
	require.Equal(t, wallet.UnconfirmedHeight, txos[0].Height)
	require.Equal(t, uint32(3), txos[0].Index)

	// The gap-limit probe found the script at index 3, so the first unused
	// index moves past it.
	require.Equal(t, uint32(4), w.LastUnusedIndex(descriptor.External))
}

func mustScript(t *testing.T, w *wallet.Wallet, index uint32) []byte {
	t.Helper()
	script, err := w.Descriptor().ScriptPubkey(descriptor.External, index)
	require.NoError(t, err)
	return script
}
