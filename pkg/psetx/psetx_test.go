package psetx_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/tdex-network/liquid-wallet/pkg/descriptor"
	"github.com/tdex-network/liquid-wallet/pkg/network"
	"github.com/tdex-network/liquid-wallet/pkg/psetx"
	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/psetv2"
	"github.com/vulpemventures/go-elements/transaction"
)

const (
	testXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
	testKey  = "516d2a406f4592dcbedfc56d8cd7070a160fbd7ac75cf7837ac33ae56e9ab35c"

	dummyPrevTxid = "aa00000000000000000000000000000000000000000000000000000000000000"
)

func testDescriptor(t *testing.T) *descriptor.Descriptor {
	t.Helper()
	desc, err := descriptor.Parse(
		"ct(slip77(" + testKey + "),elwpkh(" + testXpub + "/<0;1>/*))",
	)
	require.NoError(t, err)
	return desc
}

func policyAsset() string {
	return network.Liquid().PolicyAsset()
}

func newTestPset(t *testing.T, outputs []psetv2.OutputArgs) *psetv2.Pset {
	t.Helper()
	ptx, err := psetv2.New([]psetv2.InputArgs{
		{Txid: dummyPrevTxid, TxIndex: 0},
	}, outputs, nil)
	require.NoError(t, err)
	return ptx
}

// addExplicitUtxo attaches an unblinded witness utxo to the given input.
func addExplicitUtxo(
	t *testing.T, ptx *psetv2.Pset, inIndex int, value uint64, script []byte,
) {
	t.Helper()
	assetBytes, err := bufferutil.AssetHashToBytes(policyAsset())
	require.NoError(t, err)
	valueBytes, err := bufferutil.ValueToBytes(value)
	require.NoError(t, err)

	updater, err := psetv2.NewUpdater(ptx)
	require.NoError(t, err)
	err = updater.AddInWitnessUtxo(
		inIndex, transaction.NewTxOutput(assetBytes, valueBytes, script),
	)
	require.NoError(t, err)
}

func foreignScript() []byte {
	return append([]byte{0x00, 0x14}, make([]byte, 20)...)
}

func walletDerivation(
	t *testing.T, desc *descriptor.Descriptor, chain descriptor.Chain, index uint32,
) []psetv2.DerivationPathWithPubKey {
	t.Helper()
	pubkey, err := desc.DerivePublicKey(chain, index)
	require.NoError(t, err)
	return []psetv2.DerivationPathWithPubKey{{
		PubKey:    pubkey.SerializeCompressed(),
		Bip32Path: []uint32{uint32(chain), index},
	}}
}

func TestBalanceMissingPreviousOutput(t *testing.T) {
	desc := testDescriptor(t)
	ptx := newTestPset(t, []psetv2.OutputArgs{
		{Asset: policyAsset(), Amount: 500},
	})

	_, err := psetx.Balance(ptx, desc, network.Liquid())
	require.EqualError(t, err, psetx.ErrMissingPreviousOutput{Index: 0}.Error())
}

func TestBalanceInputPegin(t *testing.T) {
	desc := testDescriptor(t)
	walletScript, err := desc.ScriptPubkey(descriptor.External, 0)
	require.NoError(t, err)

	ptx := newTestPset(t, []psetv2.OutputArgs{
		{Asset: policyAsset(), Amount: 500},
	})
	addExplicitUtxo(t, ptx, 0, 100000, walletScript)
	ptx.Inputs[0].Bip32Derivation = walletDerivation(t, desc, descriptor.External, 0)
	ptx.Inputs[0].PeginClaimScript = []byte{0x51}

	_, err = psetx.Balance(ptx, desc, network.Liquid())
	require.EqualError(t, err, psetx.ErrInputPegin{Index: 0}.Error())
}

func TestBalanceBlindedIssuance(t *testing.T) {
	desc := testDescriptor(t)
	walletScript, err := desc.ScriptPubkey(descriptor.External, 0)
	require.NoError(t, err)

	ptx := newTestPset(t, []psetv2.OutputArgs{
		{Asset: policyAsset(), Amount: 500},
	})
	addExplicitUtxo(t, ptx, 0, 100000, walletScript)
	ptx.Inputs[0].Bip32Derivation = walletDerivation(t, desc, descriptor.External, 0)
	ptx.Inputs[0].IssuanceAssetEntropy = make([]byte, 32)
	ptx.Inputs[0].IssuanceValueCommitment = make([]byte, 33)

	_, err = psetx.Balance(ptx, desc, network.Liquid())
	require.EqualError(t, err, psetx.ErrInputHasBlindedIssuance{Index: 0}.Error())
}

func TestBalanceForeignPeginInput(t *testing.T) {
	desc := testDescriptor(t)
	ptx := newTestPset(t, []psetv2.OutputArgs{
		{Asset: policyAsset(), Amount: 500},
	})
	addExplicitUtxo(t, ptx, 0, 100000, foreignScript())
	ptx.Inputs[0].PeginClaimScript = []byte{0x51}

	// The pegin belongs to the counterparty: it is not ours to analyze, so
	// it must be skipped rather than rejected.
	balance, err := psetx.Balance(ptx, desc, network.Liquid())
	require.NoError(t, err)
	require.Empty(t, balance.Balances)
}

func TestBalanceIssuanceNotCredited(t *testing.T) {
	desc := testDescriptor(t)
	ptx := newTestPset(t, []psetv2.OutputArgs{
		{Asset: policyAsset(), Amount: 500},
	})
	addExplicitUtxo(t, ptx, 0, 100000, foreignScript())
	ptx.Inputs[0].IssuanceAssetEntropy = make([]byte, 32)
	ptx.Inputs[0].IssuanceValue = 1000
	ptx.Inputs[0].IssuanceInflationKeys = 1

	balance, err := psetx.Balance(ptx, desc, network.Liquid())
	require.NoError(t, err)
	require.Empty(t, balance.Balances)
}

func TestBalanceMultipleFee(t *testing.T) {
	desc := testDescriptor(t)
	ptx := newTestPset(t, []psetv2.OutputArgs{
		{Asset: policyAsset(), Amount: 300},
		{Asset: policyAsset(), Amount: 200},
	})
	addExplicitUtxo(t, ptx, 0, 100000, foreignScript())

	_, err := psetx.Balance(ptx, desc, network.Liquid())
	require.EqualError(t, err, psetx.ErrMultipleFee.Error())
}

func TestBalanceFeeOutputMustBeExplicit(t *testing.T) {
	desc := testDescriptor(t)
	ptx := newTestPset(t, []psetv2.OutputArgs{
		{Asset: policyAsset(), Amount: 500},
	})
	addExplicitUtxo(t, ptx, 0, 100000, foreignScript())

	ptx.Outputs[0].ValueCommitment = make([]byte, 33)
	_, err := psetx.Balance(ptx, desc, network.Liquid())
	require.EqualError(
		t, err,
		psetx.ErrOutputMissingField{Index: 0, Field: "explicit value"}.Error(),
	)

	ptx.Outputs[0].ValueCommitment = nil
	ptx.Outputs[0].AssetCommitment = make([]byte, 33)
	_, err = psetx.Balance(ptx, desc, network.Liquid())
	require.EqualError(
		t, err,
		psetx.ErrOutputMissingField{Index: 0, Field: "explicit asset"}.Error(),
	)

	ptx.Outputs[0].AssetCommitment = nil
	ptx.Outputs[0].Asset = nil
	_, err = psetx.Balance(ptx, desc, network.Liquid())
	require.EqualError(
		t, err,
		psetx.ErrOutputMissingField{Index: 0, Field: "explicit asset"}.Error(),
	)
}

func TestBalanceRecipients(t *testing.T) {
	desc := testDescriptor(t)
	recvAddr, err := desc.Address(descriptor.External, 7, network.Liquid().Params())
	require.NoError(t, err)
	recvInfo, err := address.FromConfidential(recvAddr)
	require.NoError(t, err)

	// Outputs without derivation metadata count as external recipients even
	// when the script happens to be derivable from the descriptor.
	ptx := newTestPset(t, []psetv2.OutputArgs{
		{
			Asset:       policyAsset(),
			Amount:      60000,
			Script:      recvInfo.Script,
			BlindingKey: recvInfo.BlindingKey,
		},
		{Asset: policyAsset(), Amount: 500},
	})
	addExplicitUtxo(t, ptx, 0, 100000, foreignScript())

	// No wallet leg at all: the analysis reports the externals and the fee,
	// with an empty per-asset balance.
	balance, err := psetx.Balance(ptx, desc, network.Liquid())
	require.NoError(t, err)
	require.Equal(t, uint64(500), balance.Fee)
	require.Empty(t, balance.Balances)
	require.Len(t, balance.Recipients, 1)
	require.Equal(t, policyAsset(), balance.Recipients[0].Asset)
	require.Equal(t, uint64(60000), balance.Recipients[0].Amount)
	require.Equal(t, recvInfo.Script, balance.Recipients[0].Script)
	require.Equal(t, recvAddr, balance.Recipients[0].Address)
}

func TestBalanceInputNotBlinded(t *testing.T) {
	desc := testDescriptor(t)
	walletScript, err := desc.ScriptPubkey(descriptor.External, 0)
	require.NoError(t, err)

	ptx := newTestPset(t, []psetv2.OutputArgs{
		{Asset: policyAsset(), Amount: 500},
	})
	addExplicitUtxo(t, ptx, 0, 100000, walletScript)
	ptx.Inputs[0].Bip32Derivation = walletDerivation(t, desc, descriptor.External, 0)

	_, err = psetx.Balance(ptx, desc, network.Liquid())
	require.EqualError(t, err, psetx.ErrInputNotBlinded{Index: 0}.Error())
}

func TestBalanceOwnedOutputMissingFields(t *testing.T) {
	desc := testDescriptor(t)
	addr, err := desc.Address(descriptor.External, 1, network.Liquid().Params())
	require.NoError(t, err)
	info, err := address.FromConfidential(addr)
	require.NoError(t, err)

	ptx := newTestPset(t, []psetv2.OutputArgs{
		{
			Asset:       policyAsset(),
			Amount:      99500,
			Script:      info.Script,
			BlindingKey: info.BlindingKey,
		},
		{Asset: policyAsset(), Amount: 500},
	})
	addExplicitUtxo(t, ptx, 0, 100000, foreignScript())
	ptx.Outputs[0].Bip32Derivation = walletDerivation(t, desc, descriptor.External, 1)

	// The output claims to belong to the wallet but was never blinded: the
	// verification of its commitments cannot even start.
	_, err = psetx.Balance(ptx, desc, network.Liquid())
	require.EqualError(
		t, err,
		psetx.ErrOutputMissingField{Index: 0, Field: "asset commitment"}.Error(),
	)
}

func TestSignatures(t *testing.T) {
	ptx, err := psetv2.New([]psetv2.InputArgs{
		{Txid: dummyPrevTxid, TxIndex: 0},
		{Txid: dummyPrevTxid, TxIndex: 1},
	}, []psetv2.OutputArgs{
		{Asset: policyAsset(), Amount: 500},
	}, nil)
	require.NoError(t, err)

	summary := psetx.Signatures(ptx)
	require.Len(t, summary, 2)
	for _, state := range summary {
		require.False(t, state.HasSignature)
		require.False(t, state.Finalized)
	}

	ptx.Inputs[0].PartialSigs = []psetv2.PartialSig{
		{PubKey: make([]byte, 33), Signature: make([]byte, 71)},
	}
	ptx.Inputs[1].FinalScriptWitness = []byte{0x01, 0x02}

	summary = psetx.Signatures(ptx)
	require.True(t, summary[0].HasSignature)
	require.False(t, summary[0].Finalized)
	require.True(t, summary[1].HasSignature)
	require.True(t, summary[1].Finalized)
}
