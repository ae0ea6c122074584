package psetx

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tdex-network/liquid-wallet/pkg/descriptor"
	"github.com/tdex-network/liquid-wallet/pkg/network"
	"github.com/tdex-network/liquid-wallet/pkg/transactionutil"
	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/payment"
	"github.com/vulpemventures/go-elements/psetv2"
	"github.com/vulpemventures/go-elements/transaction"
)

// Recipient is an output of the pset not belonging to the wallet. Asset and
// Amount are filled only when declared explicitly; Address is rebuilt from
// the script and the blinding public key when the script has an address form.
type Recipient struct {
	Script  []byte
	Address string
	Asset   string
	Amount  uint64
}

// PsetBalance is the effect a pset has on the wallet: net per-asset deltas,
// the declared fee and the list of external recipients.
type PsetBalance struct {
	Fee        uint64
	Balances   map[string]int64
	Recipients []Recipient
}

// Balance analyzes a pset from the point of view of the wallet identified by
// the descriptor. Every wallet leg is verified independently: inputs are
// unblinded and recommitted, outputs must carry valid blind proofs and
// unblind back to their declared values. The analysis trusts nothing the
// counterparty could have forged.
func Balance(
	ptx *psetv2.Pset, desc *descriptor.Descriptor, net network.Network,
) (*PsetBalance, error) {
	balances := make(map[string]int64)
	recipients := make([]Recipient, 0)
	fee := uint64(0)
	hasFee := false

	for idx := range ptx.Inputs {
		in := &ptx.Inputs[idx]
		utxo := in.GetUtxo()
		if utxo == nil {
			return nil, ErrMissingPreviousOutput{Index: idx}
		}

		owned, err := matchesWallet(desc, in.Bip32Derivation, utxo.Script)
		if err != nil {
			return nil, err
		}
		if !owned {
			continue
		}

		if len(in.PeginWitness) > 0 || len(in.PeginClaimScript) > 0 {
			return nil, ErrInputPegin{Index: idx}
		}
		if len(in.IssuanceValueCommitment) > 0 ||
			len(in.IssuanceInflationKeysCommitment) > 0 {
			return nil, ErrInputHasBlindedIssuance{Index: idx}
		}

		if !transactionutil.IsConfidentialOutput(utxo) {
			return nil, ErrInputNotBlinded{Index: idx}
		}
		blindKey, err := desc.BlindingPrivateKey(utxo.Script)
		if err != nil {
			return nil, err
		}
		secrets, err := transactionutil.UnblindOutput(utxo, blindKey.Serialize())
		if err != nil {
			return nil, ErrInputMismatch{Index: idx}
		}
		if err := transactionutil.VerifySecrets(utxo, secrets); err != nil {
			return nil, ErrInputMismatch{Index: idx}
		}
		balances[secrets.AssetHash()] -= int64(secrets.Value)
	}

	for idx := range ptx.Outputs {
		out := &ptx.Outputs[idx]
		if len(out.Script) == 0 {
			// Fee output, fully explicit by consensus.
			if len(out.ValueCommitment) > 0 {
				return nil, ErrOutputMissingField{Index: idx, Field: "explicit value"}
			}
			if len(out.Asset) != 32 || len(out.AssetCommitment) > 0 {
				return nil, ErrOutputMissingField{Index: idx, Field: "explicit asset"}
			}
			if hasFee {
				return nil, ErrMultipleFee
			}
			fee = out.Value
			hasFee = true
			continue
		}

		owned, err := matchesWallet(desc, out.Bip32Derivation, out.Script)
		if err != nil {
			return nil, err
		}
		if !owned {
			recipient := Recipient{
				Script:  out.Script,
				Address: recipientAddress(out, net),
			}
			if len(out.Asset) == 32 {
				recipient.Asset = hex.EncodeToString(
					elementsutil.ReverseBytes(out.Asset),
				)
			}
			if len(out.ValueCommitment) == 0 {
				recipient.Amount = out.Value
			}
			recipients = append(recipients, recipient)
			continue
		}

		if err := checkOwnedOutput(idx, out); err != nil {
			return nil, err
		}
		if ok := transactionutil.VerifyBlindProofs(
			out.Asset, out.Value, out.AssetCommitment, out.ValueCommitment,
			out.BlindAssetProof, out.BlindValueProof,
		); !ok {
			return nil, ErrOutputProofInvalid{Index: idx}
		}
		if err := crossCheckOutput(idx, out, desc); err != nil {
			return nil, err
		}

		asset := hex.EncodeToString(elementsutil.ReverseBytes(out.Asset))
		balances[asset] += int64(out.Value)
	}

	for asset, delta := range balances {
		if delta == 0 {
			delete(balances, asset)
		}
	}
	return &PsetBalance{
		Fee:        fee,
		Balances:   balances,
		Recipients: recipients,
	}, nil
}

// matchesWallet decides ownership from the BIP32 derivation entries: one of
// them must name a pubkey the descriptor derives at a non-hardened path tail
// whose script pubkey is the given one.
func matchesWallet(
	desc *descriptor.Descriptor,
	derivs []psetv2.DerivationPathWithPubKey, script []byte,
) (bool, error) {
	for _, deriv := range derivs {
		if len(deriv.Bip32Path) == 0 {
			continue
		}
		index := deriv.Bip32Path[len(deriv.Bip32Path)-1]
		chain := descriptor.External
		if len(deriv.Bip32Path) >= 2 && deriv.Bip32Path[len(deriv.Bip32Path)-2] == 1 {
			chain = descriptor.Internal
		}

		pubkey, err := desc.DerivePublicKey(chain, index)
		if err != nil {
			continue
		}
		if !bytes.Equal(pubkey.SerializeCompressed(), deriv.PubKey) {
			continue
		}
		derivedScript, err := desc.ScriptPubkey(chain, index)
		if err != nil {
			return false, err
		}
		if bytes.Equal(derivedScript, script) {
			return true, nil
		}
	}
	return false, nil
}

// recipientAddress rebuilds the address encoded by the output script and, if
// the output carries a blinding public key, its confidential form. Scripts
// without an address form yield the empty string.
func recipientAddress(out *psetv2.Output, net network.Network) string {
	var blindKey *btcec.PublicKey
	if len(out.BlindingPubkey) > 0 {
		key, err := btcec.ParsePubKey(out.BlindingPubkey)
		if err != nil {
			return ""
		}
		blindKey = key
	}
	pay, err := payment.FromScript(out.Script, net.Params(), blindKey)
	if err != nil {
		return ""
	}

	var addr string
	switch address.GetScriptType(out.Script) {
	case address.P2PkhScript:
		if blindKey != nil {
			addr, _ = pay.ConfidentialPubKeyHash()
		} else {
			addr, _ = pay.PubKeyHash()
		}
	case address.P2ShScript:
		if blindKey != nil {
			addr, _ = pay.ConfidentialScriptHash()
		} else {
			addr, _ = pay.ScriptHash()
		}
	case address.P2WpkhScript:
		if blindKey != nil {
			addr, _ = pay.ConfidentialWitnessPubKeyHash()
		} else {
			addr, _ = pay.WitnessPubKeyHash()
		}
	case address.P2WshScript:
		if blindKey != nil {
			addr, _ = pay.ConfidentialWitnessScriptHash()
		} else {
			addr, _ = pay.WitnessScriptHash()
		}
	}
	return addr
}

func checkOwnedOutput(idx int, out *psetv2.Output) error {
	switch {
	case len(out.Asset) != 32:
		return ErrOutputMissingField{Index: idx, Field: "asset"}
	case len(out.AssetCommitment) != 33:
		return ErrOutputMissingField{Index: idx, Field: "asset commitment"}
	case len(out.BlindAssetProof) == 0:
		return ErrOutputMissingField{Index: idx, Field: "blind asset proof"}
	case len(out.ValueCommitment) != 33:
		return ErrOutputMissingField{Index: idx, Field: "value commitment"}
	case len(out.BlindValueProof) == 0:
		return ErrOutputMissingField{Index: idx, Field: "blind value proof"}
	case len(out.EcdhPubkey) == 0:
		return ErrOutputMissingField{Index: idx, Field: "ecdh pubkey"}
	case len(out.ValueRangeproof) == 0:
		return ErrOutputMissingField{Index: idx, Field: "value rangeproof"}
	}
	return nil
}

// crossCheckOutput unblinds the output with the wallet key and requires the
// revealed secrets to agree with the explicit asset and amount it declares.
func crossCheckOutput(
	idx int, out *psetv2.Output, desc *descriptor.Descriptor,
) error {
	blindKey, err := desc.BlindingPrivateKey(out.Script)
	if err != nil {
		return err
	}
	txOut := &transaction.TxOutput{
		Asset:      out.AssetCommitment,
		Value:      out.ValueCommitment,
		Script:     out.Script,
		Nonce:      out.EcdhPubkey,
		RangeProof: out.ValueRangeproof,
	}
	secrets, err := transactionutil.UnblindOutput(txOut, blindKey.Serialize())
	if err != nil {
		return ErrOutputMismatch{Index: idx}
	}
	if !bytes.Equal(secrets.Asset, out.Asset) || secrets.Value != out.Value {
		return ErrOutputMismatch{Index: idx}
	}
	return nil
}
