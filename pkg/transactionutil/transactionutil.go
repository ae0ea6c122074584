package transactionutil

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/vulpemventures/go-elements/confidential"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/transaction"
)

var (
	// ErrOutputNotConfidential is returned when trying to unblind an output
	// carrying an explicit asset and value.
	ErrOutputNotConfidential = errors.New("output is not confidential")
	// ErrSecretsMismatch is returned when revealed secrets do not commit to
	// the asset and value commitments of the output they were revealed from.
	ErrSecretsMismatch = errors.New("unblinded secrets do not match output commitments")
)

// TxOutSecrets is the revealed content of a confidential output.
type TxOutSecrets struct {
	Asset        []byte // 32 bytes, internal byte order
	AssetBlinder []byte // 32 bytes
	Value        uint64
	ValueBlinder []byte // 32 bytes
}

// AssetHash returns the asset in display (reversed hex) format.
func (s *TxOutSecrets) AssetHash() string {
	return hex.EncodeToString(elementsutil.ReverseBytes(s.Asset))
}

// IsExplicit reports whether the secrets come from an unblinded output, ie.
// both blinders are null.
func (s *TxOutSecrets) IsExplicit() bool {
	return allZero(s.AssetBlinder) && allZero(s.ValueBlinder)
}

// Commitments recomputes the asset generator and value commitment the
// secrets commit to.
func (s *TxOutSecrets) Commitments() (assetCommitment, valueCommitment []byte, err error) {
	assetCommitment, err = confidential.AssetCommitment(s.Asset, s.AssetBlinder)
	if err != nil {
		return nil, nil, err
	}
	valueCommitment, err = confidential.ValueCommitment(
		s.Value, assetCommitment, s.ValueBlinder,
	)
	if err != nil {
		return nil, nil, err
	}
	return
}

// UnblindOutput reveals the secrets of a confidential output with the given
// blinding private key. Explicit outputs pass through with null blinders.
func UnblindOutput(
	out *transaction.TxOutput, blindKey []byte,
) (*TxOutSecrets, error) {
	if len(out.Asset) == 33 && out.Asset[0] == 0x01 {
		// Explicit output.
		return &TxOutSecrets{
			Asset:        out.Asset[1:],
			AssetBlinder: make([]byte, 32),
			Value:        bufferutil.ValueFromBytes(out.Value),
			ValueBlinder: make([]byte, 32),
		}, nil
	}

	revealed, err := confidential.UnblindOutputWithKey(out, blindKey)
	if err != nil {
		return nil, err
	}
	return &TxOutSecrets{
		Asset:        revealed.Asset,
		AssetBlinder: revealed.AssetBlindingFactor,
		Value:        revealed.Value,
		ValueBlinder: revealed.ValueBlindingFactor,
	}, nil
}

// IsConfidentialOutput reports whether the output carries asset and value
// commitments instead of explicit values.
func IsConfidentialOutput(out *transaction.TxOutput) bool {
	return len(out.Asset) == 33 && out.Asset[0] != 0x01 && len(out.Value) == 33
}

// VerifySecrets checks that the given secrets commit exactly to the
// commitments carried by the output.
func VerifySecrets(out *transaction.TxOutput, secrets *TxOutSecrets) error {
	if !IsConfidentialOutput(out) {
		return ErrOutputNotConfidential
	}
	assetCommitment, valueCommitment, err := secrets.Commitments()
	if err != nil {
		return err
	}
	if !bytes.Equal(assetCommitment, out.Asset) ||
		!bytes.Equal(valueCommitment, out.Value) {
		return ErrSecretsMismatch
	}
	return nil
}

// VerifyBlindProofs checks the explicit-value and explicit-asset proofs of a
// partially signed output against its commitments.
func VerifyBlindProofs(
	asset []byte, value uint64,
	assetCommitment, valueCommitment []byte,
	blindAssetProof, blindValueProof []byte,
) bool {
	if !confidential.VerifyBlindAssetProof(asset, assetCommitment, blindAssetProof) {
		return false
	}
	return confidential.VerifyBlindValueProof(
		value, valueCommitment, assetCommitment, blindValueProof,
	)
}

// UnblindIssuance reveals amounts of a confidential issuance with the given
// blinding keys, one per issuance pseudo-output.
func UnblindIssuance(
	in *transaction.TxInput, blindKeys [][]byte,
) (*confidential.UnblindIssuanceResult, error) {
	return confidential.UnblindIssuance(in, blindKeys)
}

// HexTxID returns the hash of the given transaction in display format.
func HexTxID(tx *transaction.Transaction) string {
	return tx.TxHash().String()
}

// OutpointKey is a compact map key for a transaction outpoint.
func OutpointKey(txid string, vout uint32) string {
	return txid + ":" + strconv.FormatUint(uint64(vout), 10)
}

func allZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// DecodeTx parses a raw transaction in hex format.
func DecodeTx(txHex string) (*transaction.Transaction, error) {
	return transaction.NewTxFromHex(txHex)
}
