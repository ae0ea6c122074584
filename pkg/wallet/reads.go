package wallet

import (
	"encoding/hex"
	"sort"

	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/transaction"
)

// Txos returns every output ever owned by the wallet, spent ones included.
func (w *Wallet) Txos() ([]*WalletTxOut, error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.txos()
}

func (w *Wallet) txos() ([]*WalletTxOut, error) {
	spent := w.cache.spent()
	txos := make([]*WalletTxOut, 0, len(w.cache.unblinded))

	for txid, height := range w.cache.heights {
		tx, ok := w.cache.txs[txid]
		if !ok {
			continue
		}
		for vout, out := range tx.Outputs {
			outpoint := Outpoint{TxID: txid, VOut: uint32(vout)}
			secrets, ok := w.cache.unblinded[outpoint]
			if !ok {
				continue
			}
			info, ok := w.cache.scripts[hex.EncodeToString(out.Script)]
			if !ok {
				continue
			}

			addr, err := w.desc.Address(info.chain, info.index, w.net.Params())
			if err != nil {
				return nil, err
			}
			_, isSpent := spent[outpoint]
			txos = append(txos, &WalletTxOut{
				Outpoint:  outpoint,
				Script:    out.Script,
				Height:    height,
				Chain:     info.chain,
				Index:     info.index,
				Address:   addr,
				Unblinded: secrets,
				Spent:     isSpent,
			})
		}
	}
	return txos, nil
}

// Utxos returns the spendable outputs of the wallet, sorted by descending
// value. Explicit (unblinded) outputs are excluded, such outputs are not
// supposed to exist under a confidential descriptor.
func (w *Wallet) Utxos() ([]*WalletTxOut, error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.utxos()
}

func (w *Wallet) utxos() ([]*WalletTxOut, error) {
	txos, err := w.txos()
	if err != nil {
		return nil, err
	}
	utxos := make([]*WalletTxOut, 0, len(txos))
	for _, txo := range txos {
		if txo.Spent || txo.Unblinded.IsExplicit() {
			continue
		}
		utxos = append(utxos, txo)
	}
	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].Unblinded.Value != utxos[j].Unblinded.Value {
			return utxos[i].Unblinded.Value > utxos[j].Unblinded.Value
		}
		return utxos[i].Outpoint.String() < utxos[j].Outpoint.String()
	})
	return utxos, nil
}

// Balance sums the unspent outputs per asset. The policy asset is always
// present, possibly with a zero balance.
func (w *Wallet) Balance() (map[string]uint64, error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	utxos, err := w.utxos()
	if err != nil {
		return nil, err
	}
	balance := map[string]uint64{w.net.PolicyAsset(): 0}
	for _, utxo := range utxos {
		balance[utxo.Unblinded.AssetHash()] += utxo.Unblinded.Value
	}
	return balance, nil
}

// Transactions returns the wallet transactions, most recent first.
func (w *Wallet) Transactions() ([]*WalletTx, error) {
	return w.TransactionsPaginated(0, 0)
}

// TransactionsPaginated returns up to limit wallet transactions starting at
// offset, most recent first. A zero limit means no bound.
func (w *Wallet) TransactionsPaginated(offset, limit int) ([]*WalletTx, error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	txos, err := w.txos()
	if err != nil {
		return nil, err
	}
	txosByOutpoint := make(map[Outpoint]*WalletTxOut, len(txos))
	for _, txo := range txos {
		txosByOutpoint[txo.Outpoint] = txo
	}

	type heightTxid struct {
		txid   string
		height uint32
	}
	ordered := make([]heightTxid, 0, len(w.cache.heights))
	for txid, height := range w.cache.heights {
		ordered = append(ordered, heightTxid{txid: txid, height: height})
	}
	// Unconfirmed first (their sentinel height is the highest value), then
	// by descending height, txid as tie-breaker for a stable order.
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].height != ordered[j].height {
			return ordered[i].height > ordered[j].height
		}
		return ordered[i].txid > ordered[j].txid
	})

	txs := make([]*WalletTx, 0, len(ordered))
	skipped := 0
	for _, entry := range ordered {
		tx, ok := w.cache.txs[entry.txid]
		if !ok {
			continue
		}
		walletTx := w.buildWalletTx(entry.txid, tx, entry.height, txosByOutpoint)
		if walletTx == nil {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		txs = append(txs, walletTx)
		if limit > 0 && len(txs) >= limit {
			break
		}
	}
	return txs, nil
}

// Transaction returns the wallet transaction with the given txid.
func (w *Wallet) Transaction(txid string) (*WalletTx, error) {
	txs, err := w.Transactions()
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if tx.TxID == txid {
			return tx, nil
		}
	}
	return nil, ErrTxNotFound
}

// buildWalletTx resolves the wallet legs of a transaction. It returns nil
// when no input nor output belongs to the wallet.
func (w *Wallet) buildWalletTx(
	txid string, tx *transaction.Transaction, height uint32,
	txosByOutpoint map[Outpoint]*WalletTxOut,
) *WalletTx {
	balance := map[string]int64{}
	inputs := make([]*WalletTxOut, len(tx.Inputs))
	outputs := make([]*WalletTxOut, len(tx.Outputs))
	hasWalletLeg := false

	for i, in := range tx.Inputs {
		prevout := Outpoint{
			TxID: bufferutil.TxIDFromBytes(in.Hash),
			VOut: in.Index,
		}
		if txo, ok := txosByOutpoint[prevout]; ok {
			inputs[i] = txo
			balance[txo.Unblinded.AssetHash()] -= int64(txo.Unblinded.Value)
			hasWalletLeg = true
		}
	}
	for vout := range tx.Outputs {
		outpoint := Outpoint{TxID: txid, VOut: uint32(vout)}
		if txo, ok := txosByOutpoint[outpoint]; ok {
			outputs[vout] = txo
			balance[txo.Unblinded.AssetHash()] += int64(txo.Unblinded.Value)
			hasWalletLeg = true
		}
	}
	if !hasWalletLeg {
		return nil
	}

	timestamp := uint32(0)
	if height != UnconfirmedHeight {
		timestamp = w.cache.timestamps[height]
	}
	return &WalletTx{
		TxID:      txid,
		Tx:        tx,
		Height:    height,
		Timestamp: timestamp,
		Balance:   balance,
		Fee:       txFee(tx),
		Type:      w.txType(tx, balance),
		Inputs:    inputs,
		Outputs:   outputs,
	}
}

// txFee sums the values of the fee outputs, the ones with an empty script.
func txFee(tx *transaction.Transaction) uint64 {
	fee := uint64(0)
	for _, out := range tx.Outputs {
		if len(out.Script) == 0 {
			fee += bufferutil.ValueFromBytes(out.Value)
		}
	}
	return fee
}

// txType classifies a transaction from the wallet point of view.
func (w *Wallet) txType(tx *transaction.Transaction, balance map[string]int64) TxType {
	for _, in := range tx.Inputs {
		if in.Issuance != nil {
			if isReissuance(in) {
				return TxTypeReissuance
			}
			return TxTypeIssuance
		}
	}
	for _, out := range tx.Outputs {
		if isBurnScript(out.Script) {
			return TxTypeBurn
		}
	}

	policyAsset := w.net.PolicyAsset()
	positive, negative := false, false
	for asset, amount := range balance {
		if asset == policyAsset && amount < 0 &&
			uint64(-amount) == txFee(tx) && len(balance) == 1 {
			return TxTypeRedeposit
		}
		if amount > 0 {
			positive = true
		}
		if amount < 0 {
			negative = true
		}
	}
	switch {
	case positive && !negative:
		return TxTypeIncoming
	case negative:
		return TxTypeOutgoing
	default:
		return TxTypeUnknown
	}
}

// isBurnScript matches provably unspendable OP_RETURN scripts.
func isBurnScript(script []byte) bool {
	return len(script) > 0 && script[0] == 0x6a
}

// isReissuance tells a reissuance input apart from a new issuance: only the
// former carries a non-zero asset blinding nonce.
func isReissuance(in *transaction.TxInput) bool {
	return in.Issuance != nil && !isAllZero(in.Issuance.AssetBlindingNonce)
}

// Issuances returns the details of every issuance and reissuance found in
// the wallet transactions.
func (w *Wallet) Issuances() ([]*IssuanceDetails, error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	issuances := []*IssuanceDetails{}
	for txid, tx := range w.cache.txs {
		for vin, in := range tx.Inputs {
			if in.Issuance == nil {
				continue
			}

			reissued := isReissuance(in)
			entropy := in.Issuance.AssetEntropy
			if !reissued {
				// For brand new issuances the entropy field of the input
				// carries the contract hash, the entropy itself is derived
				// from it and the spent prevout.
				issuance := transaction.NewTxIssuanceFromContractHash(
					in.Issuance.AssetEntropy,
				)
				if err := issuance.GenerateEntropy(in.Hash, in.Index); err != nil {
					return nil, err
				}
				entropy = issuance.TxIssuance.AssetEntropy
			}

			confidentialAmounts := len(in.Issuance.AssetAmount) == 33

			issuance := transaction.NewTxIssuanceFromEntropy(entropy)
			assetHash, err := issuance.GenerateAsset()
			if err != nil {
				return nil, err
			}
			tokenFlag := uint(0)
			if confidentialAmounts {
				tokenFlag = 1
			}
			tokenHash, err := issuance.GenerateReissuanceToken(tokenFlag)
			if err != nil {
				return nil, err
			}

			details := &IssuanceDetails{
				TxID:           txid,
				VIn:            uint32(vin),
				AssetHash:      hex.EncodeToString(elementsutil.ReverseBytes(assetHash)),
				TokenHash:      hex.EncodeToString(elementsutil.ReverseBytes(tokenHash)),
				Entropy:        entropy,
				IsReissuance:   reissued,
				IsConfidential: confidentialAmounts,
			}
			if len(in.Issuance.AssetAmount) == 9 {
				details.AssetAmount = bufferutil.ValueFromBytes(in.Issuance.AssetAmount)
			}
			if len(in.Issuance.TokenAmount) == 9 {
				details.TokenAmount = bufferutil.ValueFromBytes(in.Issuance.TokenAmount)
			}
			issuances = append(issuances, details)
		}
	}

	sort.Slice(issuances, func(i, j int) bool {
		if issuances[i].TxID != issuances[j].TxID {
			return issuances[i].TxID < issuances[j].TxID
		}
		return issuances[i].VIn < issuances[j].VIn
	})
	return issuances, nil
}
