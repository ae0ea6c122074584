package txbuilder

import (
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/tdex-network/liquid-wallet/pkg/descriptor"
	"github.com/tdex-network/liquid-wallet/pkg/wallet"
	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/confidential"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/psetv2"
	"github.com/vulpemventures/go-elements/transaction"
)

// maxInputs is the hard cap imposed by surjection proofs.
const maxInputs = 256

type pendingChange struct {
	asset  string
	amount uint64
}

type mintedOutput struct {
	asset   string
	amount  uint64
	address string
}

// Finish selects wallet coins for the collected recipients, assembles the
// pset and blinds it. The returned pset is complete except for signatures.
func (b *Builder) Finish(w *wallet.Wallet) (*psetv2.Pset, error) {
	if w == nil {
		return nil, ErrNullWallet
	}
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.recipients) == 0 && b.issuance == nil && b.reissuance == nil {
		return nil, ErrNoRecipients
	}

	utxos, err := w.Utxos()
	if err != nil {
		return nil, err
	}
	utxos, err = b.filterManualCoins(utxos)
	if err != nil {
		return nil, err
	}
	byAsset := make(map[string][]*wallet.WalletTxOut)
	for _, utxo := range utxos {
		byAsset[utxo.Unblinded.AssetHash()] = append(
			byAsset[utxo.Unblinded.AssetHash()], utxo,
		)
	}

	policy := b.net.PolicyAsset()
	needed := make(map[string]uint64)
	numBurns := 0
	for _, r := range b.recipients {
		needed[r.asset] += r.amount
		if r.burn {
			numBurns++
		}
	}

	selected := make([]*wallet.WalletTxOut, 0)
	changes := make([]pendingChange, 0)

	assets := make([]string, 0, len(needed))
	for asset := range needed {
		if asset != policy {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)
	for _, asset := range assets {
		coins, total, err := selectCoins(asset, byAsset[asset], needed[asset])
		if err != nil {
			return nil, err
		}
		selected = append(selected, coins...)
		if change := total - needed[asset]; change > 0 {
			changes = append(changes, pendingChange{asset: asset, amount: change})
		}
	}

	minted := make([]mintedOutput, 0, 2)
	var reissuanceInput *reissuanceDetails
	if b.reissuance != nil {
		details, err := b.resolveReissuance(w, byAsset)
		if err != nil {
			return nil, err
		}
		reissuanceInput = details
		reissuanceInput.inputIndex = len(selected)
		selected = append(selected, details.tokenUtxo)
		minted = append(minted,
			mintedOutput{
				asset:   b.reissuance.asset,
				amount:  b.reissuance.amount,
				address: b.reissuance.address,
			},
			mintedOutput{
				asset:  details.tokenAsset,
				amount: details.tokenUtxo.Unblinded.Value,
				// address filled below with a change address
			},
		)
	}

	// The policy asset also pays the fee, whose size depends on the number
	// of inputs: keep adding coins until the selection covers outputs plus
	// the fee recomputed on the running count.
	mintedConfOuts := len(minted)
	if b.issuance != nil {
		mintedConfOuts = 1
		if b.issuance.tokenAmount > 0 {
			mintedConfOuts = 2
		}
	}
	numConfOuts := len(b.recipients) - numBurns + len(changes) + mintedConfOuts + 1
	withIssuance := b.issuance != nil || b.reissuance != nil

	policyTarget := needed[policy]
	policyCoins := make([]*wallet.WalletTxOut, 0)
	policyTotal := uint64(0)
	fee := uint64(0)
	for {
		vsize := estimateVsize(
			len(selected)+len(policyCoins), numConfOuts, numBurns, withIssuance,
		)
		fee = estimateFee(vsize, b.feeRate)
		if policyTotal >= policyTarget+fee {
			break
		}
		next := len(policyCoins)
		if next >= len(byAsset[policy]) {
			return nil, ErrInsufficientFunds{Asset: policy}
		}
		policyCoins = append(policyCoins, byAsset[policy][next])
		policyTotal += byAsset[policy][next].Unblinded.Value
	}
	if change := policyTotal - policyTarget - fee; change > 0 {
		changes = append(changes, pendingChange{asset: policy, amount: change})
	}
	selected = append(selected, policyCoins...)

	if len(selected) > maxInputs {
		return nil, ErrTooManyInputs
	}

	return b.assemble(w, selected, changes, minted, reissuanceInput, fee)
}

func (b *Builder) filterManualCoins(
	utxos []*wallet.WalletTxOut,
) ([]*wallet.WalletTxOut, error) {
	if len(b.manualCoins) == 0 {
		return utxos, nil
	}
	byOutpoint := make(map[wallet.Outpoint]*wallet.WalletTxOut, len(utxos))
	for _, utxo := range utxos {
		byOutpoint[utxo.Outpoint] = utxo
	}
	filtered := make([]*wallet.WalletTxOut, 0, len(b.manualCoins))
	for _, outpoint := range b.manualCoins {
		utxo, ok := byOutpoint[outpoint]
		if !ok {
			return nil, ErrManualCoinNotFound
		}
		filtered = append(filtered, utxo)
	}
	return filtered, nil
}

// selectCoins consumes coins largest first until the target is covered.
func selectCoins(
	asset string, coins []*wallet.WalletTxOut, target uint64,
) ([]*wallet.WalletTxOut, uint64, error) {
	selected := make([]*wallet.WalletTxOut, 0, len(coins))
	total := uint64(0)
	for _, coin := range coins {
		if total >= target {
			break
		}
		selected = append(selected, coin)
		total += coin.Unblinded.Value
	}
	if total < target {
		return nil, 0, ErrInsufficientFunds{Asset: asset}
	}
	return selected, total, nil
}

type reissuanceDetails struct {
	entropy    []byte
	tokenAsset string
	tokenUtxo  *wallet.WalletTxOut
	inputIndex int
}

// resolveReissuance recovers the issuance entropy of the asset to reissue and
// locates a reissuance token among the wallet coins.
func (b *Builder) resolveReissuance(
	w *wallet.Wallet, byAsset map[string][]*wallet.WalletTxOut,
) (*reissuanceDetails, error) {
	entropy, confidentialIssuance, err := b.resolveEntropy(w)
	if err != nil {
		return nil, err
	}

	issuance := transaction.NewTxIssuanceFromEntropy(entropy)
	tokenFlag := uint(0)
	if confidentialIssuance {
		tokenFlag = 1
	}
	tokenHash, err := issuance.GenerateReissuanceToken(tokenFlag)
	if err != nil {
		return nil, err
	}
	tokenAsset := hex.EncodeToString(elementsutil.ReverseBytes(tokenHash))

	tokens := byAsset[tokenAsset]
	if len(tokens) == 0 {
		return nil, ErrTokenNotFound
	}
	return &reissuanceDetails{
		entropy:    entropy,
		tokenAsset: tokenAsset,
		tokenUtxo:  tokens[0],
	}, nil
}

func (b *Builder) resolveEntropy(w *wallet.Wallet) ([]byte, bool, error) {
	if len(b.reissuance.issuanceTxHex) > 0 {
		return entropyFromRawTx(b.reissuance.issuanceTxHex, b.reissuance.asset)
	}

	issuances, err := w.Issuances()
	if err != nil {
		return nil, false, err
	}
	for _, details := range issuances {
		if details.AssetHash == b.reissuance.asset && !details.IsReissuance {
			return details.Entropy, details.IsConfidential, nil
		}
	}
	return nil, false, ErrIssuanceNotFound
}

func entropyFromRawTx(txHex, assetID string) ([]byte, bool, error) {
	tx, err := transaction.NewTxFromHex(txHex)
	if err != nil {
		return nil, false, err
	}
	for _, in := range tx.Inputs {
		if in.Issuance == nil || !isAllZero(in.Issuance.AssetBlindingNonce) {
			continue
		}
		issuance := transaction.NewTxIssuanceFromContractHash(
			in.Issuance.AssetEntropy,
		)
		if err := issuance.GenerateEntropy(in.Hash, in.Index); err != nil {
			return nil, false, err
		}
		entropy := issuance.TxIssuance.AssetEntropy
		assetHash, err := transaction.NewTxIssuanceFromEntropy(entropy).
			GenerateAsset()
		if err != nil {
			return nil, false, err
		}
		if hex.EncodeToString(elementsutil.ReverseBytes(assetHash)) == assetID {
			confidentialIssuance := len(in.Issuance.AssetAmount) == 33
			return entropy, confidentialIssuance, nil
		}
	}
	return nil, false, ErrIssuanceNotFound
}

// assemble builds the pset from the selection and blinds it.
func (b *Builder) assemble(
	w *wallet.Wallet,
	selected []*wallet.WalletTxOut,
	changes []pendingChange,
	minted []mintedOutput,
	reissuance *reissuanceDetails,
	fee uint64,
) (*psetv2.Pset, error) {
	desc := w.Descriptor()
	policy := b.net.PolicyAsset()

	changeChain := descriptor.External
	if desc.HasInternal() {
		changeChain = descriptor.Internal
	}
	changeIndex := w.LastUnusedIndex(changeChain)
	nextChangeAddress := func() (string, uint32, error) {
		index := changeIndex
		changeIndex++
		result, err := w.ChangeAddress(&index)
		if err != nil {
			return "", 0, err
		}
		return result.Address, result.Index, nil
	}

	inputArgs := make([]psetv2.InputArgs, 0, len(selected))
	for _, utxo := range selected {
		inputArgs = append(inputArgs, psetv2.InputArgs{
			Txid:    utxo.Outpoint.TxID,
			TxIndex: utxo.Outpoint.VOut,
		})
	}

	var issuedMinted []mintedOutput
	var contractHash []byte
	if b.issuance != nil {
		var err error
		issuedMinted, contractHash, err = b.resolveIssuance(selected[0])
		if err != nil {
			return nil, err
		}
		minted = append(minted, issuedMinted...)
	}

	type ownedOutput struct {
		position int
		index    uint32
	}
	ownedOutputs := make([]ownedOutput, 0, len(changes)+1)

	outputArgs := make([]psetv2.OutputArgs, 0)
	for _, r := range b.recipients {
		if r.burn || r.asset == policy {
			continue
		}
		args, err := newOutputArgs(r.asset, r.amount, r.address)
		if err != nil {
			return nil, err
		}
		outputArgs = append(outputArgs, args)
	}
	for _, m := range minted {
		addr := m.address
		if len(addr) == 0 {
			var index uint32
			var err error
			addr, index, err = nextChangeAddress()
			if err != nil {
				return nil, err
			}
			ownedOutputs = append(ownedOutputs, ownedOutput{
				position: len(outputArgs), index: index,
			})
		}
		args, err := newOutputArgs(m.asset, m.amount, addr)
		if err != nil {
			return nil, err
		}
		outputArgs = append(outputArgs, args)
	}
	for _, r := range b.recipients {
		if r.burn || r.asset != policy {
			continue
		}
		args, err := newOutputArgs(r.asset, r.amount, r.address)
		if err != nil {
			return nil, err
		}
		outputArgs = append(outputArgs, args)
	}
	for _, change := range changes {
		addr, index, err := nextChangeAddress()
		if err != nil {
			return nil, err
		}
		ownedOutputs = append(ownedOutputs, ownedOutput{
			position: len(outputArgs), index: index,
		})
		args, err := newOutputArgs(change.asset, change.amount, addr)
		if err != nil {
			return nil, err
		}
		outputArgs = append(outputArgs, args)
	}
	outputArgs = append(outputArgs, psetv2.OutputArgs{
		Asset: policy, Amount: fee,
	})

	ptx, err := psetv2.New(inputArgs, outputArgs, nil)
	if err != nil {
		return nil, err
	}
	updater, err := psetv2.NewUpdater(ptx)
	if err != nil {
		return nil, err
	}

	fingerprint, err := masterFingerprint(desc)
	if err != nil {
		return nil, err
	}

	blindingKeys := make([][]byte, 0, len(selected))
	for idx, utxo := range selected {
		wtx, err := w.Transaction(utxo.Outpoint.TxID)
		if err != nil {
			return nil, err
		}
		prevout := wtx.Tx.Outputs[utxo.Outpoint.VOut]
		if err := updater.AddInWitnessUtxo(idx, prevout); err != nil {
			return nil, err
		}

		blindKey, err := desc.BlindingPrivateKey(prevout.Script)
		if err != nil {
			return nil, err
		}
		blindingKeys = append(blindingKeys, blindKey.Serialize())

		if err := addDerivation(
			desc, fingerprint, utxo.Chain, utxo.Index,
			&ptx.Inputs[idx].Bip32Derivation,
		); err != nil {
			return nil, err
		}
	}

	for _, owned := range ownedOutputs {
		if err := addDerivation(
			desc, fingerprint, changeChain, owned.index,
			&ptx.Outputs[owned.position].Bip32Derivation,
		); err != nil {
			return nil, err
		}
	}

	if b.issuance != nil {
		in := &ptx.Inputs[0]
		in.IssuanceAssetEntropy = contractHash
		in.IssuanceBlindingNonce = make([]byte, 32)
		in.IssuanceValue = b.issuance.assetAmount
		in.IssuanceInflationKeys = b.issuance.tokenAmount
	}
	if reissuance != nil {
		in := &ptx.Inputs[reissuance.inputIndex]
		in.IssuanceAssetEntropy = reissuance.entropy
		in.IssuanceBlindingNonce = reissuance.tokenUtxo.Unblinded.AssetBlinder
		in.IssuanceValue = b.reissuance.amount
	}

	for _, r := range b.recipients {
		if !r.burn {
			continue
		}
		if err := addBurnOutput(ptx, r.asset, r.amount); err != nil {
			return nil, err
		}
	}

	if err := blind(ptx, blindingKeys); err != nil {
		return nil, err
	}
	return ptx, nil
}

// resolveIssuance computes the ids of the minted asset and token from the
// issuance prevout and the contract hash.
func (b *Builder) resolveIssuance(
	prevout *wallet.WalletTxOut,
) ([]mintedOutput, []byte, error) {
	contractHash := make([]byte, 32)
	if b.issuance.contract != nil {
		var err error
		contractHash, err = b.issuance.contract.Hash()
		if err != nil {
			return nil, nil, err
		}
	}

	inTxHash, err := bufferutil.TxIDToBytes(prevout.Outpoint.TxID)
	if err != nil {
		return nil, nil, err
	}
	issuance := transaction.NewTxIssuanceFromContractHash(contractHash)
	if err := issuance.GenerateEntropy(
		inTxHash, prevout.Outpoint.VOut,
	); err != nil {
		return nil, nil, err
	}
	assetHash, err := issuance.GenerateAsset()
	if err != nil {
		return nil, nil, err
	}

	minted := []mintedOutput{{
		asset:   hex.EncodeToString(elementsutil.ReverseBytes(assetHash)),
		amount:  b.issuance.assetAmount,
		address: b.issuance.assetAddress,
	}}
	if b.issuance.tokenAmount > 0 {
		tokenHash, err := issuance.GenerateReissuanceToken(0)
		if err != nil {
			return nil, nil, err
		}
		minted = append(minted, mintedOutput{
			asset:   hex.EncodeToString(elementsutil.ReverseBytes(tokenHash)),
			amount:  b.issuance.tokenAmount,
			address: b.issuance.tokenAddress,
		})
	}
	return minted, contractHash, nil
}

// newOutputArgs resolves an address into the script and, for confidential
// addresses, the blinding key of an output of the pset under construction.
func newOutputArgs(
	asset string, amount uint64, addr string,
) (psetv2.OutputArgs, error) {
	script, err := address.ToOutputScript(addr)
	if err != nil {
		return psetv2.OutputArgs{}, err
	}
	args := psetv2.OutputArgs{Asset: asset, Amount: amount, Script: script}

	isConfidential, err := address.IsConfidential(addr)
	if err != nil {
		return psetv2.OutputArgs{}, err
	}
	if isConfidential {
		info, err := address.FromConfidential(addr)
		if err != nil {
			return psetv2.OutputArgs{}, err
		}
		args.BlindingKey = info.BlindingKey
	}
	return args, nil
}

// addBurnOutput appends an explicit OP_RETURN output. The updater cannot do
// it since an empty script means fee output to it.
func addBurnOutput(ptx *psetv2.Pset, asset string, amount uint64) error {
	assetBytes, err := elementsutil.AssetHashToBytes(asset)
	if err != nil {
		return err
	}
	ptx.Outputs = append(ptx.Outputs, psetv2.Output{
		Script: []byte{0x6a},
		Asset:  assetBytes[1:],
		Value:  amount,
	})
	ptx.Global.OutputCount++
	return nil
}

func blind(ptx *psetv2.Pset, blindingKeys [][]byte) error {
	if !ptx.NeedsBlinding() {
		return nil
	}
	zkpValidator := confidential.NewZKPValidator()
	zkpGenerator := confidential.NewZKPGeneratorFromBlindingKeys(
		blindingKeys, nil,
	)
	ownedInputs, err := zkpGenerator.UnblindInputs(ptx, nil)
	if err != nil {
		return err
	}
	blinder, err := psetv2.NewBlinder(
		ptx, ownedInputs, zkpValidator, zkpGenerator,
	)
	if err != nil {
		return err
	}
	outBlindingArgs, err := zkpGenerator.BlindOutputs(ptx, nil)
	if err != nil {
		return err
	}
	return blinder.BlindLast(nil, outBlindingArgs)
}

func addDerivation(
	desc *descriptor.Descriptor, fingerprint uint32,
	chain descriptor.Chain, index uint32,
	derivs *[]psetv2.DerivationPathWithPubKey,
) error {
	pubkey, err := desc.DerivePublicKey(chain, index)
	if err != nil {
		return err
	}
	path, err := desc.DerivationPath(chain, index)
	if err != nil {
		return err
	}
	*derivs = append(*derivs, psetv2.DerivationPathWithPubKey{
		PubKey:               pubkey.SerializeCompressed(),
		MasterKeyFingerprint: fingerprint,
		Bip32Path:            path,
	})
	return nil
}

func masterFingerprint(desc *descriptor.Descriptor) (uint32, error) {
	fingerprint, err := desc.MasterFingerprint()
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(fingerprint), nil
}

func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
