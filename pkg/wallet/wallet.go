package wallet

import (
	"encoding/hex"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/liquid-wallet/pkg/descriptor"
	"github.com/tdex-network/liquid-wallet/pkg/network"
	"github.com/tdex-network/liquid-wallet/pkg/transactionutil"
	"github.com/vulpemventures/go-elements/transaction"
)

// GapLimit is how many consecutive unused addresses a scan probes before
// considering a chain exhausted.
const GapLimit = 20

// Wallet is a watch-only wallet defined by a confidential descriptor. All
// state transitions go through ApplyUpdate under a single writer lock, reads
// take the shared lock and are safe from any goroutine.
type Wallet struct {
	mtx       sync.RWMutex
	desc      *descriptor.Descriptor
	net       network.Network
	cache     *cache
	persister Persister
}

// NewWalletOpts is the struct given to the NewWallet method.
type NewWalletOpts struct {
	Descriptor string
	Network    network.Network
	// Persister defaults to NoPersist when unset.
	Persister Persister
}

func (o NewWalletOpts) validate() error {
	if len(o.Descriptor) <= 0 {
		return ErrNullDescriptor
	}
	if len(o.Network.PolicyAsset()) <= 0 {
		return ErrNullNetwork
	}
	return nil
}

// NewWallet parses the descriptor and loads the wallet state by replaying
// every persisted update in order.
func NewWallet(opts NewWalletOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	desc, err := descriptor.Parse(opts.Descriptor)
	if err != nil {
		return nil, err
	}
	if desc.IsMainnet() != opts.Network.IsMainnet() {
		return nil, ErrNetworkMismatch
	}

	persister := opts.Persister
	if persister == nil {
		persister = NewNoPersist()
	}

	w := &Wallet{
		desc:      desc,
		net:       opts.Network,
		cache:     newCache(),
		persister: persister,
	}

	updates, err := persister.All()
	if err != nil {
		return nil, err
	}
	for _, update := range updates {
		if err := w.cache.applyUpdate(update); err != nil {
			return nil, err
		}
	}
	if len(updates) > 0 {
		log.WithFields(log.Fields{
			"wallet":  desc.ID(),
			"updates": len(updates),
			"tip":     w.cache.tip.Height,
		}).Debug("wallet state restored from persisted updates")
	}
	return w, nil
}

// Descriptor returns the parsed wallet descriptor.
func (w *Wallet) Descriptor() *descriptor.Descriptor { return w.desc }

// Network returns the network the wallet is bound to.
func (w *Wallet) Network() network.Network { return w.net }

// PolicyAsset returns the fee asset of the wallet network.
func (w *Wallet) PolicyAsset() string { return w.net.PolicyAsset() }

// Address returns the confidential receiving address at the given index, or
// at the first unused index if nil.
func (w *Wallet) Address(index *uint32) (*AddressResult, error) {
	return w.address(descriptor.External, index)
}

// ChangeAddress returns the confidential change address at the given index,
// or at the first unused index if nil. Descriptors without an internal chain
// fall back to the external one.
func (w *Wallet) ChangeAddress(index *uint32) (*AddressResult, error) {
	chain := descriptor.Internal
	if !w.desc.HasInternal() {
		chain = descriptor.External
	}
	return w.address(chain, index)
}

func (w *Wallet) address(chain descriptor.Chain, index *uint32) (*AddressResult, error) {
	w.mtx.RLock()
	derivationIndex := w.cache.lastUnused[chain]
	w.mtx.RUnlock()
	if index != nil {
		derivationIndex = *index
	}

	addr, err := w.desc.Address(chain, derivationIndex, w.net.Params())
	if err != nil {
		return nil, err
	}
	return &AddressResult{Address: addr, Index: derivationIndex}, nil
}

// LastUnusedIndex returns the first unused wildcard index of the chain.
func (w *Wallet) LastUnusedIndex(chain descriptor.Chain) uint32 {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.cache.lastUnused[chain]
}

// Status identifies the current wallet state. It changes whenever applying
// an update changes anything the wallet knows, and is zero only before the
// first scan.
func (w *Wallet) Status() uint64 {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.cache.status()
}

// NeverScanned reports whether no update was ever applied to the wallet.
func (w *Wallet) NeverScanned() bool {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return !w.cache.scanned
}

// Tip returns the chain tip the wallet is synced to.
func (w *Wallet) Tip() BlockHeader {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.cache.tip
}

// ApplyUpdate merges a scan result into the wallet and persists it.
func (w *Wallet) ApplyUpdate(update *Update) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if err := w.cache.applyUpdate(update); err != nil {
		return err
	}
	return w.persister.Push(update)
}

// Updates returns the persisted update history of the wallet.
func (w *Wallet) Updates() ([]*Update, error) {
	return w.persister.All()
}

// ApplyTransaction inserts a transaction into the wallet as unconfirmed,
// without waiting for a scan to pick it up. Typically called right after
// broadcasting. Outputs paying wallet scripts within the gap limit are
// unblinded with the descriptor keys.
func (w *Wallet) ApplyTransaction(tx *transaction.Transaction) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	txid := tx.TxHash().String()
	update := &Update{
		WalletStatus: w.cache.status(),
		Txs:          []TxEntry{{TxID: txid, Tx: tx}},
		NewHeights:   []HeightEntry{{TxID: txid, Height: UnconfirmedHeight}},
		Tip:          w.cache.tip,
	}

	candidates := w.candidateScripts()
	for vout, out := range tx.Outputs {
		key := hex.EncodeToString(out.Script)
		info, owned := candidates[key]
		if !owned {
			continue
		}

		blindKey, err := w.desc.BlindingPrivateKey(out.Script)
		if err != nil {
			return err
		}
		secrets, err := transactionutil.UnblindOutput(out, blindKey.Serialize())
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"txid": txid,
				"vout": vout,
			}).Warn("cannot unblind wallet output")
			continue
		}

		update.Unblinds = append(update.Unblinds, UnblindEntry{
			Outpoint: Outpoint{TxID: txid, VOut: uint32(vout)},
			Secrets:  *secrets,
		})
		if _, cached := w.cache.scripts[key]; !cached {
			entry := ScriptEntry{
				Script: out.Script,
				Chain:  info.chain,
				Index:  info.index,
			}
			if blindingPubkey, err := w.desc.BlindingPublicKey(out.Script); err == nil {
				entry.BlindingPubkey = blindingPubkey.SerializeCompressed()
			}
			update.Scripts = append(update.Scripts, entry)
		}
	}

	if err := w.cache.applyUpdate(update); err != nil {
		return err
	}
	return w.persister.Push(update)
}

// candidateScripts returns the cached scripts plus the ones derivable within
// the gap limit past the last unused index of each chain.
func (w *Wallet) candidateScripts() map[string]scriptInfo {
	candidates := make(map[string]scriptInfo, len(w.cache.scripts))
	for key, info := range w.cache.scripts {
		candidates[key] = info
	}

	chains := []descriptor.Chain{descriptor.External}
	if w.desc.HasInternal() {
		chains = append(chains, descriptor.Internal)
	}
	for _, chain := range chains {
		until := w.cache.lastUnused[chain] + GapLimit
		for index := uint32(0); index < until; index++ {
			script, err := w.desc.ScriptPubkey(chain, index)
			if err != nil {
				continue
			}
			key := hex.EncodeToString(script)
			if _, ok := candidates[key]; !ok {
				candidates[key] = scriptInfo{chain: chain, index: index}
			}
		}
	}
	return candidates
}

// Close releases the wallet persister.
func (w *Wallet) Close() error {
	return w.persister.Close()
}
