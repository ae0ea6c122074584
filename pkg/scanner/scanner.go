package scanner

import (
	"bytes"
	"context"
	"encoding/hex"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/liquid-wallet/pkg/descriptor"
	"github.com/tdex-network/liquid-wallet/pkg/explorer"
	"github.com/tdex-network/liquid-wallet/pkg/transactionutil"
	"github.com/tdex-network/liquid-wallet/pkg/wallet"
)

// batchSize is the number of script pubkeys asked to the explorer per round,
// and doubles as the gap limit: a chain is scanned until a whole batch past
// the last index with history comes back empty.
const batchSize = wallet.GapLimit

type ownedScript struct {
	chain  descriptor.Chain
	index  uint32
	script []byte
}

// FullScan walks the whole script space of the wallet descriptor against the
// explorer and returns the update bringing the wallet in sync, or nil when
// nothing changed. It only reads from the wallet, so it never blocks readers;
// the caller applies the returned update.
func FullScan(
	ctx context.Context, w *wallet.Wallet, svc explorer.Service,
) (*wallet.Update, error) {
	state := w.ScanState()
	desc := w.Descriptor()

	tip, err := svc.Tip()
	if err != nil {
		return nil, err
	}

	chains := []descriptor.Chain{descriptor.External}
	if desc.HasInternal() {
		chains = append(chains, descriptor.Internal)
	}

	derived := make(map[string]ownedScript)
	seenHeights := make(map[string]uint32)
	activeScripts := make([]string, 0)

	for _, chain := range chains {
		for batch := uint32(0); ; batch++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			start := batch * batchSize
			scripts := make([][]byte, 0, batchSize)
			for i := start; i < start+batchSize; i++ {
				script, err := desc.ScriptPubkey(chain, i)
				if err != nil {
					return nil, err
				}
				derived[hex.EncodeToString(script)] = ownedScript{
					chain: chain, index: i, script: script,
				}
				scripts = append(scripts, script)
			}

			histories, err := svc.GetScriptsHistory(scripts)
			if err != nil {
				return nil, err
			}

			active := false
			for pos, items := range histories {
				if len(items) == 0 {
					continue
				}
				active = true
				activeScripts = append(
					activeScripts, hex.EncodeToString(scripts[pos]),
				)
				for _, item := range items {
					height := wallet.UnconfirmedHeight
					if item.Height > 0 {
						height = uint32(item.Height)
					}
					seenHeights[item.TxID] = height
				}
			}

			// The cached last unused index proves there was history up to
			// there in a previous scan: keep going if the index space covered
			// so far does not extend past it yet.
			if !active && start+batchSize >= state.LastUnused[chain] {
				break
			}
		}
	}

	update := &wallet.Update{WalletStatus: state.Status, Tip: *tip}

	toFetch := make([]string, 0)
	for txid := range seenHeights {
		if _, cached := state.TxHeights[txid]; !cached {
			toFetch = append(toFetch, txid)
		}
	}
	sort.Strings(toFetch)

	if len(toFetch) > 0 {
		txs, err := svc.GetTransactions(toFetch)
		if err != nil {
			return nil, err
		}
		for pos, tx := range txs {
			txid := toFetch[pos]
			update.Txs = append(update.Txs, wallet.TxEntry{TxID: txid, Tx: tx})

			for vout, out := range tx.Outputs {
				if _, ok := derived[hex.EncodeToString(out.Script)]; !ok {
					continue
				}
				blindKey, err := desc.BlindingPrivateKey(out.Script)
				if err != nil {
					return nil, err
				}
				secrets, err := transactionutil.UnblindOutput(out, blindKey.Serialize())
				if err != nil {
					log.WithError(err).WithFields(log.Fields{
						"txid": txid,
						"vout": vout,
					}).Warn("cannot unblind wallet output")
					continue
				}
				update.Unblinds = append(update.Unblinds, wallet.UnblindEntry{
					Outpoint: wallet.Outpoint{TxID: txid, VOut: uint32(vout)},
					Secrets:  *secrets,
				})
			}
		}
	}

	for txid, height := range seenHeights {
		if cached, ok := state.TxHeights[txid]; ok && cached == height {
			continue
		}
		update.NewHeights = append(update.NewHeights, wallet.HeightEntry{
			TxID: txid, Height: height,
		})
	}
	sort.Slice(update.NewHeights, func(i, j int) bool {
		return update.NewHeights[i].TxID < update.NewHeights[j].TxID
	})

	for txid, height := range state.TxHeights {
		if _, stillThere := seenHeights[txid]; stillThere {
			continue
		}
		if height != wallet.UnconfirmedHeight {
			update.DeleteTxids = append(update.DeleteTxids, txid)
		}
	}
	sort.Strings(update.DeleteTxids)

	sort.Strings(activeScripts)
	for _, key := range activeScripts {
		if state.KnownScripts[key] {
			continue
		}
		owned := derived[key]
		entry := wallet.ScriptEntry{
			Script: owned.script,
			Chain:  owned.chain,
			Index:  owned.index,
		}
		if blindingPubkey, err := desc.BlindingPublicKey(owned.script); err == nil {
			entry.BlindingPubkey = blindingPubkey.SerializeCompressed()
		}
		update.Scripts = append(update.Scripts, entry)
	}

	if err := fillTimestamps(update, state, tip, svc); err != nil {
		return nil, err
	}

	tipMoved := tip.Height != state.Tip.Height ||
		!bytes.Equal(tip.Hash, state.Tip.Hash)
	if update.OnlyTip() && len(update.Timestamps) == 0 &&
		!tipMoved && state.Scanned {
		return nil, nil
	}
	return update, nil
}

// fillTimestamps resolves the header times of every confirmation height the
// update introduces and the wallet does not know yet.
func fillTimestamps(
	update *wallet.Update, state wallet.ScanState,
	tip *wallet.BlockHeader, svc explorer.Service,
) error {
	missing := make(map[uint32]struct{})
	for _, entry := range update.NewHeights {
		if entry.Height == wallet.UnconfirmedHeight {
			continue
		}
		if entry.Height == tip.Height || state.HasTimestamp[entry.Height] {
			continue
		}
		missing[entry.Height] = struct{}{}
	}

	heights := make([]uint32, 0, len(missing))
	for height := range missing {
		heights = append(heights, height)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	if len(heights) > 0 {
		headers, err := svc.GetBlockHeaders(heights)
		if err != nil {
			return err
		}
		for _, header := range headers {
			update.Timestamps = append(update.Timestamps, wallet.TimestampEntry{
				Height: header.Height, Timestamp: header.Timestamp,
			})
		}
	}

	needsTip := false
	for _, entry := range update.NewHeights {
		if entry.Height == tip.Height && !state.HasTimestamp[tip.Height] {
			needsTip = true
			break
		}
	}
	if needsTip {
		update.Timestamps = append(update.Timestamps, wallet.TimestampEntry{
			Height: tip.Height, Timestamp: tip.Timestamp,
		})
	}
	return nil
}
