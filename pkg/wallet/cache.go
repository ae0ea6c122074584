package wallet

import (
	"encoding/binary"
	"encoding/hex"
	"hash/fnv"
	"sort"

	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/tdex-network/liquid-wallet/pkg/descriptor"
	"github.com/tdex-network/liquid-wallet/pkg/transactionutil"
	"github.com/vulpemventures/go-elements/transaction"
)

type scriptInfo struct {
	chain descriptor.Chain
	index uint32
}

// cache is the in-memory wallet state. It is rebuilt from persisted updates
// on load and mutated only by applyUpdate, under the wallet write lock.
type cache struct {
	// scripts maps hex script pubkeys to their derivation coordinates.
	scripts map[string]scriptInfo
	// byPath maps chain/index back to the script pubkey.
	byPath [2]map[uint32][]byte
	// blindingPubkeys caches the blinding public key of each script.
	blindingPubkeys map[string][]byte
	// txs holds every transaction with at least one wallet leg.
	txs map[string]*transaction.Transaction
	// unblinded holds the revealed secrets per wallet outpoint.
	unblinded map[Outpoint]transactionutil.TxOutSecrets
	// heights pins txids to confirmation heights.
	heights map[string]uint32
	// timestamps maps block heights to header times.
	timestamps map[uint32]uint32
	lastUnused [2]uint32
	tip        BlockHeader
	scanned    bool
}

func newCache() *cache {
	return &cache{
		scripts:         map[string]scriptInfo{},
		byPath:          [2]map[uint32][]byte{{}, {}},
		blindingPubkeys: map[string][]byte{},
		txs:             map[string]*transaction.Transaction{},
		unblinded:       map[Outpoint]transactionutil.TxOutSecrets{},
		heights:         map[string]uint32{},
		timestamps:      map[uint32]uint32{},
	}
}

// status hashes the whole cache content deterministically. It is not a
// cryptographic hash: it only needs to tell two wallet states apart.
func (c *cache) status() uint64 {
	if !c.scanned {
		return 0
	}

	h := fnv.New64a()
	writeUint32 := func(v uint32) {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		h.Write(buf[:])
	}
	writeUint64 := func(v uint64) {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	writeUint32(c.tip.Height)
	h.Write(c.tip.Hash)
	writeUint32(c.lastUnused[descriptor.External])
	writeUint32(c.lastUnused[descriptor.Internal])

	txids := make([]string, 0, len(c.heights))
	for txid := range c.heights {
		txids = append(txids, txid)
	}
	sort.Strings(txids)
	for _, txid := range txids {
		h.Write([]byte(txid))
		writeUint32(c.heights[txid])
	}

	scripts := make([]string, 0, len(c.scripts))
	for script := range c.scripts {
		scripts = append(scripts, script)
	}
	sort.Strings(scripts)
	for _, script := range scripts {
		h.Write([]byte(script))
	}

	outpoints := make([]string, 0, len(c.unblinded))
	byKey := make(map[string]transactionutil.TxOutSecrets, len(c.unblinded))
	for outpoint, secrets := range c.unblinded {
		key := outpoint.String()
		outpoints = append(outpoints, key)
		byKey[key] = secrets
	}
	sort.Strings(outpoints)
	for _, key := range outpoints {
		h.Write([]byte(key))
		secrets := byKey[key]
		h.Write(secrets.Asset)
		writeUint64(secrets.Value)
	}

	heights := make([]uint32, 0, len(c.timestamps))
	for height := range c.timestamps {
		heights = append(heights, height)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	for _, height := range heights {
		writeUint32(height)
		writeUint32(c.timestamps[height])
	}

	status := h.Sum64()
	if status == 0 {
		// Zero is reserved for the never-scanned state.
		status = 1
	}
	return status
}

// applyUpdate merges an update into the cache. Inserts never remove data
// already known to be good: heights are the only section with deletions, and
// those are driven by the explicit delete list computed by the scan.
func (c *cache) applyUpdate(u *Update) error {
	if u.WalletStatus != 0 && u.WalletStatus != c.status() {
		return ErrUpdateOnDifferentStatus
	}
	if u.Tip.Height+1 < c.tip.Height {
		// A single block of reorg is tolerated, since short reorgs are
		// frequent on Liquid and invalidate nothing the wallet relies on.
		return ErrUpdateHeightTooOld
	}

	for _, entry := range u.Scripts {
		key := hex.EncodeToString(entry.Script)
		if _, ok := c.scripts[key]; !ok {
			c.scripts[key] = scriptInfo{chain: entry.Chain, index: entry.Index}
			c.byPath[entry.Chain][entry.Index] = entry.Script
		}
		if len(entry.BlindingPubkey) == 33 {
			c.blindingPubkeys[key] = entry.BlindingPubkey
		}
	}

	newTxids := make([]string, 0, len(u.Txs))
	for _, entry := range u.Txs {
		if _, ok := c.txs[entry.TxID]; !ok {
			c.txs[entry.TxID] = entry.Tx
			newTxids = append(newTxids, entry.TxID)
		}
	}

	for _, entry := range u.Unblinds {
		c.unblinded[entry.Outpoint] = entry.Secrets
	}

	for _, txid := range u.DeleteTxids {
		delete(c.heights, txid)
	}
	for _, entry := range u.NewHeights {
		c.heights[entry.TxID] = entry.Height
	}

	for _, entry := range u.Timestamps {
		c.timestamps[entry.Height] = entry.Timestamp
	}

	c.raiseLastUnused(newTxids)
	c.tip = u.Tip
	c.scanned = true
	return nil
}

// raiseLastUnused bumps the first-unused index of each chain past every
// wallet output found in the newly inserted transactions. The index never
// goes backwards, so addresses handed out are not handed out again after a
// partial rescan.
func (c *cache) raiseLastUnused(newTxids []string) {
	for _, txid := range newTxids {
		tx := c.txs[txid]
		for vout, out := range tx.Outputs {
			if _, ok := c.unblinded[Outpoint{TxID: txid, VOut: uint32(vout)}]; !ok {
				continue
			}
			info, ok := c.scripts[hex.EncodeToString(out.Script)]
			if !ok {
				continue
			}
			if used := info.index + 1; used > c.lastUnused[info.chain] {
				c.lastUnused[info.chain] = used
			}
		}
	}
}

// spent returns every outpoint consumed by a cached transaction.
func (c *cache) spent() map[Outpoint]struct{} {
	spent := make(map[Outpoint]struct{})
	for _, tx := range c.txs {
		for _, in := range tx.Inputs {
			spent[Outpoint{
				TxID: bufferutil.TxIDFromBytes(in.Hash),
				VOut: in.Index,
			}] = struct{}{}
		}
	}
	return spent
}
