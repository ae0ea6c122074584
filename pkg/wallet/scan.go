package wallet

// ScanState is a read-only snapshot of everything a chain scanner needs to
// compute the next update without holding the wallet lock.
type ScanState struct {
	Status       uint64
	Scanned      bool
	Tip          BlockHeader
	LastUnused   [2]uint32
	TxHeights    map[string]uint32
	HasTimestamp map[uint32]bool
	KnownScripts map[string]bool
}

func (w *Wallet) ScanState() ScanState {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	state := ScanState{
		Status:       w.cache.status(),
		Scanned:      w.cache.scanned,
		Tip:          w.cache.tip,
		LastUnused:   w.cache.lastUnused,
		TxHeights:    make(map[string]uint32, len(w.cache.heights)),
		HasTimestamp: make(map[uint32]bool, len(w.cache.timestamps)),
		KnownScripts: make(map[string]bool, len(w.cache.scripts)),
	}
	for txid, height := range w.cache.heights {
		state.TxHeights[txid] = height
	}
	for height := range w.cache.timestamps {
		state.HasTimestamp[height] = true
	}
	for script := range w.cache.scripts {
		state.KnownScripts[script] = true
	}
	return state
}
