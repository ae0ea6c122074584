package wallet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"
)

// Persister stores the chronological list of updates applied to a wallet.
// Replaying All() on an empty cache reproduces the wallet state exactly.
type Persister interface {
	Push(update *Update) error
	All() ([]*Update, error)
	Close() error
}

// NoPersist keeps nothing. Wallets built on it start from scratch on every
// load and rely on a first full scan.
type NoPersist struct{}

func NewNoPersist() Persister { return NoPersist{} }

func (NoPersist) Push(*Update) error      { return nil }
func (NoPersist) All() ([]*Update, error) { return nil, nil }
func (NoPersist) Close() error            { return nil }

// updateRecord is the on-disk shape of a persisted update. The payload is the
// encrypted update wire format, so the database content reveals nothing about
// the wallet without its descriptor.
type updateRecord struct {
	Sequence uint64 `badgerhold:"key"`
	OnlyTip  bool
	Payload  []byte
}

type badgerPersister struct {
	store     *badgerhold.Store
	cipherKey []byte
	// nextSeq is the key of the next record to append; lastOnlyTip tells
	// whether the record before it can be overwritten by a tip-only update.
	nextSeq     uint64
	lastOnlyTip bool
}

// NewBadgerPersister opens (or creates) the update store for a wallet under
// baseDir. Records are encrypted with the given cipher key, normally the
// CipherKey of the wallet descriptor.
func NewBadgerPersister(
	baseDir, walletID string, cipherKey []byte, logger badger.Logger,
) (Persister, error) {
	dbDir := filepath.Join(baseDir, walletID, "updates")
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	store, err := badgerhold.Open(badgerhold.Options{
		Encoder:          jsonEncode,
		Decoder:          jsonDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, fmt.Errorf("opening update db: %w", err)
	}

	p := &badgerPersister{store: store, cipherKey: cipherKey}
	if err := p.loadCursor(); err != nil {
		store.Close()
		return nil, err
	}
	return p, nil
}

func (p *badgerPersister) loadCursor() error {
	records, err := p.allRecords()
	if err != nil {
		return err
	}
	if len(records) > 0 {
		last := records[len(records)-1]
		p.nextSeq = last.Sequence + 1
		p.lastOnlyTip = last.OnlyTip
	}
	return nil
}

func (p *badgerPersister) allRecords() ([]updateRecord, error) {
	var records []updateRecord
	if err := p.store.Find(&records, nil); err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Sequence < records[j].Sequence
	})
	return records, nil
}

func (p *badgerPersister) Push(update *Update) error {
	seq := p.nextSeq
	onlyTip := update.OnlyTip()
	toStore := update
	if onlyTip && p.lastOnlyTip && seq > 0 {
		// Consecutive tip-only updates carry no wallet history, keeping
		// only the latest one bounds the growth of the store. The stored
		// record keeps the wallet status of the one it replaces, since on
		// replay the wallet is at the status the replaced record was
		// created for, and accumulates its timestamps.
		seq--
		previous, err := p.recordAt(seq)
		if err != nil {
			return err
		}
		merged := *update
		merged.WalletStatus = previous.WalletStatus
		merged.Timestamps = mergeTimestamps(
			previous.Timestamps, update.Timestamps,
		)
		toStore = &merged
	}

	payload, err := toStore.SerializeEncrypted(p.cipherKey)
	if err != nil {
		return err
	}

	record := updateRecord{Sequence: seq, OnlyTip: onlyTip, Payload: payload}
	if err := p.store.Upsert(seq, record); err != nil {
		return err
	}
	p.nextSeq = seq + 1
	p.lastOnlyTip = onlyTip
	return nil
}

func (p *badgerPersister) recordAt(seq uint64) (*Update, error) {
	var record updateRecord
	if err := p.store.Get(seq, &record); err != nil {
		return nil, err
	}
	return DeserializeDecrypted(p.cipherKey, record.Payload)
}

func mergeTimestamps(prev, next []TimestampEntry) []TimestampEntry {
	merged := make([]TimestampEntry, 0, len(prev)+len(next))
	seen := make(map[uint32]bool, len(next))
	for _, entry := range next {
		seen[entry.Height] = true
		merged = append(merged, entry)
	}
	for _, entry := range prev {
		if !seen[entry.Height] {
			merged = append(merged, entry)
		}
	}
	return merged
}

func (p *badgerPersister) All() ([]*Update, error) {
	records, err := p.allRecords()
	if err != nil {
		return nil, err
	}

	updates := make([]*Update, 0, len(records))
	for _, record := range records {
		update, err := DeserializeDecrypted(p.cipherKey, record.Payload)
		if err != nil {
			return nil, fmt.Errorf("decoding update %d: %w", record.Sequence, err)
		}
		updates = append(updates, update)
	}
	return updates, nil
}

func (p *badgerPersister) Close() error {
	return p.store.Close()
}

func jsonEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer
	if err := json.NewEncoder(&buff).Encode(value); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

func jsonDecode(data []byte, value interface{}) error {
	return json.NewDecoder(bytes.NewReader(data)).Decode(value)
}
