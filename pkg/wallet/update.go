package wallet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/tdex-network/liquid-wallet/pkg/descriptor"
	"github.com/tdex-network/liquid-wallet/pkg/transactionutil"
	"github.com/vulpemventures/go-elements/transaction"
)

// updateMagic prefixes every serialized update.
var updateMagic = [4]byte{0x89, 0x61, 0xb8, 0xc8}

// updateVersion is the version written by Serialize. Versions 0 and 1 are
// still readable: 0 lacks the wallet status, 1 lacks the blinding pubkeys of
// the script section.
const updateVersion = 2

var (
	ErrUpdateBadMagic   = errors.New("update: bad magic bytes")
	ErrUpdateBadVersion = errors.New("update: unsupported version")
)

// TxEntry pairs a display txid with its raw transaction.
type TxEntry struct {
	TxID string
	Tx   *transaction.Transaction
}

// HeightEntry pins a txid to a confirmation height, UnconfirmedHeight for
// mempool transactions.
type HeightEntry struct {
	TxID   string
	Height uint32
}

// TimestampEntry pairs a block height with its header timestamp.
type TimestampEntry struct {
	Height    uint32
	Timestamp uint32
}

// ScriptEntry records a derived script with its derivation coordinates and,
// optionally, the blinding public key of its confidential address.
type ScriptEntry struct {
	Script         []byte
	Chain          descriptor.Chain
	Index          uint32
	BlindingPubkey []byte // 33 bytes or nil
}

// UnblindEntry maps an outpoint to the secrets revealed from it.
type UnblindEntry struct {
	Outpoint Outpoint
	Secrets  transactionutil.TxOutSecrets
}

// Update is the delta produced by a blockchain scan. Applying it to the
// wallet that requested the scan brings the wallet state forward; it contains
// no secrets beyond what the wallet descriptor could reveal anyway, but it is
// encrypted at rest since unblinded amounts defeat confidentiality.
type Update struct {
	// WalletStatus is the wallet status observed when the scan started.
	// Zero means unknown and skips the consistency check on apply.
	WalletStatus uint64
	Txs          []TxEntry
	Unblinds     []UnblindEntry
	NewHeights   []HeightEntry
	DeleteTxids  []string
	Timestamps   []TimestampEntry
	Scripts      []ScriptEntry
	Tip          BlockHeader
}

// OnlyTip reports whether the update moves the chain tip without touching
// wallet transactions or scripts.
func (u *Update) OnlyTip() bool {
	return len(u.Txs) == 0 && len(u.Unblinds) == 0 && len(u.NewHeights) == 0 &&
		len(u.DeleteTxids) == 0 && len(u.Scripts) == 0
}

// Serialize encodes the update in its binary wire format.
func (u *Update) Serialize() ([]byte, error) {
	s := bufferutil.NewSerializer(nil)

	if err := s.WriteSlice(updateMagic[:]); err != nil {
		return nil, err
	}
	if err := s.WriteUint8(updateVersion); err != nil {
		return nil, err
	}
	if err := s.WriteUint64(u.WalletStatus); err != nil {
		return nil, err
	}

	if err := s.WriteVarInt(uint64(len(u.Txs))); err != nil {
		return nil, err
	}
	for _, entry := range u.Txs {
		txid, err := bufferutil.TxIDToBytes(entry.TxID)
		if err != nil {
			return nil, err
		}
		if err := s.WriteSlice(txid); err != nil {
			return nil, err
		}
		rawTx, err := entry.Tx.Serialize()
		if err != nil {
			return nil, err
		}
		if err := s.WriteVarSlice(rawTx); err != nil {
			return nil, err
		}
	}

	if err := s.WriteVarInt(uint64(len(u.Unblinds))); err != nil {
		return nil, err
	}
	for _, entry := range u.Unblinds {
		if err := writeOutpoint(s, entry.Outpoint); err != nil {
			return nil, err
		}
		if err := writeSecrets(s, &entry.Secrets); err != nil {
			return nil, err
		}
	}

	if err := s.WriteVarInt(uint64(len(u.NewHeights))); err != nil {
		return nil, err
	}
	for _, entry := range u.NewHeights {
		txid, err := bufferutil.TxIDToBytes(entry.TxID)
		if err != nil {
			return nil, err
		}
		if err := s.WriteSlice(txid); err != nil {
			return nil, err
		}
		if err := s.WriteUint32(entry.Height); err != nil {
			return nil, err
		}
	}

	if err := s.WriteVarInt(uint64(len(u.DeleteTxids))); err != nil {
		return nil, err
	}
	for _, txidHex := range u.DeleteTxids {
		txid, err := bufferutil.TxIDToBytes(txidHex)
		if err != nil {
			return nil, err
		}
		if err := s.WriteSlice(txid); err != nil {
			return nil, err
		}
	}

	if err := s.WriteVarInt(uint64(len(u.Timestamps))); err != nil {
		return nil, err
	}
	for _, entry := range u.Timestamps {
		if err := s.WriteUint32(entry.Height); err != nil {
			return nil, err
		}
		if err := s.WriteUint32(entry.Timestamp); err != nil {
			return nil, err
		}
	}

	if err := s.WriteVarInt(uint64(len(u.Scripts))); err != nil {
		return nil, err
	}
	for _, entry := range u.Scripts {
		if err := s.WriteVarSlice(entry.Script); err != nil {
			return nil, err
		}
		if err := s.WriteUint8(uint8(entry.Chain)); err != nil {
			return nil, err
		}
		if err := s.WriteUint32(entry.Index); err != nil {
			return nil, err
		}
		blindingPubkey := entry.BlindingPubkey
		if len(blindingPubkey) != 33 {
			blindingPubkey = make([]byte, 33)
		}
		if err := s.WriteSlice(blindingPubkey); err != nil {
			return nil, err
		}
	}

	if err := writeBlockHeader(s, &u.Tip); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

// Deserialize decodes an update from its binary wire format.
func Deserialize(buf []byte) (*Update, error) {
	d := bufferutil.NewDeserializer(buf)

	magic, err := d.ReadSlice(4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, updateMagic[:]) {
		return nil, ErrUpdateBadMagic
	}
	version, err := d.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version > updateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUpdateBadVersion, version)
	}

	u := &Update{}
	if version >= 1 {
		if u.WalletStatus, err = d.ReadUint64(); err != nil {
			return nil, err
		}
	}

	count, err := d.ReadVarInt()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		txid, err := d.ReadSlice(32)
		if err != nil {
			return nil, err
		}
		rawTx, err := d.ReadVarSlice()
		if err != nil {
			return nil, err
		}
		tx, err := transaction.NewTxFromBuffer(bytes.NewBuffer(rawTx))
		if err != nil {
			return nil, err
		}
		u.Txs = append(u.Txs, TxEntry{
			TxID: bufferutil.TxIDFromBytes(txid),
			Tx:   tx,
		})
	}

	if count, err = d.ReadVarInt(); err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		outpoint, err := readOutpoint(d)
		if err != nil {
			return nil, err
		}
		secrets, err := readSecrets(d)
		if err != nil {
			return nil, err
		}
		u.Unblinds = append(u.Unblinds, UnblindEntry{
			Outpoint: outpoint,
			Secrets:  *secrets,
		})
	}

	if count, err = d.ReadVarInt(); err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		txid, err := d.ReadSlice(32)
		if err != nil {
			return nil, err
		}
		height, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		u.NewHeights = append(u.NewHeights, HeightEntry{
			TxID:   bufferutil.TxIDFromBytes(txid),
			Height: height,
		})
	}

	if count, err = d.ReadVarInt(); err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		txid, err := d.ReadSlice(32)
		if err != nil {
			return nil, err
		}
		u.DeleteTxids = append(u.DeleteTxids, bufferutil.TxIDFromBytes(txid))
	}

	if count, err = d.ReadVarInt(); err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		height, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		timestamp, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		u.Timestamps = append(u.Timestamps, TimestampEntry{
			Height:    height,
			Timestamp: timestamp,
		})
	}

	if count, err = d.ReadVarInt(); err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		script, err := d.ReadVarSlice()
		if err != nil {
			return nil, err
		}
		chainByte, err := d.ReadUint8()
		if err != nil {
			return nil, err
		}
		chain, err := descriptor.ChainFromByte(chainByte)
		if err != nil {
			return nil, err
		}
		index, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		entry := ScriptEntry{
			Script: append([]byte{}, script...),
			Chain:  chain,
			Index:  index,
		}
		if version >= 2 {
			blindingPubkey, err := d.ReadSlice(33)
			if err != nil {
				return nil, err
			}
			if !isAllZero(blindingPubkey) {
				entry.BlindingPubkey = append([]byte{}, blindingPubkey...)
			}
		}
		u.Scripts = append(u.Scripts, entry)
	}

	tip, err := readBlockHeader(d)
	if err != nil {
		return nil, err
	}
	u.Tip = *tip
	return u, nil
}

func writeOutpoint(s *bufferutil.Serializer, o Outpoint) error {
	txid, err := bufferutil.TxIDToBytes(o.TxID)
	if err != nil {
		return err
	}
	if err := s.WriteSlice(txid); err != nil {
		return err
	}
	return s.WriteUint32(o.VOut)
}

func readOutpoint(d *bufferutil.Deserializer) (Outpoint, error) {
	txid, err := d.ReadSlice(32)
	if err != nil {
		return Outpoint{}, err
	}
	vout, err := d.ReadUint32()
	if err != nil {
		return Outpoint{}, err
	}
	return Outpoint{TxID: bufferutil.TxIDFromBytes(txid), VOut: vout}, nil
}

func writeSecrets(s *bufferutil.Serializer, secrets *transactionutil.TxOutSecrets) error {
	if err := s.WriteSlice(secrets.Asset); err != nil {
		return err
	}
	if err := s.WriteSlice(secrets.AssetBlinder); err != nil {
		return err
	}
	if err := s.WriteUint64(secrets.Value); err != nil {
		return err
	}
	return s.WriteSlice(secrets.ValueBlinder)
}

func readSecrets(d *bufferutil.Deserializer) (*transactionutil.TxOutSecrets, error) {
	asset, err := d.ReadSlice(32)
	if err != nil {
		return nil, err
	}
	assetBlinder, err := d.ReadSlice(32)
	if err != nil {
		return nil, err
	}
	value, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	valueBlinder, err := d.ReadSlice(32)
	if err != nil {
		return nil, err
	}
	return &transactionutil.TxOutSecrets{
		Asset:        append([]byte{}, asset...),
		AssetBlinder: append([]byte{}, assetBlinder...),
		Value:        value,
		ValueBlinder: append([]byte{}, valueBlinder...),
	}, nil
}

func writeBlockHeader(s *bufferutil.Serializer, h *BlockHeader) error {
	if err := s.WriteUint32(h.Version); err != nil {
		return err
	}
	if err := s.WriteUint32(h.Height); err != nil {
		return err
	}
	if err := s.WriteUint32(h.Timestamp); err != nil {
		return err
	}
	hash := h.Hash
	if len(hash) != 32 {
		hash = make([]byte, 32)
	}
	if err := s.WriteSlice(hash); err != nil {
		return err
	}
	prevHash := h.PrevHash
	if len(prevHash) != 32 {
		prevHash = make([]byte, 32)
	}
	return s.WriteSlice(prevHash)
}

func readBlockHeader(d *bufferutil.Deserializer) (*BlockHeader, error) {
	version, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	height, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	timestamp, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	hash, err := d.ReadSlice(32)
	if err != nil {
		return nil, err
	}
	prevHash, err := d.ReadSlice(32)
	if err != nil {
		return nil, err
	}
	return &BlockHeader{
		Version:   version,
		Height:    height,
		Timestamp: timestamp,
		Hash:      append([]byte{}, hash...),
		PrevHash:  append([]byte{}, prevHash...),
	}, nil
}

func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
