package mock

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/tdex-network/liquid-wallet/pkg/explorer"
	"github.com/tdex-network/liquid-wallet/pkg/wallet"
	"github.com/vulpemventures/go-elements/transaction"
)

// Service is an in-memory explorer.Service meant for tests. Transactions are
// indexed by the scripts of their outputs and by the scripts of the outputs
// they spend, the way a real index does.
type Service struct {
	mtx        sync.RWMutex
	headers    []*wallet.BlockHeader
	txs        map[string]*transaction.Transaction
	heights    map[string]int32
	history    map[string][]string
	Broadcasts []string
}

func NewService() *Service {
	genesis := &wallet.BlockHeader{
		Version:   2,
		Height:    0,
		Timestamp: 1,
		Hash:      fakeBlockHash(0, nil),
	}
	return &Service{
		headers: []*wallet.BlockHeader{genesis},
		txs:     make(map[string]*transaction.Transaction),
		heights: make(map[string]int32),
		history: make(map[string][]string),
	}
}

// MineBlock appends an empty block and confirms every mempool transaction
// at the new height.
func (s *Service) MineBlock(timestamp uint32) *wallet.BlockHeader {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	prev := s.headers[len(s.headers)-1]
	header := &wallet.BlockHeader{
		Version:   2,
		Height:    prev.Height + 1,
		Timestamp: timestamp,
		Hash:      fakeBlockHash(prev.Height+1, prev.Hash),
		PrevHash:  prev.Hash,
	}
	s.headers = append(s.headers, header)
	for txid, height := range s.heights {
		if height < 0 {
			s.heights[txid] = int32(header.Height)
		}
	}
	return header
}

// Reorg drops the given number of blocks from the tip. Transactions confirmed
// in the dropped blocks go back to the mempool.
func (s *Service) Reorg(depth int) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if depth >= len(s.headers) {
		depth = len(s.headers) - 1
	}
	s.headers = s.headers[:len(s.headers)-depth]
	tip := s.headers[len(s.headers)-1]
	for txid, height := range s.heights {
		if height > int32(tip.Height) {
			s.heights[txid] = -1
		}
	}
}

// AddTx registers an unconfirmed transaction, indexing it by the scripts of
// its outputs and those of any known spent outputs.
func (s *Service) AddTx(tx *transaction.Transaction) string {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	txid := tx.TxHash().String()
	s.txs[txid] = tx
	s.heights[txid] = -1

	scripts := make(map[string]struct{})
	for _, out := range tx.Outputs {
		if len(out.Script) > 0 {
			scripts[explorer.ScriptHash(out.Script)] = struct{}{}
		}
	}
	for _, in := range tx.Inputs {
		prevTxid := hexReverse(in.Hash)
		prev, ok := s.txs[prevTxid]
		if !ok || int(in.Index) >= len(prev.Outputs) {
			continue
		}
		scripts[explorer.ScriptHash(prev.Outputs[in.Index].Script)] = struct{}{}
	}
	for hash := range scripts {
		s.history[hash] = append(s.history[hash], txid)
	}
	return txid
}

// DropTx makes a transaction disappear from both the index and the tx store,
// as if it was evicted from the mempool or replaced.
func (s *Service) DropTx(txid string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	delete(s.txs, txid)
	delete(s.heights, txid)
	for hash, txids := range s.history {
		filtered := txids[:0]
		for _, id := range txids {
			if id != txid {
				filtered = append(filtered, id)
			}
		}
		s.history[hash] = filtered
	}
}

func (s *Service) Tip() (*wallet.BlockHeader, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	tip := *s.headers[len(s.headers)-1]
	return &tip, nil
}

func (s *Service) GetScriptsHistory(
	scripts [][]byte,
) ([][]explorer.HistoryItem, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	history := make([][]explorer.HistoryItem, len(scripts))
	for i, script := range scripts {
		txids := s.history[explorer.ScriptHash(script)]
		items := make([]explorer.HistoryItem, 0, len(txids))
		for _, txid := range txids {
			items = append(items, explorer.HistoryItem{
				TxID:   txid,
				Height: s.heights[txid],
			})
		}
		history[i] = items
	}
	return history, nil
}

func (s *Service) GetTransactions(
	txids []string,
) ([]*transaction.Transaction, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	txs := make([]*transaction.Transaction, len(txids))
	for i, txid := range txids {
		tx, ok := s.txs[txid]
		if !ok {
			return nil, fmt.Errorf("transaction %s not found", txid)
		}
		txs[i] = tx
	}
	return txs, nil
}

func (s *Service) GetBlockHeaders(
	heights []uint32,
) ([]*wallet.BlockHeader, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	headers := make([]*wallet.BlockHeader, len(heights))
	for i, height := range heights {
		if int(height) >= len(s.headers) {
			return nil, fmt.Errorf("block at height %d not found", height)
		}
		header := *s.headers[height]
		headers[i] = &header
	}
	return headers, nil
}

func (s *Service) Broadcast(txHex string) (string, error) {
	tx, err := transaction.NewTxFromHex(txHex)
	if err != nil {
		return "", err
	}
	txid := s.AddTx(tx)

	s.mtx.Lock()
	s.Broadcasts = append(s.Broadcasts, txid)
	s.mtx.Unlock()
	return txid, nil
}

func (s *Service) Close() error { return nil }

func fakeBlockHash(height uint32, prevHash []byte) []byte {
	buf := make([]byte, 4, 4+len(prevHash))
	binary.LittleEndian.PutUint32(buf, height)
	buf = append(buf, prevHash...)
	hash := sha256.Sum256(buf)
	return hash[:]
}

func hexReverse(buf []byte) string {
	rev := make([]byte, len(buf))
	for i, b := range buf {
		rev[len(buf)-1-i] = b
	}
	return hex.EncodeToString(rev)
}
