package esplora

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tdex-network/liquid-wallet/pkg/explorer"
	"github.com/vulpemventures/go-elements/transaction"
	"golang.org/x/sync/errgroup"
)

// esplora pages confirmed history 25 entries at a time.
const historyPageSize = 25

type txInfo struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight uint32 `json:"block_height"`
	} `json:"status"`
}

func (t txInfo) historyItem() explorer.HistoryItem {
	height := int32(-1)
	if t.Status.Confirmed {
		height = int32(t.Status.BlockHeight)
	}
	return explorer.HistoryItem{TxID: t.TxID, Height: height}
}

func (s *service) GetScriptsHistory(
	scripts [][]byte,
) ([][]explorer.HistoryItem, error) {
	history := make([][]explorer.HistoryItem, len(scripts))
	for i, script := range scripts {
		items, err := s.scriptHistory(explorer.ScriptHash(script))
		if err != nil {
			return nil, err
		}
		history[i] = items
	}
	return history, nil
}

func (s *service) scriptHistory(
	scriptHash string,
) ([]explorer.HistoryItem, error) {
	items := make([]explorer.HistoryItem, 0)
	url := fmt.Sprintf("%s/scripthash/%s/txs", s.apiURL, scriptHash)
	for {
		status, resp, err := s.get(url)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf(resp)
		}
		var page []txInfo
		if err := json.Unmarshal([]byte(resp), &page); err != nil {
			return nil, fmt.Errorf("parsing history: %w", err)
		}

		numConfirmed := 0
		for _, tx := range page {
			if tx.Status.Confirmed {
				numConfirmed++
			}
			items = append(items, tx.historyItem())
		}
		if numConfirmed < historyPageSize {
			break
		}
		url = fmt.Sprintf(
			"%s/scripthash/%s/txs/chain/%s",
			s.apiURL, scriptHash, page[len(page)-1].TxID,
		)
	}
	return items, nil
}

func (s *service) GetTransactions(
	txids []string,
) ([]*transaction.Transaction, error) {
	txs := make([]*transaction.Transaction, len(txids))
	g := errgroup.Group{}
	g.SetLimit(8)
	for i, txid := range txids {
		i, txid := i, txid
		g.Go(func() error {
			status, resp, err := s.get(
				fmt.Sprintf("%s/tx/%s/hex", s.apiURL, txid),
			)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf(resp)
			}
			tx, err := transaction.NewTxFromHex(resp)
			if err != nil {
				return fmt.Errorf("parsing tx %s: %w", txid, err)
			}
			txs[i] = tx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return txs, nil
}
