package explorer

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/tdex-network/liquid-wallet/pkg/wallet"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/transaction"
)

// HistoryItem is one entry of the history of a script pubkey.
type HistoryItem struct {
	TxID string
	// Height is positive for confirmed transactions. Zero and negative
	// values both mean the transaction sits in the mempool.
	Height int32
}

// Service is the interface to query the Liquid blockchain for the portions
// of history a wallet cares about. Implementations must be safe for
// concurrent use.
type Service interface {
	// Tip returns the header of the best known block.
	Tip() (*wallet.BlockHeader, error)
	// ScriptsHistory returns one history slice per requested script, in
	// the same order of the request.
	GetScriptsHistory(scripts [][]byte) ([][]HistoryItem, error)
	// Transactions fetches the raw transactions with the given ids, in the
	// same order of the request.
	GetTransactions(txids []string) ([]*transaction.Transaction, error)
	// BlockHeaders fetches the headers at the given heights, in the same
	// order of the request.
	GetBlockHeaders(heights []uint32) ([]*wallet.BlockHeader, error)
	// Broadcast publishes a raw transaction in hex format and returns its
	// txid.
	Broadcast(txHex string) (string, error)
	Close() error
}

// ScriptHash returns the electrum-style script hash of a script pubkey,
// ie. the hex of the reversed sha256 of the script.
func ScriptHash(script []byte) string {
	sum := sha256.Sum256(script)
	return hex.EncodeToString(elementsutil.ReverseBytes(sum[:]))
}
