package esplora_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/tdex-network/liquid-wallet/pkg/explorer"
	"github.com/tdex-network/liquid-wallet/pkg/explorer/esplora"
	"github.com/tdex-network/liquid-wallet/pkg/network"
	"github.com/vulpemventures/go-elements/transaction"
)

const (
	tipHash   = "0e4b8b4fc032e90cbdeea9446adcd2e41b4f0c4fbcdf317f6d86bbd7f0a27b10"
	blockHash = "2c624c0d24a839b0b0966c5a4d4a14bbe0b4c3f4e739c2a4bd32cc4a27b52d63"
)

func testTx(t *testing.T) (*transaction.Transaction, string) {
	t.Helper()

	prevHash, err := bufferutil.TxIDToBytes(strings.Repeat("aa", 32))
	require.NoError(t, err)
	assetBytes, err := bufferutil.AssetHashToBytes(network.Liquid().PolicyAsset())
	require.NoError(t, err)
	valueBytes, err := bufferutil.ValueToBytes(100000)
	require.NoError(t, err)

	tx := transaction.NewTx(2)
	tx.Inputs = append(tx.Inputs, transaction.NewTxInput(prevHash, 0))
	tx.Outputs = append(tx.Outputs, transaction.NewTxOutput(
		assetBytes, valueBytes,
		append([]byte{0x00, 0x14}, make([]byte, 20)...),
	))
	txHex, err := tx.ToHex()
	require.NoError(t, err)
	return tx, txHex
}

func fakeEsplora(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	tx, txHex := testTx(t)
	txid := tx.TxHash().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "102")
	})
	mux.HandleFunc("/blocks/tip/hash", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tipHash)
	})
	mux.HandleFunc("/block/"+tipHash, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":                tipHash,
			"height":            102,
			"version":           0x20000000,
			"timestamp":         1700000000,
			"previousblockhash": blockHash,
		})
	})
	mux.HandleFunc("/block-height/101", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, blockHash)
	})
	mux.HandleFunc("/block/"+blockHash, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":        blockHash,
			"height":    101,
			"version":   0x20000000,
			"timestamp": 1699999000,
		})
	})
	mux.HandleFunc("/tx/"+txid+"/hex", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, txHex)
	})
	mux.HandleFunc("/tx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, txid)
	})
	mux.HandleFunc("/scripthash/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"txid": txid,
				"status": map[string]interface{}{
					"confirmed":    true,
					"block_height": 101,
				},
			},
			{
				"txid":   strings.Repeat("bb", 32),
				"status": map[string]interface{}{"confirmed": false},
			},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, txid
}

func TestNewService(t *testing.T) {
	_, err := esplora.NewService(esplora.ServiceOpts{})
	require.EqualError(t, err, esplora.ErrNullAPIURL.Error())

	server, _ := fakeEsplora(t)
	svc, err := esplora.NewService(esplora.ServiceOpts{
		APIURL:            server.URL,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Close())
}

func TestService(t *testing.T) {
	server, txid := fakeEsplora(t)
	svc, err := esplora.NewService(esplora.ServiceOpts{
		APIURL:            server.URL,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	defer svc.Close()

	tip, err := svc.Tip()
	require.NoError(t, err)
	require.Equal(t, uint32(102), tip.Height)
	require.Equal(t, uint32(1700000000), tip.Timestamp)
	wantHash, err := bufferutil.TxIDToBytes(tipHash)
	require.NoError(t, err)
	require.Equal(t, wantHash, tip.Hash)
	wantPrev, err := bufferutil.TxIDToBytes(blockHash)
	require.NoError(t, err)
	require.Equal(t, wantPrev, tip.PrevHash)

	headers, err := svc.GetBlockHeaders([]uint32{101})
	require.NoError(t, err)
	require.Len(t, headers, 1)
	require.Equal(t, uint32(101), headers[0].Height)
	require.Equal(t, uint32(1699999000), headers[0].Timestamp)

	histories, err := svc.GetScriptsHistory([][]byte{
		append([]byte{0x00, 0x14}, make([]byte, 20)...),
	})
	require.NoError(t, err)
	require.Len(t, histories, 1)
	require.Len(t, histories[0], 2)
	require.Equal(t, explorer.HistoryItem{TxID: txid, Height: 101}, histories[0][0])
	require.Equal(t, int32(-1), histories[0][1].Height)

	txs, err := svc.GetTransactions([]string{txid})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, txid, txs[0].TxHash().String())

	got, err := svc.Broadcast("0200aabb")
	require.NoError(t, err)
	require.Equal(t, txid, got)
}

func TestServiceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	))
	t.Cleanup(server.Close)

	_, err := esplora.NewService(esplora.ServiceOpts{APIURL: server.URL})
	require.Error(t, err)
}
