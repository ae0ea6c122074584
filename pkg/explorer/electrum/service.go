package electrum

import (
	"bufio"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/tdex-network/liquid-wallet/pkg/explorer"
	"github.com/tdex-network/liquid-wallet/pkg/wallet"
	"github.com/vulpemventures/go-elements/transaction"
)

const defaultTimeout = 30 * time.Second

var (
	ErrRequestFailed = errors.New("electrum request failed")
)

type service struct {
	url  *serverURL
	opts ServiceOpts

	mtx    sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID uint64
}

// ServiceOpts is the struct given to the NewService method.
type ServiceOpts struct {
	// URL of the electrum server, tcp://host:port or ssl://host:port.
	URL string
	// SkipCertVerify disables TLS certificate validation for ssl endpoints.
	SkipCertVerify bool
	// Timeout applies to dialing and to every request. Defaults to 30s.
	Timeout time.Duration
}

func (o ServiceOpts) validate() error {
	_, err := parseURL(o.URL)
	return err
}

// NewService dials the electrum server and returns it as an
// explorer.Service. The connection is kept open until Close.
func NewService(opts ServiceOpts) (explorer.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	url, _ := parseURL(opts.URL)
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}

	s := &service{url: url, opts: opts}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *service) connect() error {
	dialer := &net.Dialer{Timeout: s.opts.Timeout}
	var conn net.Conn
	var err error
	if s.url.tls {
		conn, err = tls.DialWithDialer(dialer, "tcp", s.url.addr(), &tls.Config{
			ServerName:         s.url.host,
			InsecureSkipVerify: s.opts.SkipCertVerify,
		})
	} else {
		conn, err = dialer.Dial("tcp", s.url.addr())
	}
	if err != nil {
		return fmt.Errorf("connecting to electrum server: %w", err)
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	return nil
}

type request struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type response struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// batchCall sends the requests as a JSON-RPC batch and returns the raw
// results indexed by request position. Subscription notifications pushed by
// the server in between are discarded.
func (s *service) batchCall(requests []request) ([]json.RawMessage, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	idToPos := make(map[uint64]int, len(requests))
	for i := range requests {
		s.nextID++
		requests[i].ID = s.nextID
		idToPos[s.nextID] = i
	}

	payload, err := json.Marshal(requests)
	if err != nil {
		return nil, err
	}
	payload = append(payload, '\n')

	deadline := time.Now().Add(s.opts.Timeout)
	if err := s.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := s.conn.Write(payload); err != nil {
		return nil, err
	}

	results := make([]json.RawMessage, len(requests))
	pending := len(requests)
	for pending > 0 {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			return nil, err
		}

		var batch []response
		if err := json.Unmarshal(line, &batch); err != nil {
			var single response
			if err := json.Unmarshal(line, &single); err != nil {
				return nil, fmt.Errorf("malformed electrum response: %w", err)
			}
			batch = []response{single}
		}

		for _, resp := range batch {
			if resp.ID == nil {
				// Unsolicited notification, eg. a headers subscription.
				log.WithField("method", resp.Method).
					Trace("skipping electrum notification")
				continue
			}
			pos, ok := idToPos[*resp.ID]
			if !ok {
				continue
			}
			if len(resp.Error) > 0 && string(resp.Error) != "null" {
				return nil, fmt.Errorf(
					"%w: %s", ErrRequestFailed, string(resp.Error),
				)
			}
			results[pos] = resp.Result
			pending--
		}
	}
	return results, nil
}

func (s *service) call(method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	results, err := s.batchCall([]request{{Method: method, Params: params}})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (s *service) Tip() (*wallet.BlockHeader, error) {
	result, err := s.call("blockchain.headers.subscribe")
	if err != nil {
		return nil, err
	}
	var tip struct {
		Height uint32 `json:"height"`
		Hex    string `json:"hex"`
	}
	if err := json.Unmarshal(result, &tip); err != nil {
		return nil, err
	}
	rawHeader, err := hex.DecodeString(tip.Hex)
	if err != nil {
		return nil, err
	}
	return parseRawHeader(rawHeader, tip.Height)
}

func (s *service) GetScriptsHistory(scripts [][]byte) ([][]explorer.HistoryItem, error) {
	if len(scripts) == 0 {
		return nil, nil
	}
	requests := make([]request, 0, len(scripts))
	for _, script := range scripts {
		requests = append(requests, request{
			Method: "blockchain.scripthash.get_history",
			Params: []interface{}{explorer.ScriptHash(script)},
		})
	}
	results, err := s.batchCall(requests)
	if err != nil {
		return nil, err
	}

	histories := make([][]explorer.HistoryItem, len(scripts))
	for i, result := range results {
		var entries []struct {
			TxHash string `json:"tx_hash"`
			Height int32  `json:"height"`
		}
		if err := json.Unmarshal(result, &entries); err != nil {
			return nil, err
		}
		history := make([]explorer.HistoryItem, 0, len(entries))
		for _, entry := range entries {
			history = append(history, explorer.HistoryItem{
				TxID:   entry.TxHash,
				Height: entry.Height,
			})
		}
		histories[i] = history
	}
	return histories, nil
}

func (s *service) GetTransactions(txids []string) ([]*transaction.Transaction, error) {
	if len(txids) == 0 {
		return nil, nil
	}
	requests := make([]request, 0, len(txids))
	for _, txid := range txids {
		requests = append(requests, request{
			Method: "blockchain.transaction.get",
			Params: []interface{}{txid},
		})
	}
	results, err := s.batchCall(requests)
	if err != nil {
		return nil, err
	}

	txs := make([]*transaction.Transaction, len(txids))
	for i, result := range results {
		var txHex string
		if err := json.Unmarshal(result, &txHex); err != nil {
			return nil, err
		}
		tx, err := transaction.NewTxFromHex(txHex)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return txs, nil
}

func (s *service) GetBlockHeaders(heights []uint32) ([]*wallet.BlockHeader, error) {
	if len(heights) == 0 {
		return nil, nil
	}
	requests := make([]request, 0, len(heights))
	for _, height := range heights {
		requests = append(requests, request{
			Method: "blockchain.block.header",
			Params: []interface{}{height},
		})
	}
	results, err := s.batchCall(requests)
	if err != nil {
		return nil, err
	}

	headers := make([]*wallet.BlockHeader, len(heights))
	for i, result := range results {
		var headerHex string
		if err := json.Unmarshal(result, &headerHex); err != nil {
			return nil, err
		}
		rawHeader, err := hex.DecodeString(headerHex)
		if err != nil {
			return nil, err
		}
		header, err := parseRawHeader(rawHeader, heights[i])
		if err != nil {
			return nil, err
		}
		headers[i] = header
	}
	return headers, nil
}

func (s *service) Broadcast(txHex string) (string, error) {
	result, err := s.call("blockchain.transaction.broadcast", txHex)
	if err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(result, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

func (s *service) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.conn.Close()
}

// parseRawHeader extracts the fixed prefix of an Elements block header:
// version, previous block hash, merkle root, timestamp and height. Whatever
// follows (legacy proof or dynafed extensions) only takes part in the hash.
func parseRawHeader(rawHeader []byte, height uint32) (*wallet.BlockHeader, error) {
	d := bufferutil.NewDeserializer(rawHeader)
	version, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	prevHash, err := d.ReadSlice(32)
	if err != nil {
		return nil, err
	}
	if _, err := d.ReadSlice(32); err != nil { // merkle root
		return nil, err
	}
	timestamp, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	headerHeight, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if headerHeight != 0 {
		height = headerHeight
	}

	first := sha256.Sum256(rawHeader)
	hash := sha256.Sum256(first[:])
	return &wallet.BlockHeader{
		Version:   version,
		Height:    height,
		Timestamp: timestamp,
		Hash:      hash[:],
		PrevHash:  append([]byte{}, prevHash...),
	}, nil
}
