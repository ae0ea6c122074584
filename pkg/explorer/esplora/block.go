package esplora

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/tdex-network/liquid-wallet/pkg/wallet"
)

type blockInfo struct {
	ID                string `json:"id"`
	Height            uint32 `json:"height"`
	Version           uint32 `json:"version"`
	Timestamp         uint32 `json:"timestamp"`
	PreviousBlockhash string `json:"previousblockhash"`
}

// header converts the display-order hex hashes of the esplora payload into
// the internal byte order the wallet tracks.
func (b blockInfo) header() (*wallet.BlockHeader, error) {
	hash, err := bufferutil.TxIDToBytes(b.ID)
	if err != nil {
		return nil, err
	}
	var prevHash []byte
	if len(b.PreviousBlockhash) > 0 {
		prevHash, err = bufferutil.TxIDToBytes(b.PreviousBlockhash)
		if err != nil {
			return nil, err
		}
	}
	return &wallet.BlockHeader{
		Version:   b.Version,
		Height:    b.Height,
		Timestamp: b.Timestamp,
		Hash:      hash,
		PrevHash:  prevHash,
	}, nil
}

func (s *service) Tip() (*wallet.BlockHeader, error) {
	status, resp, err := s.get(fmt.Sprintf("%s/blocks/tip/hash", s.apiURL))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf(resp)
	}
	return s.blockByHash(resp)
}

func (s *service) GetBlockHeaders(heights []uint32) ([]*wallet.BlockHeader, error) {
	headers := make([]*wallet.BlockHeader, 0, len(heights))
	for _, height := range heights {
		status, resp, err := s.get(
			fmt.Sprintf("%s/block-height/%d", s.apiURL, height),
		)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf(resp)
		}
		header, err := s.blockByHash(resp)
		if err != nil {
			return nil, err
		}
		headers = append(headers, header)
	}
	return headers, nil
}

func (s *service) blockByHash(hash string) (*wallet.BlockHeader, error) {
	status, resp, err := s.get(fmt.Sprintf("%s/block/%s", s.apiURL, hash))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf(resp)
	}
	var block blockInfo
	if err := json.Unmarshal([]byte(resp), &block); err != nil {
		return nil, fmt.Errorf("parsing block %s: %w", hash, err)
	}
	return block.header()
}
