package txbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/liquid-wallet/pkg/contract"
	"github.com/tdex-network/liquid-wallet/pkg/network"
	"github.com/tdex-network/liquid-wallet/pkg/wallet"
)

const (
	testXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
	testKey  = "516d2a406f4592dcbedfc56d8cd7070a160fbd7ac75cf7837ac33ae56e9ab35c"

	usdtAsset = "ce091c998b83c78bb71a632313ba3760f1763d9cfcffae02258ffa9865a37bd2"
)

func newEmptyWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewWallet(wallet.NewWalletOpts{
		Descriptor: "ct(slip77(" + testKey + "),elwpkh(" + testXpub + "/<0;1>/*))",
		Network:    network.Liquid(),
	})
	require.NoError(t, err)
	return w
}

func walletAddress(t *testing.T, w *wallet.Wallet) string {
	t.Helper()
	res, err := w.Address(nil)
	require.NoError(t, err)
	return res.Address
}

func testnetAddress(t *testing.T, w *wallet.Wallet) string {
	t.Helper()
	addr, err := w.Descriptor().Address(0, 0, network.LiquidTestnet().Params())
	require.NoError(t, err)
	return addr
}

func TestBuilderValidation(t *testing.T) {
	w := newEmptyWallet(t)
	defer w.Close()
	addr := walletAddress(t, w)
	lbtc := w.PolicyAsset()

	tests := []struct {
		name  string
		build func() *Builder
		err   error
	}{
		{
			"no recipients",
			func() *Builder { return New(network.Liquid()) },
			ErrNoRecipients,
		},
		{
			"invalid address",
			func() *Builder {
				return New(network.Liquid()).AddRecipient("notanaddress", 1000, lbtc)
			},
			ErrInvalidAddress,
		},
		{
			"wrong network",
			func() *Builder {
				return New(network.Liquid()).
					AddRecipient(testnetAddress(t, w), 1000, lbtc)
			},
			ErrWrongNetwork,
		},
		{
			"invalid asset",
			func() *Builder {
				return New(network.Liquid()).AddRecipient(addr, 1000, "beef")
			},
			ErrInvalidAsset,
		},
		{
			"zero amount",
			func() *Builder {
				return New(network.Liquid()).AddRecipient(addr, 0, lbtc)
			},
			ErrZeroAmount,
		},
		{
			"dust amount",
			func() *Builder {
				return New(network.Liquid()).AddLbtcRecipient(addr, 100)
			},
			ErrDustAmount,
		},
		{
			"unparsable recipient",
			func() *Builder {
				return New(network.Liquid()).AddUnvalidated("garbage")
			},
			ErrInvalidRecipient,
		},
		{
			"unparsable amount",
			func() *Builder {
				return New(network.Liquid()).
					AddUnvalidated(addr + ":notanumber:" + lbtc)
			},
			ErrInvalidRecipient,
		},
		{
			"double issuance",
			func() *Builder {
				return New(network.Liquid()).
					Issue(1000, addr, 1, addr, nil).
					Issue(1000, addr, 1, addr, nil)
			},
			ErrDoubleIssuance,
		},
		{
			"issuance with zero amount",
			func() *Builder {
				return New(network.Liquid()).Issue(0, addr, 0, "", nil)
			},
			ErrZeroAmount,
		},
		{
			"issuance with invalid contract",
			func() *Builder {
				return New(network.Liquid()).
					Issue(1000, addr, 0, "", &contract.Contract{})
			},
			contract.ErrInvalidDomain,
		},
		{
			"reissuance of invalid asset",
			func() *Builder {
				return New(network.Liquid()).Reissue("beef", 1000, addr, "")
			},
			ErrInvalidAsset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Finish(w)
			require.EqualError(t, err, tt.err.Error())
		})
	}

	t.Run("nil wallet", func(t *testing.T) {
		_, err := New(network.Liquid()).AddLbtcRecipient(addr, 1000).Finish(nil)
		require.EqualError(t, err, ErrNullWallet.Error())
	})
}

func TestFinishInsufficientFunds(t *testing.T) {
	w := newEmptyWallet(t)
	defer w.Close()
	addr := walletAddress(t, w)

	_, err := New(network.Liquid()).
		AddLbtcRecipient(addr, 1000).
		Finish(w)
	require.EqualError(t, err, ErrInsufficientFunds{Asset: w.PolicyAsset()}.Error())

	_, err = New(network.Liquid()).
		AddRecipient(addr, 1000, usdtAsset).
		Finish(w)
	require.EqualError(t, err, ErrInsufficientFunds{Asset: usdtAsset}.Error())
}

func TestFinishManualCoinNotFound(t *testing.T) {
	w := newEmptyWallet(t)
	defer w.Close()

	_, err := New(network.Liquid()).
		AddLbtcRecipient(walletAddress(t, w), 1000).
		ManualCoins([]wallet.Outpoint{{TxID: strings.Repeat("00", 32), VOut: 0}}).
		Finish(w)
	require.EqualError(t, err, ErrManualCoinNotFound.Error())
}

func TestFinishReissuanceNotFound(t *testing.T) {
	w := newEmptyWallet(t)
	defer w.Close()

	// The wallet never witnessed the issuance and no raw transaction is
	// provided: the entropy cannot be recovered.
	_, err := New(network.Liquid()).
		Reissue(usdtAsset, 1000, walletAddress(t, w), "").
		Finish(w)
	require.EqualError(t, err, ErrIssuanceNotFound.Error())
}

func TestEstimateVsize(t *testing.T) {
	base := estimateVsize(1, 2, 0, false)
	require.Greater(t, base, 0)

	// More inputs, more confidential outputs and an issuance all grow the
	// estimate.
	require.Greater(t, estimateVsize(2, 2, 0, false), base)
	require.Greater(t, estimateVsize(1, 3, 0, false), base)
	require.Greater(t, estimateVsize(1, 2, 1, false), base)
	require.Greater(t, estimateVsize(1, 2, 0, true), base)

	// Confidential outputs dominate the weight, their rangeproof alone is
	// thousands of weight units.
	require.Greater(t, estimateVsize(1, 3, 0, false)-base, 1000)
}

func TestEstimateFee(t *testing.T) {
	require.Equal(t, uint64(100), estimateFee(1000, 100))
	require.Equal(t, uint64(1), estimateFee(1, 100))
	require.Equal(t, uint64(100), estimateFee(999, 100))
	require.Equal(t, uint64(25), estimateFee(250, 100))
	require.Equal(t, uint64(50), estimateFee(250, 200))
}
