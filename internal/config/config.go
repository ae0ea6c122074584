package config

import (
	"fmt"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
	"github.com/tdex-network/liquid-wallet/pkg/network"
)

const (
	// DatadirKey is the local data directory where the encrypted wallet
	// updates are persisted.
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey selects the Liquid network, one of liquid, liquidtestnet or
	// elementsregtest:<policy asset hex>.
	NetworkKey = "NETWORK"
	// ExplorerTypeKey switches between the supported chain backends,
	// electrum or esplora.
	ExplorerTypeKey = "EXPLORER_TYPE"
	// ElectrumURLKey is the tcp:// or ssl:// endpoint of the electrum server.
	ElectrumURLKey = "ELECTRUM_URL"
	// EsploraURLKey is the base url of the esplora HTTP API.
	EsploraURLKey = "ESPLORA_URL"
	// ScanIntervalKey is the pause between two full scans, in milliseconds.
	ScanIntervalKey = "SCAN_INTERVAL"
	// SkipTLSVerifyKey disables certificate validation on ssl:// electrum
	// endpoints, for self-signed regtest setups.
	SkipTLSVerifyKey = "SKIP_TLS_VERIFY"

	DbLocation = "db"

	ExplorerElectrum = "electrum"
	ExplorerEsplora  = "esplora"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("liquid-wallet", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("LIQUID_WALLET")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, network.Liquid().String())
	vip.SetDefault(ExplorerTypeKey, ExplorerElectrum)
	vip.SetDefault(ElectrumURLKey, "ssl://blockstream.info:995")
	vip.SetDefault(EsploraURLKey, "https://blockstream.info/liquid/api")
	vip.SetDefault(ScanIntervalKey, 5000)
	vip.SetDefault(SkipTLSVerifyKey, false)

	if err := validateNetwork(); err != nil {
		return err
	}
	return validateExplorerType()
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetNetwork returns the configured network.
func GetNetwork() (network.Network, error) {
	return network.FromString(GetString(NetworkKey))
}

// GetDatadir returns the data directory, where the db subdirectory holds the
// persisted wallet updates.
func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetDbDir returns the location of the persisted wallet stores.
func GetDbDir() string {
	return filepath.Join(GetDatadir(), DbLocation)
}

func validateNetwork() error {
	if _, err := GetNetwork(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func validateExplorerType() error {
	switch explorerType := GetString(ExplorerTypeKey); explorerType {
	case ExplorerElectrum, ExplorerEsplora:
		return nil
	default:
		return fmt.Errorf("config: unsupported explorer type %s", explorerType)
	}
}
