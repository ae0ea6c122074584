package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"regexp"

	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/transaction"
)

var (
	ErrInvalidDomain       = errors.New("contract: invalid entity domain")
	ErrInvalidIssuerPubkey = errors.New("contract: issuer pubkey must be a 33 bytes hex")
	ErrInvalidName         = errors.New("contract: name must be 1 to 255 ascii chars")
	ErrInvalidPrecision    = errors.New("contract: precision must be at most 8")
	ErrInvalidTicker       = errors.New("contract: invalid ticker")
	ErrInvalidVersion      = errors.New("contract: version must be 0")
)

var (
	domainRegexp = regexp.MustCompile(`^[a-z0-9]+(?:[\-\.][a-z0-9]+)*$`)
	tickerRegexp = regexp.MustCompile(`^[a-zA-Z0-9\.\-]{3,24}$`)
)

type Entity struct {
	Domain string `json:"domain"`
}

// Contract is the asset registry contract committed to by an issuance. The
// fields are declared in lexicographic order so that the canonical JSON the
// hash commits to falls out of a plain Marshal.
type Contract struct {
	Entity       Entity `json:"entity"`
	IssuerPubkey string `json:"issuer_pubkey"`
	Name         string `json:"name"`
	Precision    uint8  `json:"precision"`
	Ticker       string `json:"ticker"`
	Version      uint8  `json:"version"`
}

func (c *Contract) Validate() error {
	if !domainRegexp.MatchString(c.Entity.Domain) {
		return ErrInvalidDomain
	}
	pubkey, err := hex.DecodeString(c.IssuerPubkey)
	if err != nil || len(pubkey) != 33 {
		return ErrInvalidIssuerPubkey
	}
	if len(c.Name) < 1 || len(c.Name) > 255 || !isASCII(c.Name) {
		return ErrInvalidName
	}
	if c.Precision > 8 {
		return ErrInvalidPrecision
	}
	if !tickerRegexp.MatchString(c.Ticker) {
		return ErrInvalidTicker
	}
	if c.Version != 0 {
		return ErrInvalidVersion
	}
	return nil
}

// Hash returns the single SHA-256 of the canonical contract JSON, the
// commitment carried by the issuance input.
func (c *Contract) Hash() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	canonical, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(canonical)
	return hash[:], nil
}

// AssetIDs returns the display hex of the asset and reissuance token ids of
// an issuance committing to this contract and spending the given prevout.
func (c *Contract) AssetIDs(
	prevoutTxid string, prevoutIndex uint32,
) (string, string, error) {
	contractHash, err := c.Hash()
	if err != nil {
		return "", "", err
	}
	inTxHash, err := bufferutil.TxIDToBytes(prevoutTxid)
	if err != nil {
		return "", "", err
	}

	issuance := transaction.NewTxIssuanceFromContractHash(contractHash)
	if err := issuance.GenerateEntropy(inTxHash, prevoutIndex); err != nil {
		return "", "", err
	}
	asset, err := issuance.GenerateAsset()
	if err != nil {
		return "", "", err
	}
	token, err := issuance.GenerateReissuanceToken(0)
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(elementsutil.ReverseBytes(asset)),
		hex.EncodeToString(elementsutil.ReverseBytes(token)), nil
}

func isASCII(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}
