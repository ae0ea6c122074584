package txbuilder

import (
	"errors"
	"fmt"
)

var (
	ErrNullWallet         = errors.New("wallet must not be null")
	ErrNoRecipients       = errors.New("transaction has no recipients")
	ErrInvalidAddress     = errors.New("invalid recipient address")
	ErrWrongNetwork       = errors.New("recipient address is on another network")
	ErrInvalidAsset       = errors.New("asset must be a 32 bytes hex")
	ErrZeroAmount         = errors.New("amount must not be zero")
	ErrDustAmount         = errors.New("amount is below the dust threshold")
	ErrInvalidRecipient   = errors.New("recipient must be in address:sats:asset or burn:sats:asset format")
	ErrDoubleIssuance     = errors.New("transaction already has an issuance")
	ErrIssuanceNotFound   = errors.New("issuance transaction not found for asset")
	ErrTokenNotFound      = errors.New("no reissuance token in wallet for asset")
	ErrManualCoinNotFound = errors.New("manually selected coin not found among wallet utxos")

	// ErrTooManyInputs guards the surjection proof input ceiling.
	ErrTooManyInputs = errors.New("transaction exceeds the 256 inputs limit")
)

// ErrInsufficientFunds is returned when the wallet utxos cannot cover the
// outputs of one asset plus, for the policy asset, the fee.
type ErrInsufficientFunds struct {
	Asset string
}

func (e ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds for asset %s", e.Asset)
}
