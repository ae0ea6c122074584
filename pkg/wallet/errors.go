package wallet

import "errors"

var (
	ErrNullDescriptor    = errors.New("descriptor must not be null")
	ErrNullNetwork       = errors.New("network must not be null")
	ErrNullPersister     = errors.New("persister must not be null")
	ErrNullPassphrase    = errors.New("passphrase must not be null")
	ErrInvalidCypherText = errors.New("invalid cypher text")

	// ErrNetworkMismatch is returned when the descriptor xpub belongs to a
	// network other than the one the wallet is opened on.
	ErrNetworkMismatch = errors.New(
		"descriptor and wallet network do not match",
	)

	// ErrUpdateOnDifferentStatus is returned when applying an update produced
	// against a wallet state other than the current one.
	ErrUpdateOnDifferentStatus = errors.New(
		"update was created for a different wallet status",
	)
	// ErrUpdateHeightTooOld is returned when the update tip lags more than
	// one block behind the wallet tip.
	ErrUpdateHeightTooOld = errors.New(
		"update tip is older than the wallet tip",
	)
	ErrTxNotFound = errors.New("transaction not found in wallet")
)
