package psetx

import (
	"errors"
	"fmt"
)

// ErrMultipleFee is returned when more than one output of the pset has an
// empty script.
var ErrMultipleFee = errors.New("pset has more than one fee output")

// ErrMissingPreviousOutput is returned for inputs lacking their previous
// output, without which nothing can be said about the money they move.
type ErrMissingPreviousOutput struct {
	Index int
}

func (e ErrMissingPreviousOutput) Error() string {
	return fmt.Sprintf("input %d misses the previous output", e.Index)
}

// ErrInputPegin is returned for pegin inputs, which are out of scope of the
// balance analysis.
type ErrInputPegin struct {
	Index int
}

func (e ErrInputPegin) Error() string {
	return fmt.Sprintf("input %d is a pegin", e.Index)
}

// ErrInputHasBlindedIssuance is returned when an input carries issuance
// commitments instead of explicit issuance amounts.
type ErrInputHasBlindedIssuance struct {
	Index int
}

func (e ErrInputHasBlindedIssuance) Error() string {
	return fmt.Sprintf("input %d has a blinded issuance", e.Index)
}

// ErrInputNotBlinded is returned when a wallet input spends an explicit
// previous output. Wallet outputs are always confidential, so an explicit
// one cannot be vouched for.
type ErrInputNotBlinded struct {
	Index int
}

func (e ErrInputNotBlinded) Error() string {
	return fmt.Sprintf("input %d spends an explicit wallet output", e.Index)
}

// ErrInputMismatch is returned when the secrets revealed from a wallet input
// do not recommit to the previous output.
type ErrInputMismatch struct {
	Index int
}

func (e ErrInputMismatch) Error() string {
	return fmt.Sprintf("input %d secrets do not match the previous output", e.Index)
}

// ErrOutputMissingField is returned when a wallet output lacks one of the
// fields needed to independently verify its blinding.
type ErrOutputMissingField struct {
	Index int
	Field string
}

func (e ErrOutputMissingField) Error() string {
	return fmt.Sprintf("output %d misses the %s field", e.Index, e.Field)
}

// ErrOutputProofInvalid is returned when one of the blind proofs of a wallet
// output does not verify against its commitments.
type ErrOutputProofInvalid struct {
	Index int
}

func (e ErrOutputProofInvalid) Error() string {
	return fmt.Sprintf("output %d carries an invalid blind proof", e.Index)
}

// ErrOutputMismatch is returned when unblinding a wallet output with the
// wallet key disagrees with the explicit asset and amount it declares.
type ErrOutputMismatch struct {
	Index int
}

func (e ErrOutputMismatch) Error() string {
	return fmt.Sprintf("output %d does not unblind to its declared values", e.Index)
}
