package psetx

import "github.com/vulpemventures/go-elements/psetv2"

// InputSignatures summarizes the signing state of one input.
type InputSignatures struct {
	HasSignature bool
	Finalized    bool
}

// Signatures reports, input by input, whether a signature is present and
// whether the input is already finalized.
func Signatures(ptx *psetv2.Pset) []InputSignatures {
	summary := make([]InputSignatures, 0, len(ptx.Inputs))
	for _, in := range ptx.Inputs {
		finalized := len(in.FinalScriptSig) > 0 || len(in.FinalScriptWitness) > 0
		summary = append(summary, InputSignatures{
			HasSignature: len(in.PartialSigs) > 0 || finalized,
			Finalized:    finalized,
		})
	}
	return summary
}
