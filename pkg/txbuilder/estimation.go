package txbuilder

// Size estimation for the only shapes this builder produces: confidential
// P2WPKH inputs, confidential P2WPKH outputs, explicit OP_RETURN burns and
// the explicit fee output.

const (
	// hash + index + sequence + scriptsig len
	inBaseSize = 40 + 1
	// len + witness[sig,pubkey] + empty issuance proofs + empty pegin
	inWitnessSize = 1 + 107 + 1 + 1 + 1
	// asset nonce entropy + explicit asset and token amounts
	issuanceBaseSize = 32 + 32 + 9 + 9

	// asset + value + nonce commitments + p2wpkh script (len included)
	confOutBaseSize = 33 + 33 + 33 + 23
	// size(range proof) + proof + size(surjection proof) + proof
	confOutWitnessSize = 3 + 4174 + 1 + 131
	// asset + explicit value + empty nonce + op_return script (len included)
	burnOutBaseSize = 33 + 9 + 1 + 2
	// asset + explicit value + empty nonce + empty script
	feeOutBaseSize = 33 + 9 + 1 + 1
	// empty proofs
	explicitOutWitnessSize = 1 + 1
)

// estimateVsize returns the virtual size of the final transaction: weight is
// base size times three plus total size, vsize rounds the weight up to the
// next multiple of four.
func estimateVsize(
	numInputs, numConfOutputs, numBurnOutputs int, withIssuance bool,
) int {
	numOutputs := numConfOutputs + numBurnOutputs + 1

	baseSize := 9 +
		varIntSerializeSize(uint64(numInputs)) +
		varIntSerializeSize(uint64(numOutputs)) +
		numInputs*inBaseSize +
		numConfOutputs*confOutBaseSize +
		numBurnOutputs*burnOutBaseSize +
		feeOutBaseSize
	if withIssuance {
		baseSize += issuanceBaseSize
	}

	witnessSize := numInputs*inWitnessSize +
		numConfOutputs*confOutWitnessSize +
		(numBurnOutputs+1)*explicitOutWitnessSize

	weight := baseSize*3 + (baseSize + witnessSize)
	return (weight + 3) / 4
}

// estimateFee converts a vsize to sats given a rate in sats per 1000 vbytes,
// rounding up.
func estimateFee(vsize int, satsPerKvb uint64) uint64 {
	return (uint64(vsize)*satsPerKvb + 999) / 1000
}

func varIntSerializeSize(val uint64) int {
	switch {
	case val < 0xfd:
		return 1
	case val <= 0xffff:
		return 3
	case val <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
