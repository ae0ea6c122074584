package descriptor

import "fmt"

// Chain tells apart receiving scripts from change scripts.
type Chain uint8

const (
	// External is the chain of receiving addresses.
	External Chain = 0
	// Internal is the chain of change addresses.
	Internal Chain = 1
)

func (c Chain) String() string {
	switch c {
	case External:
		return "external"
	case Internal:
		return "internal"
	default:
		return fmt.Sprintf("chain(%d)", uint8(c))
	}
}

// ChainFromByte parses the chain byte used by the update wire format.
func ChainFromByte(b byte) (Chain, error) {
	switch b {
	case 0:
		return External, nil
	case 1:
		return Internal, nil
	default:
		return 0, fmt.Errorf("invalid chain byte %d", b)
	}
}
