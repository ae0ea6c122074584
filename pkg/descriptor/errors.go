package descriptor

import "errors"

var (
	ErrNotConfidential            = errors.New("descriptor is not a ct() confidential descriptor")
	ErrInvalidDescriptorCharacter = errors.New("descriptor contains invalid characters")
	ErrInvalidChecksum            = errors.New("invalid descriptor checksum")
	ErrInvalidBlindingKey         = errors.New("invalid blinding key expression")
	ErrUnsupportedScriptKind      = errors.New("unsupported script expression, only elwpkh is supported")
	ErrInvalidExtendedKey         = errors.New("invalid extended public key")
	ErrInvalidDerivationPath      = errors.New("invalid derivation path in descriptor")
	ErrIndexOutOfRange            = errors.New("derivation index out of the non-hardened range")
	ErrMissingInternalChain       = errors.New("descriptor has no internal derivation path")
	ErrNullOutputScript           = errors.New("output script must not be null")
)
