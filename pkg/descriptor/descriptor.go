package descriptor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/payment"
	"github.com/vulpemventures/go-elements/slip77"
)

type blindingKeyKind int

const (
	blindingSlip77 blindingKeyKind = iota
	blindingView
)

// Descriptor is a parsed ct() confidential descriptor restricted to the
// elwpkh script expression. It is immutable and safe for concurrent use.
type Descriptor struct {
	body     string
	checksum string

	kind       blindingKeyKind
	slip77Node *slip77.Slip77
	viewKey    *btcec.PrivateKey

	xpub   *hdkeychain.ExtendedKey
	prefix []uint32
	// multipath values for the external and internal chains. The second
	// entry is meaningful only if hasInternal is true.
	chainPaths  [2]uint32
	hasInternal bool
}

// Parse parses a confidential descriptor of the form
//
//	ct(slip77(<hex key>),elwpkh(<xpub>/<0;1>/*))#checksum
//
// The blinding expression may also be a bare hex view private key. The
// checksum is optional on input and always present on the canonical String.
func Parse(desc string) (*Descriptor, error) {
	desc = strings.TrimSpace(desc)

	body := desc
	if idx := strings.IndexByte(desc, '#'); idx >= 0 {
		body = desc[:idx]
		if err := verifyChecksum(body, desc[idx+1:]); err != nil {
			return nil, err
		}
	}

	if !strings.HasPrefix(body, "ct(") || !strings.HasSuffix(body, ")") {
		return nil, ErrNotConfidential
	}
	inner := body[len("ct(") : len(body)-1]

	keyExpr, scriptExpr, err := splitTopLevel(inner)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{}
	if err := d.parseBlindingKey(keyExpr); err != nil {
		return nil, err
	}
	if err := d.parseScript(scriptExpr); err != nil {
		return nil, err
	}

	d.body = body
	checksum, err := Checksum(body)
	if err != nil {
		return nil, err
	}
	d.checksum = checksum
	return d, nil
}

// splitTopLevel splits the ct() payload at the comma separating the blinding
// key expression from the script expression, ignoring commas in nested parens.
func splitTopLevel(s string) (string, string, error) {
	depth := 0
	for i, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				return s[:i], s[i+1:], nil
			}
		}
	}
	return "", "", ErrNotConfidential
}

func (d *Descriptor) parseBlindingKey(expr string) error {
	if strings.HasPrefix(expr, "slip77(") && strings.HasSuffix(expr, ")") {
		rawKey := expr[len("slip77(") : len(expr)-1]
		masterKey, err := hex.DecodeString(rawKey)
		if err != nil || len(masterKey) != 32 {
			return ErrInvalidBlindingKey
		}
		node, err := slip77.FromMasterKey(masterKey)
		if err != nil {
			return ErrInvalidBlindingKey
		}
		d.kind = blindingSlip77
		d.slip77Node = node
		return nil
	}

	// Bare hex view private key.
	rawKey, err := hex.DecodeString(expr)
	if err != nil || len(rawKey) != 32 {
		return ErrInvalidBlindingKey
	}
	viewKey, _ := btcec.PrivKeyFromBytes(rawKey)
	if viewKey == nil {
		return ErrInvalidBlindingKey
	}
	d.kind = blindingView
	d.viewKey = viewKey
	return nil
}

func (d *Descriptor) parseScript(expr string) error {
	if !strings.HasPrefix(expr, "elwpkh(") || !strings.HasSuffix(expr, ")") {
		return ErrUnsupportedScriptKind
	}
	keyExpr := expr[len("elwpkh(") : len(expr)-1]

	components := strings.Split(keyExpr, "/")
	xpub, err := hdkeychain.NewKeyFromString(components[0])
	if err != nil {
		return ErrInvalidExtendedKey
	}
	if xpub.IsPrivate() {
		if xpub, err = xpub.Neuter(); err != nil {
			return ErrInvalidExtendedKey
		}
	}
	d.xpub = xpub

	path := components[1:]
	if len(path) == 0 {
		// Bare xpub, canonicalized to the usual receive/change multipath.
		d.chainPaths = [2]uint32{0, 1}
		d.hasInternal = true
		return nil
	}

	if path[len(path)-1] != "*" {
		return ErrInvalidDerivationPath
	}
	path = path[:len(path)-1]

	sawMultipath := false
	for i, component := range path {
		if strings.HasPrefix(component, "<") && strings.HasSuffix(component, ">") {
			if sawMultipath || i != len(path)-1 {
				return ErrInvalidDerivationPath
			}
			values := strings.Split(component[1:len(component)-1], ";")
			if len(values) != 2 {
				return ErrInvalidDerivationPath
			}
			external, err := parsePathComponent(values[0])
			if err != nil {
				return err
			}
			internal, err := parsePathComponent(values[1])
			if err != nil {
				return err
			}
			d.chainPaths = [2]uint32{external, internal}
			d.hasInternal = true
			sawMultipath = true
			continue
		}

		value, err := parsePathComponent(component)
		if err != nil {
			return err
		}
		if i == len(path)-1 {
			// Single fixed chain, external only.
			d.chainPaths[0] = value
			continue
		}
		d.prefix = append(d.prefix, value)
	}

	if !sawMultipath && len(path) == 0 {
		// elwpkh(xpub/*): the xpub itself is the chain node.
		d.chainPaths[0] = noChainStep
	}
	return nil
}

// noChainStep marks a descriptor whose wildcard hangs directly off the xpub.
const noChainStep = 1 << 31

func parsePathComponent(s string) (uint32, error) {
	if strings.HasSuffix(s, "'") || strings.HasSuffix(s, "h") {
		return 0, ErrInvalidDerivationPath
	}
	value, err := strconv.ParseUint(s, 10, 32)
	if err != nil || value >= hdkeychain.HardenedKeyStart {
		return 0, ErrInvalidDerivationPath
	}
	return uint32(value), nil
}

// String returns the canonical descriptor with its checksum.
func (d *Descriptor) String() string {
	return d.body + "#" + d.checksum
}

// HasInternal reports whether the descriptor carries a distinct change chain.
func (d *Descriptor) HasInternal() bool { return d.hasInternal }

// ChainStep returns the fixed derivation step of the given chain.
func (d *Descriptor) ChainStep(chain Chain) (uint32, error) {
	if chain == Internal && !d.hasInternal {
		return 0, ErrMissingInternalChain
	}
	return d.chainPaths[chain], nil
}

func (d *Descriptor) chainNode(chain Chain) (*hdkeychain.ExtendedKey, error) {
	node := d.xpub
	var err error
	for _, step := range d.prefix {
		if node, err = node.Derive(step); err != nil {
			return nil, err
		}
	}
	step, err := d.ChainStep(chain)
	if err != nil {
		return nil, err
	}
	if step == noChainStep {
		return node, nil
	}
	return node.Derive(step)
}

// DerivePublicKey derives the signing public key at the given chain and
// wildcard index.
func (d *Descriptor) DerivePublicKey(chain Chain, index uint32) (*btcec.PublicKey, error) {
	if index >= hdkeychain.HardenedKeyStart {
		return nil, ErrIndexOutOfRange
	}
	node, err := d.chainNode(chain)
	if err != nil {
		return nil, err
	}
	child, err := node.Derive(index)
	if err != nil {
		return nil, err
	}
	return child.ECPubKey()
}

// ScriptPubkey returns the P2WPKH output script at the given chain and index.
func (d *Descriptor) ScriptPubkey(chain Chain, index uint32) ([]byte, error) {
	pubkey, err := d.DerivePublicKey(chain, index)
	if err != nil {
		return nil, err
	}
	return payment.FromPublicKey(pubkey, &network.Liquid, nil).WitnessScript, nil
}

// Address derives the confidential address at the given chain and index.
func (d *Descriptor) Address(chain Chain, index uint32, net *network.Network) (string, error) {
	pubkey, err := d.DerivePublicKey(chain, index)
	if err != nil {
		return "", err
	}
	script := payment.FromPublicKey(pubkey, net, nil).WitnessScript
	blindingPubkey, err := d.BlindingPublicKey(script)
	if err != nil {
		return "", err
	}
	return payment.FromPublicKey(pubkey, net, blindingPubkey).ConfidentialWitnessPubKeyHash()
}

// BlindingPrivateKey returns the blinding private key for an output script.
func (d *Descriptor) BlindingPrivateKey(script []byte) (*btcec.PrivateKey, error) {
	if len(script) == 0 {
		return nil, ErrNullOutputScript
	}
	if d.kind == blindingView {
		return d.viewKey, nil
	}
	prvkey, _, err := d.slip77Node.DeriveKey(script)
	return prvkey, err
}

// BlindingPublicKey returns the blinding public key for an output script.
func (d *Descriptor) BlindingPublicKey(script []byte) (*btcec.PublicKey, error) {
	if len(script) == 0 {
		return nil, ErrNullOutputScript
	}
	if d.kind == blindingView {
		return d.viewKey.PubKey(), nil
	}
	_, pubkey, err := d.slip77Node.DeriveKey(script)
	return pubkey, err
}

// mainnetHDPubKeyID is the extended public key version of mainnet (xpub).
var mainnetHDPubKeyID = []byte{0x04, 0x88, 0xb2, 0x1e}

// IsMainnet reports whether the descriptor xpub carries mainnet version
// bytes. Testnet and regtest share the tpub version.
func (d *Descriptor) IsMainnet() bool {
	return bytes.Equal(d.xpub.Version(), mainnetHDPubKeyID)
}

// MasterFingerprint returns the BIP32 fingerprint of the descriptor xpub,
// used to fill key origin info of partial transactions.
func (d *Descriptor) MasterFingerprint() ([]byte, error) {
	pubkey, err := d.xpub.ECPubKey()
	if err != nil {
		return nil, err
	}
	return btcutil.Hash160(pubkey.SerializeCompressed())[:4], nil
}

// DerivationPath returns the full path of the key at chain/index relative to
// the descriptor xpub.
func (d *Descriptor) DerivationPath(chain Chain, index uint32) ([]uint32, error) {
	step, err := d.ChainStep(chain)
	if err != nil {
		return nil, err
	}
	path := make([]uint32, 0, len(d.prefix)+2)
	path = append(path, d.prefix...)
	if step != noChainStep {
		path = append(path, step)
	}
	return append(path, index), nil
}

const cipherKeyTag = "liquid-wallet/cache-encryption"

// CipherKey derives the symmetric key protecting the persisted wallet state.
// It is a tagged hash of the canonical descriptor, so that a persisted cache
// can only be read back by whoever knows the descriptor.
func (d *Descriptor) CipherKey() []byte {
	tagHash := sha256.Sum256([]byte(cipherKeyTag))
	h := sha256.New()
	h.Write(tagHash[:])
	h.Write(tagHash[:])
	h.Write([]byte(d.String()))
	return h.Sum(nil)
}

// ID is a short stable identifier of the descriptor, suitable as a directory
// name for its persisted data.
func (d *Descriptor) ID() string {
	sum := sha256.Sum256([]byte(d.String()))
	return hex.EncodeToString(sum[:8])
}
