// Package identifier normalizes the identifier formats found across the
// booking data: canonical UUID strings, legacy numeric surrogate keys and
// arbitrary strings.
package identifier

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Zero is the diagnostic identifier for absent input. It is never a valid
// storage key.
const Zero = "00000000-0000-0000-0000-000000000000"

// Kind tags how a raw identifier must be normalized.
type Kind uint8

const (
	KindZero Kind = iota
	KindCanonical
	KindLegacyNumeric
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindZero:
		return "zero"
	case KindCanonical:
		return "canonical"
	case KindLegacyNumeric:
		return "legacy_numeric"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

var canonicalPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// legacyNamespace seeds name-based promotion for integers too large for the
// padded template.
var legacyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:clinic-booking:legacy-numeric-id"))

// templateCapacity is the number of free hex digits in the padded template:
// three after the version nibble, three after the variant nibble, twelve in
// the node group.
const templateCapacity = 18

// Identifier is a raw identifier together with its classification.
type Identifier struct {
	raw  string
	kind Kind
}

// Parse classifies raw without converting it.
func Parse(raw string) Identifier {
	s := strings.TrimSpace(raw)
	return Identifier{raw: s, kind: classify(s)}
}

func (id Identifier) Kind() Kind { return id.kind }

func (id Identifier) Raw() string { return id.raw }

func (id Identifier) IsZero() bool { return id.kind == KindZero }

func (id Identifier) String() string { return id.raw }

// Canonical converts the identifier to its canonical form. Legacy numeric
// values always promote to the same string; opaque values get a fresh
// random UUID.
func (id Identifier) Canonical() string {
	switch id.kind {
	case KindZero:
		return Zero
	case KindCanonical:
		return id.raw
	case KindLegacyNumeric:
		return promote(id.raw)
	default:
		return uuid.NewString()
	}
}

// EnsureCanonical is shorthand for Parse(raw).Canonical().
func EnsureCanonical(raw string) string {
	return Parse(raw).Canonical()
}

// IsCanonical reports whether raw already has the canonical shape.
func IsCanonical(raw string) bool {
	return canonicalPattern.MatchString(raw)
}

func classify(s string) Kind {
	switch {
	case s == "" || s == Zero:
		return KindZero
	case IsCanonical(s):
		return KindCanonical
	case isDigits(s):
		return KindLegacyNumeric
	default:
		return KindOpaque
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// promote left-pads the hex encoding of the integer into
// 00000000-0000-4xxx-8xxx-xxxxxxxxxxxx. Values below 2^48 only touch the
// node group.
func promote(digits string) string {
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return uuid.NewString()
	}

	hex := n.Text(16)
	if len(hex) > templateCapacity {
		return uuid.NewSHA1(legacyNamespace, []byte(n.String())).String()
	}
	hex = strings.Repeat("0", templateCapacity-len(hex)) + hex

	var b strings.Builder
	b.Grow(36)
	b.WriteString("00000000-0000-4")
	b.WriteString(hex[0:3])
	b.WriteString("-8")
	b.WriteString(hex[3:6])
	b.WriteString("-")
	b.WriteString(hex[6:])
	return b.String()
}
