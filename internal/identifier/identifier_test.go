package identifier

import (
	"math/big"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCanonical_PromotesLegacyNumericToFixedValue(t *testing.T) {
	// act
	first := EnsureCanonical("42")
	second := EnsureCanonical("42")

	// assert
	assert.Equal(t, "00000000-0000-4000-8000-00000000002a", first)
	assert.Equal(t, first, second)
	assert.True(t, IsCanonical(first))
}

func TestEnsureCanonical_IsIdempotentForNumericInput(t *testing.T) {
	maxUint64 := new(big.Int).SetUint64(^uint64(0)).String()
	beyondTemplate := new(big.Int).Lsh(big.NewInt(1), 80).String()

	inputs := []string{"0", "1", "15", "16", "255", "4096", "281474976710655", "281474976710656", maxUint64, beyondTemplate}
	for n := 0; n < 500; n++ {
		inputs = append(inputs, strconv.Itoa(n*7919))
	}

	for _, in := range inputs {
		once := EnsureCanonical(in)
		twice := EnsureCanonical(once)

		require.True(t, IsCanonical(once), "input %s produced %s", in, once)
		assert.Equal(t, once, twice, "input %s", in)
		assert.Equal(t, once, EnsureCanonical(in), "input %s is not stable", in)
	}
}

func TestEnsureCanonical_DistinctIntegersStayDistinct(t *testing.T) {
	seen := make(map[string]string)
	inputs := []string{"1", "281474976710655", "281474976710656", "18446744073709551615", "18446744073709551616"}

	for _, in := range inputs {
		out := EnsureCanonical(in)
		prev, dup := seen[out]
		assert.False(t, dup, "%s and %s both promote to %s", prev, in, out)
		seen[out] = in
	}
}

func TestEnsureCanonical_PassesCanonicalThrough(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := uuid.NewString()
		assert.Equal(t, c, EnsureCanonical(c))
	}

	upper := "3F2504E0-4F89-41D3-9A0C-0305E82C3301"
	assert.Equal(t, upper, EnsureCanonical(upper))
}

func TestEnsureCanonical_OpaqueInputGetsRandomValue(t *testing.T) {
	// act
	a := EnsureCanonical("dr-house")
	b := EnsureCanonical("dr-house")

	// assert
	assert.True(t, IsCanonical(a))
	assert.True(t, IsCanonical(b))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, EnsureCanonical(a))
}

func TestEnsureCanonical_EmptyInputMapsToZero(t *testing.T) {
	for _, in := range []string{"", "   ", Zero} {
		id := Parse(in)
		assert.True(t, id.IsZero(), "input %q", in)
		assert.Equal(t, Zero, id.Canonical())
	}
	assert.False(t, IsCanonical(Zero))
}

func TestParse_Classifies(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
	}{
		{"", KindZero},
		{"7", KindLegacyNumeric},
		{" 12 ", KindLegacyNumeric},
		{"-12", KindOpaque},
		{"12a", KindOpaque},
		{"00000000-0000-4000-8000-00000000002a", KindCanonical},
		{"00000000-0000-0000-0000-00000000002a", KindOpaque},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Parse(tc.in).Kind())
		})
	}
}
