package tpdu

import (
	"testing"

	"github.com/smsgw/gateway/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAddress(t *testing.T) {
	t.Parallel()

	type testcase struct {
		number     string
		digitCount int
		octets     string
	}

	for name, tc := range map[string]testcase{
		"international": {
			number:     "+123456789",
			digitCount: 9,
			octets:     "9121436587F9",
		},
		"no leading plus still encodes international TOA": {
			number:     "0123456789",
			digitCount: 10,
			octets:     "911032547698",
		},
		"leading zero preserved": {
			number:     "0977123456",
			digitCount: 10,
			octets:     "919077214365",
		},
		"strips formatting": {
			number:     "+84 357-259-001",
			digitCount: 11,
			octets:     "914853279500F1",
		},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			digitCount, octets, err := EncodeAddress(tc.number)
			require.NoError(t, err)
			assert.Equal(t, tc.digitCount, digitCount)
			assert.Equal(t, tc.octets, util.HexString(octets))
		})
	}
}

func TestEncodeAddressEmpty(t *testing.T) {
	t.Parallel()

	_, _, err := EncodeAddress("+")
	assert.ErrorIs(t, err, ErrEmptyDestination)
}

func TestDecodeAddress(t *testing.T) {
	t.Parallel()

	type testcase struct {
		octets string
		number string
	}

	for name, tc := range map[string]testcase{
		"international": {octets: "9121436587F9", number: "+123456789"},
		"national":      {octets: "A11032547698", number: "0123456789"},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			octets := util.MustBytes(tc.octets)
			number, err := DecodeAddress(octets)
			require.NoError(t, err)
			assert.Equal(t, tc.number, number)
		})
	}
}
