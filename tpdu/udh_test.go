package tpdu

import (
	"testing"

	"github.com/smsgw/gateway/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUDHConcat8Bit(t *testing.T) {
	t.Parallel()

	// UDHL=05, IEI=00 (concat 8-bit), IEDL=03, ref=7A, total=03, seq=02, then "Hi".
	ud := util.MustBytes("0500037A03024869")
	concat, textStart, err := ParseUDH(ud)
	require.NoError(t, err)
	require.NotNil(t, concat)
	assert.Equal(t, 0x7A, concat.Ref)
	assert.Equal(t, 3, concat.Total)
	assert.Equal(t, 2, concat.Sequence)
	assert.Equal(t, 6, textStart)
}

func TestParseUDHConcat16Bit(t *testing.T) {
	t.Parallel()

	// UDHL=06, IEI=08 (concat 16-bit), IEDL=04, ref=1234, total=05, seq=01, then "Hi".
	ud := util.MustBytes("060804123405014869")
	concat, textStart, err := ParseUDH(ud)
	require.NoError(t, err)
	require.NotNil(t, concat)
	assert.Equal(t, 0x1234, concat.Ref)
	assert.Equal(t, 5, concat.Total)
	assert.Equal(t, 1, concat.Sequence)
	assert.Equal(t, 7, textStart)
}

func TestParseUDHSkipsUnknownElement(t *testing.T) {
	t.Parallel()

	// UDHL=09: unknown IEI=70 IEDL=02 "AABB", then concat 8-bit ref=01 total=02 seq=01, then "Hi".
	ud := util.MustBytes("097002AABB00030102014869")
	concat, textStart, err := ParseUDH(ud)
	require.NoError(t, err)
	require.NotNil(t, concat)
	assert.Equal(t, 1, concat.Ref)
	assert.Equal(t, 2, concat.Total)
	assert.Equal(t, 1, concat.Sequence)
	assert.Equal(t, 10, textStart)
}

func TestParseUDHTruncated(t *testing.T) {
	t.Parallel()

	_, _, err := ParseUDH(util.MustBytes("05000301"))
	assert.ErrorIs(t, err, ErrMalformedPdu)
}

func TestEncodeConcatUDH(t *testing.T) {
	t.Parallel()

	udh := EncodeConcatUDH(0x7A, 3, 2)
	assert.Equal(t, "0500037A0302", util.HexString(udh))
}
