package tpdu

import (
	"testing"
	"time"

	"github.com/smsgw/gateway/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDeliverSingle(t *testing.T) {
	t.Parallel()

	octets := util.MustBytes("0004099121436587F90008123040506070230400480069")
	fragment, err := DecodeDeliver(octets)
	require.NoError(t, err)

	assert.Equal(t, "+123456789", fragment.Sender)
	assert.Equal(t, "Hi", fragment.Text)
	assert.Equal(t, "2021-03-04T05:06:07+08:00", fragment.Timestamp.Format(time.RFC3339))
	assert.Nil(t, fragment.Concat)
}

func TestDecodeDeliverConcatenated(t *testing.T) {
	t.Parallel()

	octets := util.MustBytes("0044099121436587F90008123040506070230A0500037A030200480069")
	fragment, err := DecodeDeliver(octets)
	require.NoError(t, err)

	assert.Equal(t, "+123456789", fragment.Sender)
	assert.Equal(t, "Hi", fragment.Text)
	require.NotNil(t, fragment.Concat)
	assert.Equal(t, 0x7A, fragment.Concat.Ref)
	assert.Equal(t, 3, fragment.Concat.Total)
	assert.Equal(t, 2, fragment.Concat.Sequence)
}

func TestDecodeDeliverUnsupportedEncoding(t *testing.T) {
	t.Parallel()

	// Same as the single-segment fixture but DCS=00 (GSM 7-bit) instead of 08.
	octets := util.MustBytes("0004099121436587F90000123040506070230400480069")
	_, err := DecodeDeliver(octets)
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}

func TestDecodeDeliverTruncated(t *testing.T) {
	t.Parallel()

	_, err := DecodeDeliver(util.MustBytes("0004099121436587"))
	assert.ErrorIs(t, err, ErrMalformedPdu)
}
