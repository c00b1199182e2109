package tpdu

import (
	"time"

	"github.com/smsgw/gateway/pdu"
)

// EncodeTimestamp and DecodeTimestamp convert between time.Time and the
// TP-Service-Centre-Time-Stamp (TP-SCTS) field, as specified in 3GPP TS
// 23.040 version 16.0.0 release 16, section 9.2.3.11.
//
//	|             | Year | Month | Day | Hour | Minute | Second | Time Zone |
//	|-------------|------|-------|-----|------|--------|--------|-----------|
//	| Semi-octets |   2  |   2   |  2  |   2  |    2   |    2   |     2     |
//
// The Time Zone indicates the difference, expressed in quarters of an hour,
// between the local time and GMT. In the first of the two semi-octets, the
// first bit represents the algebraic sign of this difference (0: positive,
// 1: negative).

// EncodeTimestamp returns the semi-octet encoding of t, preserving whatever
// zone offset t carries (it is not converted to UTC or local time first).
func EncodeTimestamp(t time.Time) []byte {
	year, month, day := t.Date()
	hour, minute, second := t.Clock()

	_, offset := t.Zone()
	negative := offset < 0
	if negative {
		offset = -offset
	}
	quarters := offset / int(15*time.Minute/time.Second)

	octets := []byte{
		pdu.Swap(pdu.Encode(year % 1000)),
		pdu.Swap(pdu.Encode(int(month))),
		pdu.Swap(pdu.Encode(day)),
		pdu.Swap(pdu.Encode(hour)),
		pdu.Swap(pdu.Encode(minute)),
		pdu.Swap(pdu.Encode(second)),
		pdu.Swap(pdu.Encode(quarters)),
	}
	if negative {
		octets[6] |= 0x08
	}
	return octets
}

// DecodeTimestamp reads a 7-octet semi-encoded SCTS and returns the instant
// it represents, attached to a fixed zone carrying the encoded offset (so
// the original offset survives instead of being normalized away).
func DecodeTimestamp(octets []byte) (time.Time, error) {
	if len(octets) < 7 {
		return time.Time{}, ErrMalformedPdu
	}

	millennium := (time.Now().Year() / 1000) * 1000
	year := pdu.Decode(pdu.Swap(octets[0]))
	month := pdu.Decode(pdu.Swap(octets[1]))
	day := pdu.Decode(pdu.Swap(octets[2]))
	hour := pdu.Decode(pdu.Swap(octets[3]))
	minute := pdu.Decode(pdu.Swap(octets[4]))
	second := pdu.Decode(pdu.Swap(octets[5]))

	negative := octets[6]&0x08 != 0
	quarters := pdu.Decode(pdu.Swap(octets[6] & 0xF7))
	offset := time.Duration(quarters) * 15 * time.Minute
	if negative {
		offset = -offset
	}

	date := time.Date(millennium+year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	date = date.Add(-offset).In(time.FixedZone("", int(offset.Seconds())))
	return date, nil
}
