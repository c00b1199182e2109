package tpdu

import (
	"strings"

	"github.com/smsgw/gateway/pdu"
)

// AddressType mirrors Type-of-Number / Numbering-plan-identification, as
// specified in 3GPP TS 23.040 version 16.0.0 release 16, section 9.1.2.5.
// Only the two forms this gateway ever emits or parses are named.
type AddressType byte

// Known address types. Unknown combinations decode fine (DecodeAddress
// doesn't interpret the type octet beyond the international bit) but are
// never produced by EncodeAddress.
const (
	AddressTypeNational      AddressType = 0x80 | (2 << 4) | 0x01 // national, E.164 plan
	AddressTypeInternational AddressType = 0x80 | (1 << 4) | 0x01 // international, E.164 plan
)

const internationalMask = 0x70

// normalizeDigits strips everything but ASCII digits from a destination
// address string, per the "digits only" destination normalization rule.
func normalizeDigits(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EncodeAddress returns the digit count and the semi-octet encoded address
// field (type octet followed by packed digits) for the given destination.
// Per spec.md §4.1 step 3 the Type-of-Address is always international
// (0x91); a leading '+' is accepted but stripped (along with any other
// formatting) before packing, and never counts towards the digit count.
func EncodeAddress(number string) (digitCount int, octets []byte, err error) {
	digits := normalizeDigits(number)
	if len(digits) == 0 {
		return 0, nil, ErrEmptyDestination
	}

	octets = make([]byte, 0, 1+(len(digits)+1)/2)
	octets = append(octets, byte(AddressTypeInternational))
	octets = append(octets, encodeSemiOctetDigits(digits)...)
	return len(digits), octets, nil
}

// encodeSemiOctetDigits packs a decimal digit string into semi-octets,
// swapping each pair and padding an odd trailing digit with an 0xF nibble.
// It works on the digit string directly, so leading zeros are kept.
func encodeSemiOctetDigits(digits string) []byte {
	if len(digits)%2 != 0 {
		digits += "F"
	}
	octets := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		lo := semiOctetDigitValue(digits[i])
		hi := semiOctetDigitValue(digits[i+1])
		octets = append(octets, hi<<4|lo)
	}
	return octets
}

func semiOctetDigitValue(c byte) byte {
	if c == 'F' {
		return 0xF
	}
	return c - '0'
}

// DecodeAddress unpacks a semi-octet encoded address field (type octet plus
// packed digits), as found in the Originating-Address of an SMS-DELIVER.
func DecodeAddress(octets []byte) (string, error) {
	if len(octets) < 1 {
		return "", ErrMalformedPdu
	}
	digits := pdu.DecodeSemiAddress(octets[1:])
	if octets[0]&internationalMask == byte(AddressTypeInternational&internationalMask) {
		return "+" + digits, nil
	}
	return digits, nil
}

// addressFieldLen returns the number of octets the packed address field
// occupies (the type octet plus ceil(digitCount/2) packed digit octets),
// given the digit count carried alongside it in the TPDU.
func addressFieldLen(digitCount int) int {
	return 1 + (digitCount+1)/2
}
