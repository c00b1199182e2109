package pdu

import (
	"errors"
	"unicode/utf16"
)

// ErrUnevenNumber happens when the number of octets (bytes) in the input is uneven.
var ErrUnevenNumber = errors.New("decode ucs2: uneven number of octets")

// EncodeUcs2 encodes the given UTF-8 text into UCS2 (UTF-16 big-endian)
// octets, as used by DCS 0x08 user data in 3GPP TS 23.040.
func EncodeUcs2(str string) []byte {
	units := utf16.Encode([]rune(str))
	octets := make([]byte, 0, len(units)*2)
	for _, n := range units {
		octets = append(octets, byte(n>>8), byte(n))
	}
	return octets
}

// DecodeUcs2 decodes UCS2 (UTF-16 big-endian) octets into a UTF-8 string.
func DecodeUcs2(octets []byte) (str string, err error) {
	if len(octets)%2 != 0 {
		return "", ErrUnevenNumber
	}
	units := make([]uint16, 0, len(octets)/2)
	for i := 0; i < len(octets); i += 2 {
		units = append(units, uint16(octets[i])<<8|uint16(octets[i+1]))
	}
	return string(utf16.Decode(units)), nil
}

// CodeUnitCount returns the number of UTF-16 code units str would occupy once
// UCS2-encoded: the measure the 70/67 code-unit segmentation thresholds use,
// rather than bytes or runes (a character outside the Basic Multilingual
// Plane costs two code units). tpdu.EncodeSubmit computes the same count
// from its own UTF-16 encoding and does not call this function.
func CodeUnitCount(str string) int {
	return len(utf16.Encode([]rune(str)))
}
