package tpdu

import "encoding/binary"

// concatIEI8Bit and concatIEI16Bit are the Information-Element-Identifier
// values for the two concatenated short message UDH elements defined in
// 3GPP TS 23.040 section 9.2.3.24: an 8-bit reference/total/sequence triple,
// and a 16-bit reference variant used when more than 255 references are in
// flight at once.
const (
	concatIEI8Bit  = 0x00
	concatIEI16Bit = 0x08
)

// ConcatInfo describes the concatenated-message element of a User Data
// Header. Ref is widened to int so it can hold either the 8-bit or the
// 16-bit reference form. A Ref above 0xFF can only come from the 16-bit
// form; otherwise the two forms are not distinguished.
type ConcatInfo struct {
	Ref      int
	Total    int
	Sequence int
}

// ParseUDH parses the User Data Header at the front of udOctets (the User
// Data field of a DELIVER TPDU whose UDHI bit is set). It returns the
// concatenation element if present (nil otherwise) and the offset at which
// the text proper begins.
//
// Unrecognized information elements are skipped by their declared length
// rather than rejected: only a header whose length fields don't fit inside
// the data actually present is treated as malformed.
func ParseUDH(udOctets []byte) (concat *ConcatInfo, textStart int, err error) {
	if len(udOctets) < 1 {
		return nil, 0, ErrMalformedPdu
	}
	udhl := int(udOctets[0])
	if 1+udhl > len(udOctets) {
		return nil, 0, ErrMalformedPdu
	}
	udh := udOctets[1 : 1+udhl]
	textStart = 1 + udhl

	pos := 0
	for pos < len(udh) {
		if pos+2 > len(udh) {
			return nil, 0, ErrMalformedPdu
		}
		iei := udh[pos]
		iedl := int(udh[pos+1])
		pos += 2
		if pos+iedl > len(udh) {
			return nil, 0, ErrMalformedPdu
		}
		ied := udh[pos : pos+iedl]

		switch {
		case iei == concatIEI8Bit && iedl == 3:
			concat = &ConcatInfo{Ref: int(ied[0]), Total: int(ied[1]), Sequence: int(ied[2])}
		case iei == concatIEI16Bit && iedl == 4:
			concat = &ConcatInfo{
				Ref:      int(binary.BigEndian.Uint16(ied[0:2])),
				Total:    int(ied[2]),
				Sequence: int(ied[3]),
			}
		}
		pos += iedl
	}
	return concat, textStart, nil
}

// EncodeConcatUDH returns the 6-octet User Data Header (including its own
// length byte) for the 8-bit reference concatenation element.
func EncodeConcatUDH(ref byte, total, sequence int) []byte {
	return []byte{0x05, concatIEI8Bit, 0x03, ref, byte(total), byte(sequence)}
}
