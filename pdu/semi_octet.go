package pdu

import "fmt"

// Swap semi-octets in octet
func Swap(octet byte) byte {
	return (octet << 4) | (octet >> 4 & 0x0F)
}

// Encode to semi-octets
func Encode(value int) byte {
	lo := byte(value % 10)
	hi := byte((value % 100) / 10)
	return hi<<4 | lo
}

// Decode form semi-octets
func Decode(octet byte) int {
	lo := octet & 0x0F
	hi := octet >> 4 & 0x0F
	return int(hi)*10 + int(lo)
}

// DecodeSemiAddress unpacks phone numbers from the given semi-octet encoded data.
// Each octet yields two digits, so a 0x00 byte is interpreted as "00"; a high
// nibble of 0xF marks the padding after an odd final digit.
func DecodeSemiAddress(octets []byte) (str string) {
	for _, oct := range octets {
		half := oct >> 4
		if half == 0xF {
			str += fmt.Sprintf("%d", oct&0x0F)
			return
		}
		str += fmt.Sprintf("%d%d", oct&0x0F, half)
	}
	return
}
