package tpdu

import (
	"math/rand"
	"unicode/utf16"

	"github.com/smsgw/gateway/util"
)

const (
	// maxSingleCodeUnits is the UCS2 code-unit budget for a message that
	// fits in a single SMS-SUBMIT (no UDH).
	maxSingleCodeUnits = 70
	// maxSegmentCodeUnits is the per-segment budget once a message has to
	// be split: 67 code units, the 70-code-unit UD capacity minus the
	// 3-code-unit-equivalent 6 octets the concatenation UDH occupies.
	maxSegmentCodeUnits = 67

	dcsUcs2 = 0x08
	pid     = 0x00

	firstOctetSingle = 0x11 // TP-MTI=01 (SUBMIT), TP-VPF=10 (relative), no UDHI
	firstOctetConcat = 0x51 // same, with UDHI set
)

// Segment is one SMS-SUBMIT PDU ready to be handed to the modem. PDU
// includes the leading SMSC-length octet (always 0x00, meaning "use the
// SMSC number configured on the SIM"); TPDULen is the octet count the
// AT+CMGS command expects, i.e. len(PDU)-1.
type Segment struct {
	Sequence int
	Total    int
	PDU      []byte
}

// TPDULen returns the parameter AT+CMGS expects: the PDU length in octets,
// excluding the SMSC-length octet at the front.
func (s Segment) TPDULen() int {
	return len(s.PDU) - 1
}

// HexPDU renders the segment's PDU as the upper-case hex string the modem
// expects after the AT+CMGS prompt.
func (s Segment) HexPDU() string {
	return util.HexString(s.PDU)
}

// OutboundSubmission is one outbound message, segmented into one or more
// SMS-SUBMIT PDUs. Reference is nil for single-segment messages (no UDH, no
// shared reference needed) and set for concatenated ones.
type OutboundSubmission struct {
	Destination string
	Reference   *byte
	Segments    []Segment
}

// EncodeSubmit builds the SMS-SUBMIT PDU(s) for sending text to destination.
// Messages of up to 70 UCS2 code units are encoded as a single PDU; longer
// messages are split into 67-code-unit segments, each carrying an 8-bit
// reference concatenation UDH sharing one randomly chosen reference byte.
func EncodeSubmit(destination, text string) (*OutboundSubmission, error) {
	digitCount, addrOctets, err := EncodeAddress(destination)
	if err != nil {
		return nil, err
	}

	units := utf16.Encode([]rune(text))
	if len(units) <= maxSingleCodeUnits {
		ud := codeUnitsToUcs2(units)
		segPDU := buildSubmitPDU(firstOctetSingle, digitCount, addrOctets, nil, ud)
		return &OutboundSubmission{
			Destination: destination,
			Segments:    []Segment{{Sequence: 1, Total: 1, PDU: segPDU}},
		}, nil
	}

	chunks := chunkCodeUnits(units, maxSegmentCodeUnits)
	if len(chunks) > 255 {
		return nil, ErrTextTooLong
	}

	ref := byte(rand.Intn(256))
	total := len(chunks)
	segments := make([]Segment, 0, total)
	for i, chunk := range chunks {
		seq := i + 1
		udh := EncodeConcatUDH(ref, total, seq)
		ud := codeUnitsToUcs2(chunk)
		segPDU := buildSubmitPDU(firstOctetConcat, digitCount, addrOctets, udh, ud)
		segments = append(segments, Segment{Sequence: seq, Total: total, PDU: segPDU})
	}

	return &OutboundSubmission{Destination: destination, Reference: &ref, Segments: segments}, nil
}

// chunkCodeUnits splits units into chunks of at most max code units each,
// never separating a surrogate pair across a chunk boundary.
func chunkCodeUnits(units []uint16, max int) [][]uint16 {
	var chunks [][]uint16
	for len(units) > 0 {
		n := max
		if n > len(units) {
			n = len(units)
		}
		if n < len(units) && units[n-1] >= 0xD800 && units[n-1] < 0xDC00 { // high surrogate
			n--
		}
		chunks = append(chunks, units[:n])
		units = units[n:]
	}
	return chunks
}

func codeUnitsToUcs2(units []uint16) []byte {
	octets := make([]byte, 0, len(units)*2)
	for _, u := range units {
		octets = append(octets, byte(u>>8), byte(u))
	}
	return octets
}

func buildSubmitPDU(firstOctet byte, digitCount int, addrOctets, udh, text []byte) []byte {
	ud := make([]byte, 0, len(udh)+len(text))
	ud = append(ud, udh...)
	ud = append(ud, text...)

	tpdu := make([]byte, 0, 8+len(addrOctets)+len(ud))
	tpdu = append(tpdu, firstOctet)
	tpdu = append(tpdu, 0x00) // TP-Message-Reference, left to the modem
	tpdu = append(tpdu, byte(digitCount))
	tpdu = append(tpdu, addrOctets...)
	tpdu = append(tpdu, pid)
	tpdu = append(tpdu, dcsUcs2)
	tpdu = append(tpdu, ValidityPeriod(DefaultValidityPeriod).Octet())
	tpdu = append(tpdu, byte(len(ud)))
	tpdu = append(tpdu, ud...)

	pduBytes := make([]byte, 0, 1+len(tpdu))
	pduBytes = append(pduBytes, 0x00) // SMSC-length: use the SIM-configured SMSC
	pduBytes = append(pduBytes, tpdu...)
	return pduBytes
}
