package tpdu

import (
	"bytes"
	"io"
	"time"

	"github.com/smsgw/gateway/pdu"
)

const udhiBit = 0x40

// InboundFragment is the decoded result of one SMS-DELIVER TPDU. If the
// TPDU carried a concatenation UDH, Concat is non-nil and Text holds only
// that fragment's slice of the overall message; reassembly across fragments
// happens one layer up.
type InboundFragment struct {
	Sender    string
	Timestamp time.Time
	Text      string
	Concat    *ConcatInfo
}

// DecodeDeliver parses the PDU octets of one SMS-DELIVER as reported by the
// modem after a +CMT: URC (the leading SMSC-length/address octets included).
// It rejects any data coding scheme other than UCS2 (0x08); this gateway
// doesn't speak the GSM 7-bit or 8-bit-data alphabets.
func DecodeDeliver(octets []byte) (*InboundFragment, error) {
	r := bytes.NewReader(octets)

	scLen, err := r.ReadByte()
	if err != nil {
		return nil, ErrMalformedPdu
	}
	if err := discard(r, int(scLen)); err != nil {
		return nil, err
	}

	firstOctet, err := r.ReadByte()
	if err != nil {
		return nil, ErrMalformedPdu
	}
	udhi := firstOctet&udhiBit != 0

	senderDigits, err := r.ReadByte()
	if err != nil {
		return nil, ErrMalformedPdu
	}
	senderOctets, err := readN(r, addressFieldLen(int(senderDigits)))
	if err != nil {
		return nil, err
	}
	sender, err := DecodeAddress(senderOctets)
	if err != nil {
		return nil, err
	}

	if err := discard(r, 1); err != nil { // TP-PID
		return nil, err
	}
	dcs, err := r.ReadByte()
	if err != nil {
		return nil, ErrMalformedPdu
	}
	sctsOctets, err := readN(r, 7)
	if err != nil {
		return nil, err
	}
	scts, err := DecodeTimestamp(sctsOctets)
	if err != nil {
		return nil, err
	}

	udl, err := r.ReadByte()
	if err != nil {
		return nil, ErrMalformedPdu
	}
	ud, err := readN(r, int(udl))
	if err != nil {
		return nil, err
	}

	if dcs != dcsUcs2 {
		return nil, ErrUnsupportedEncoding
	}

	var concat *ConcatInfo
	text := ud
	if udhi {
		var textStart int
		concat, textStart, err = ParseUDH(ud)
		if err != nil {
			return nil, err
		}
		text = ud[textStart:]
	}

	decoded, err := pdu.DecodeUcs2(text)
	if err != nil {
		return nil, ErrMalformedPdu
	}

	return &InboundFragment{
		Sender:    sender,
		Timestamp: scts,
		Text:      decoded,
		Concat:    concat,
	}, nil
}

func discard(r *bytes.Reader, n int) error {
	if _, err := r.Seek(int64(n), io.SeekCurrent); err != nil {
		return ErrMalformedPdu
	}
	return nil
}

func readN(r *bytes.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrMalformedPdu
	}
	return buf, nil
}
