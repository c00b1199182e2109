// Package tpdu implements the 3GPP TS 23.040 TPDU layer on top of package
// pdu's octet codecs: SMS-SUBMIT encoding, SMS-DELIVER decoding, addresses,
// timestamps, validity periods and the concatenation User Data Header.
package tpdu

import "errors"

// Sentinel errors returned by the decoders in this package. Callers should
// use errors.Is against these rather than matching on message text.
var (
	// ErrMalformedPdu covers truncated PDUs and internal length fields
	// (address length, UDHL, IEDL) that don't fit inside the octets given.
	ErrMalformedPdu = errors.New("tpdu: malformed pdu")

	// ErrUnsupportedEncoding is returned by DecodeDeliver when the DCS
	// octet indicates something other than UCS2 (0x08).
	ErrUnsupportedEncoding = errors.New("tpdu: unsupported data coding scheme")

	// ErrEmptyDestination is returned by EncodeSubmit when the destination
	// address has no digits left after normalization.
	ErrEmptyDestination = errors.New("tpdu: destination address has no digits")

	// ErrTextTooLong is returned by EncodeSubmit when the message would
	// need more concatenated segments than a single byte reference
	// sequence number can address (255).
	ErrTextTooLong = errors.New("tpdu: text exceeds maximum concatenated length")
)
