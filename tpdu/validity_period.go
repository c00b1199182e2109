package tpdu

import "time"

// DefaultValidityPeriod is the relative validity period this gateway stamps
// on every SMS-SUBMIT: 4 days, encoded as the fixed octet 0xAA.
const DefaultValidityPeriod = ValidityPeriod(4 * 24 * time.Hour)

// ValidityPeriod is a relative validity period (3GPP TS 23.040, section
// 9.2.3.12.1): how long the SMSC should keep attempting delivery.
type ValidityPeriod time.Duration

// Octet returns the one-byte relative-format encoding of v.
func (v ValidityPeriod) Octet() byte {
	switch d := time.Duration(v); {
	case d/time.Minute < 5:
		return 0x00
	case d/time.Hour < 12:
		return byte(d / (time.Minute * 5))
	case d/time.Hour < 24:
		return byte((d-12*time.Hour)/(time.Minute*30) + 143)
	case d/time.Hour < 744:
		days := d / (time.Hour * 24)
		return byte(days + 166)
	default:
		weeks := d / (time.Hour * 24 * 7)
		if weeks > 62 {
			return 0xFF
		}
		return byte(weeks + 192)
	}
}
