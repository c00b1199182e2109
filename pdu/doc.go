// Package pdu implements the low-level byte/octet codecs used by 3GPP TS
// 23.040 PDUs: semi-octet (BCD) packing for timestamps and phone numbers, and
// the UCS2 (UTF-16 big-endian) text encoding used when DCS is 0x08.
//
// It has no notion of TPDU structure (SUBMIT/DELIVER, UDH, addresses); that
// lives in package tpdu, which is built on top of these primitives.
package pdu
