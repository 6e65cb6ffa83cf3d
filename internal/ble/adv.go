package ble

import (
	"fmt"
	"strings"
)

// Field is one advertising data element as it appears on the wire: a length
// byte counting the type byte plus the value, the type byte, and the value.
type Field struct {
	Length byte
	Type   byte
	Value  []byte
}

// RawField preserves an AD element this package does not decode.
type RawField struct {
	Type  byte   `json:"type"`
	Value []byte `json:"value"`
}

// ManufacturerData is one Manufacturer Specific Data element (AD type 0xFF):
// a little-endian company identifier followed by vendor bytes.
type ManufacturerData struct {
	CompanyID uint16 `json:"company_id"`
	Data      []byte `json:"data"`
}

// Advertisement aggregates the decoded AD elements of one advertising payload.
// Scalar fields are last-seen-wins when a type repeats; Manufacturer Specific
// Data keeps every occurrence in order. Every element of the source payload is
// represented exactly once, either in a named field or in RawFields.
type Advertisement struct {
	Flags        *byte              `json:"flags,omitempty"`
	TxPower      *int8              `json:"tx_power,omitempty"`
	LocalName    *string            `json:"local_name,omitempty"`
	Manufacturer []ManufacturerData `json:"manufacturer,omitempty"`
	RawFields    []RawField         `json:"raw_fields,omitempty"`
}

// TruncatedFieldError reports an AD element whose declared length exceeds the
// bytes remaining in the payload. Decoding of the payload stops at the
// offending element; fields decoded before it are retained.
type TruncatedFieldError struct {
	Offset   int
	Declared int
	Remain   int
}

func (e *TruncatedFieldError) Error() string {
	return fmt.Sprintf("truncated AD field at offset %d: declared %d bytes, %d remain", e.Offset, e.Declared, e.Remain)
}

// nextField parses the single AD element at the start of b and returns it
// together with the total number of bytes it occupies (1 + length byte).
// A zero length byte returns consumed 0 with no error: it is the conventional
// end-of-data padding, not an element.
func nextField(b []byte) (Field, int, error) {
	if len(b) == 0 || b[0] == 0 {
		return Field{}, 0, nil
	}
	l := int(b[0])
	if 1+l > len(b) {
		return Field{}, 0, &TruncatedFieldError{Declared: 1 + l, Remain: len(b)}
	}
	return Field{Length: b[0], Type: b[1], Value: b[2 : 1+l]}, 1 + l, nil
}

// apply folds one decoded element into the advertisement.
func (a *Advertisement) apply(f Field) {
	switch f.Type {
	case TypeFlags:
		if len(f.Value) >= 1 {
			v := f.Value[0]
			a.Flags = &v
			return
		}
	case TypeTxPower:
		if len(f.Value) >= 1 {
			v := int8(f.Value[0])
			a.TxPower = &v
			return
		}
	case TypeCompleteName:
		// Invalid UTF-8 is repaired rather than rejected; a garbled name must
		// never fail the whole packet.
		name := strings.ToValidUTF8(string(f.Value), "�")
		a.LocalName = &name
		return
	case TypeManufacturerData:
		if len(f.Value) >= 2 {
			a.Manufacturer = append(a.Manufacturer, ManufacturerData{
				CompanyID: uint16(f.Value[0]) | uint16(f.Value[1])<<8,
				Data:      append([]byte(nil), f.Value[2:]...),
			})
			return
		}
	}
	// Unknown type, or a known type too short to decode: keep it opaque.
	a.RawFields = append(a.RawFields, RawField{Type: f.Type, Value: append([]byte(nil), f.Value...)})
}

// DecodeAdvData walks the AD elements of one advertising payload from offset 0.
// A zero length byte terminates the walk early. If an element declares more
// bytes than remain, the returned error is a *TruncatedFieldError and the
// returned Advertisement retains every field decoded before it.
func DecodeAdvData(b []byte) (*Advertisement, error) {
	adv := &Advertisement{}
	for off := 0; off < len(b); {
		f, n, err := nextField(b[off:])
		if err != nil {
			if te, ok := err.(*TruncatedFieldError); ok {
				te.Offset = off
			}
			return adv, err
		}
		if n == 0 {
			break
		}
		adv.apply(f)
		off += n
	}
	return adv, nil
}

// ManufacturerID returns the company identifier of the first Manufacturer
// Specific Data element, if any.
func (a *Advertisement) ManufacturerID() (uint16, bool) {
	if len(a.Manufacturer) == 0 {
		return 0, false
	}
	return a.Manufacturer[0].CompanyID, true
}

// ManufacturerBytes returns the vendor bytes of the first Manufacturer
// Specific Data element, if any.
func (a *Advertisement) ManufacturerBytes() ([]byte, bool) {
	if len(a.Manufacturer) == 0 {
		return nil, false
	}
	return a.Manufacturer[0].Data, true
}
