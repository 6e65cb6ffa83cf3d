package ble

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildAdvFrame assembles a de-escaped protocol v1 ADV_NONCONN_IND frame the
// way the firmware lays it out: UART header, packet header, access address,
// PDU header, payload length (emitted twice), advertiser address in
// over-the-air order, then the AD elements.
func buildAdvFrame(counter uint16, channel byte, rssi byte, mac [6]byte, adData []byte) []byte {
	frame := []byte{HeaderLength, 0, ProtoV1, 0, 0, EventPacketAdvPDU}
	binary.LittleEndian.PutUint16(frame[3:5], counter)

	payload := []byte{
		0x00,       // board id
		0x01,       // flags: CRC ok, 1M PHY
		channel,    // channel index
		rssi,       // RSSI magnitude, negated on decode
		0x34, 0x12, // event counter
		0x78, 0x56, 0x34, 0x12, // delta time us
		0xD6, 0xBE, 0x89, 0x8E, // advertising access address
		PDUTypeAdvNonconnInd, // PDU header: TxAdd=0 (public)
		byte(6 + len(adData)),
		byte(6 + len(adData)), // length byte is duplicated on the wire
	}
	for i := 5; i >= 0; i-- {
		payload = append(payload, mac[i])
	}
	payload = append(payload, adData...)

	frame[1] = byte(len(payload))
	return append(frame, payload...)
}

func TestParseAdvertisingFrame(t *testing.T) {
	mac := [6]byte{0xC0, 0xFF, 0xEE, 0x00, 0x11, 0x22}
	ad := []byte{0x02, 0x01, 0x06, 0x09, 0x09, 0x74, 0x65, 0x73, 0x74, 0x6E, 0x61, 0x6D, 0x65}

	p, err := Parse(buildAdvFrame(42, 37, 70, mac, ad))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if p.ProtocolVersion != ProtoV1 {
		t.Errorf("ProtocolVersion = %d, want %d", p.ProtocolVersion, ProtoV1)
	}
	if p.PacketCounter != 42 {
		t.Errorf("PacketCounter = %d, want 42", p.PacketCounter)
	}
	if !p.Header.CRCOK {
		t.Error("CRCOK = false, want true")
	}
	if p.Header.ChannelIndex != 37 {
		t.Errorf("ChannelIndex = %d, want 37", p.Header.ChannelIndex)
	}
	if p.Header.RSSI != -70 {
		t.Errorf("RSSI = %d, want -70", p.Header.RSSI)
	}
	if p.AccessAddress != 0x8E89BED6 {
		t.Errorf("AccessAddress = %#x, want 0x8e89bed6", p.AccessAddress)
	}
	if p.PDUType != PDUTypeAdvNonconnInd {
		t.Errorf("PDUType = %d, want %d", p.PDUType, PDUTypeAdvNonconnInd)
	}
	if !p.TxAddressPublic {
		t.Error("TxAddressPublic = false, want true")
	}
	if got := p.MacString(); got != "C0:FF:EE:00:11:22" {
		t.Errorf("MacString() = %q", got)
	}

	wantAdv := &Advertisement{
		Flags:     ptrByte(0x06),
		LocalName: ptrString("testname"),
	}
	if diff := cmp.Diff(wantAdv, p.Adv); diff != "" {
		t.Errorf("Adv mismatch (-want +got):\n%s", diff)
	}
}

func TestParseScanReq(t *testing.T) {
	frame := []byte{HeaderLength, 0, ProtoV1, 0, 0, EventPacketAdvPDU}
	payload := []byte{
		0x00,
		0x01,
		38,
		55,
		0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xD6, 0xBE, 0x89, 0x8E,
		PDUTypeScanReq,
		12, 12,
		// ScanA then AdvA, over-the-air order
		0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
	}
	frame[1] = byte(len(payload))
	frame = append(frame, payload...)

	p, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.ScanReq == nil {
		t.Fatal("ScanReq = nil")
	}
	if got := formatMac(p.ScanReq.ScannerMac); got != "01:02:03:04:05:06" {
		t.Errorf("ScannerMac = %q", got)
	}
	if got := p.MacString(); got != "11:22:33:44:55:66" {
		t.Errorf("advertiser mac = %q", got)
	}
	if p.Adv != nil {
		t.Error("Adv decoded for a SCAN_REQ")
	}
}

func TestParseTruncatedADElement(t *testing.T) {
	mac := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	// Flags, then a name element whose length byte overruns the frame.
	ad := []byte{0x02, 0x01, 0x06, 0x09, 0x09, 0x74, 0x65}

	p, err := Parse(buildAdvFrame(1, 39, 60, mac, ad))
	var te *TruncatedFieldError
	if !errors.As(err, &te) {
		t.Fatalf("Parse() error = %v, want *TruncatedFieldError", err)
	}
	if p == nil || p.Adv == nil {
		t.Fatal("packet dropped on truncated field")
	}
	if p.Adv.Flags == nil || *p.Adv.Flags != 0x06 {
		t.Errorf("Flags = %v, want 0x06 retained", p.Adv.Flags)
	}
	if got := p.MacString(); got != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("MacString() = %q", got)
	}
}

func TestParseNonPacketEvent(t *testing.T) {
	frame := []byte{HeaderLength, 0x01, ProtoV1, 0x07, 0x00, PingResponse, 0x00}

	p, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.PacketID != PingResponse {
		t.Errorf("PacketID = %#x, want %#x", p.PacketID, PingResponse)
	}
	if p.Adv != nil || p.ScanReq != nil {
		t.Error("payload decoded for a non-packet event")
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"empty", nil, ErrFrameTooShort},
		{"short header", []byte{HeaderLength, 0, 1}, ErrFrameTooShort},
		{"wrong header length byte", []byte{0x05, 0, 1, 0, 0, EventPacketAdvPDU}, ErrMalformedFrame},
		{"packet event cut before pdu header", []byte{HeaderLength, 2, 1, 0, 0, EventPacketAdvPDU, 0, 0}, ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.frame); !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}
