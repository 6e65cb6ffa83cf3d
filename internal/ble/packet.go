// Package ble decodes BLE advertising traffic as reported by the nRF sniffer
// firmware: the de-escaped UART frame header, the link-layer header, and the
// advertising data TLV elements inside the payload.
package ble

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrFrameTooShort  = errors.New("sniffer frame too short")
	ErrMalformedFrame = errors.New("malformed sniffer frame")
)

// Offsets within a de-escaped frame, protocol version 1. Byte 22 repeats the
// link-layer payload length; the firmware emits it on the wire even though
// Wireshark's dissector model does not show it.
const (
	offFlags         = 7
	offChannel       = 8
	offRSSI          = 9
	offEventCounter  = 10
	offDeltaTime     = 12
	offAccessAddress = 16
	offPDUHeader     = 20
	offPayloadLength = 21
	offLinkPayload   = 23
)

// AdvHeader carries the advertising-specific bits of the sniffer packet
// header flags byte.
type AdvHeader struct {
	AuxType         uint8 `json:"aux_type"`
	AddressResolved bool  `json:"address_resolved"`
}

// DataHeader carries the data-PDU-specific bits of the sniffer packet header
// flags byte.
type DataHeader struct {
	ToPeripheral bool `json:"to_peripheral"`
	Encrypted    bool `json:"encrypted"`
	MICOK        bool `json:"mic_ok"`
}

// PacketHeader is the out-of-band metadata the sniffer firmware reports for
// every captured packet.
type PacketHeader struct {
	CRCOK        bool        `json:"crc_ok"`
	PHY          uint8       `json:"phy"`
	ChannelIndex uint8       `json:"channel_index"`
	RSSI         int16       `json:"rssi"`
	EventCounter uint16      `json:"event_counter"`
	DeltaTimeUS  uint32      `json:"delta_time_us"`
	Adv          *AdvHeader  `json:"adv,omitempty"`
	Data         *DataHeader `json:"data,omitempty"`
}

// ScanRequest is the decoded body of a SCAN_REQ PDU.
type ScanRequest struct {
	ScannerMac    [6]byte `json:"-"`
	AdvertiserMac [6]byte `json:"-"`
}

// Packet is one fully decoded sniffer-reported packet. Constructed once by
// Parse and immutable thereafter.
type Packet struct {
	ProtocolVersion uint8        `json:"protocol_version"`
	PacketCounter   uint16       `json:"packet_counter"`
	PacketID        uint8        `json:"packet_id"`
	Header          PacketHeader `json:"header"`

	AccessAddress   uint32 `json:"access_address"`
	PDUType         uint8  `json:"pdu_type"`
	ChannelSelect   uint8  `json:"channel_select"`
	TxAddressPublic bool   `json:"tx_address_public"`
	RxAddressPublic bool   `json:"rx_address_public"`

	// Mac is the advertiser device address in human display order (reversed
	// from over-the-air byte order).
	Mac [6]byte `json:"-"`

	Adv     *Advertisement `json:"adv,omitempty"`
	ScanReq *ScanRequest   `json:"scan_req,omitempty"`
}

// MacString formats the advertiser address in the usual colon-separated form.
func (p *Packet) MacString() string {
	return formatMac(p.Mac)
}

func formatMac(m [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// reverseMac converts the over-the-air (little-endian) address bytes into
// display order.
func reverseMac(b []byte) (m [6]byte) {
	for i := 0; i < 6; i++ {
		m[i] = b[5-i]
	}
	return m
}

// Parse decodes one de-escaped sniffer frame into a Packet. Frames that are
// not packet events (ping, version and timestamp responses, connect/disconnect
// notifications) yield a Packet carrying only the frame header fields.
//
// If the advertising payload ends in a truncated AD element the returned error
// is a *TruncatedFieldError and the Packet retains every field decoded before
// the truncation; the frame itself is still usable.
func Parse(frame []byte) (*Packet, error) {
	if len(frame) < HeaderLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	if frame[0] != HeaderLength {
		return nil, fmt.Errorf("%w: header length %d", ErrMalformedFrame, frame[0])
	}

	p := &Packet{
		ProtocolVersion: frame[2],
		PacketCounter:   binary.LittleEndian.Uint16(frame[3:5]),
		PacketID:        frame[5],
	}

	if p.PacketID != EventPacketAdvPDU && p.PacketID != EventPacketDataPDU {
		return p, nil
	}

	if len(frame) < offPDUHeader+1 {
		return nil, fmt.Errorf("%w: %d bytes for packet event", ErrMalformedFrame, len(frame))
	}

	flags := frame[offFlags]
	p.Header.CRCOK = flags&0x01 != 0
	p.Header.PHY = (flags & 0x70) >> 4
	switch p.PacketID {
	case EventPacketAdvPDU:
		p.Header.Adv = &AdvHeader{
			AuxType:         (flags & 0x06) >> 1,
			AddressResolved: flags&0x08 != 0,
		}
	case EventPacketDataPDU:
		p.Header.Data = &DataHeader{
			ToPeripheral: flags&0x02 != 0,
			Encrypted:    flags&0x04 != 0,
			MICOK:        flags&0x08 != 0,
		}
	}
	p.Header.ChannelIndex = frame[offChannel]
	p.Header.RSSI = -int16(frame[offRSSI])
	p.Header.EventCounter = binary.LittleEndian.Uint16(frame[offEventCounter : offEventCounter+2])
	p.Header.DeltaTimeUS = binary.LittleEndian.Uint32(frame[offDeltaTime : offDeltaTime+4])
	p.AccessAddress = binary.LittleEndian.Uint32(frame[offAccessAddress : offAccessAddress+4])

	hdr := frame[offPDUHeader]
	p.PDUType = hdr & 0x0F
	p.ChannelSelect = (hdr & 0x20) >> 5
	p.TxAddressPublic = hdr&0x40 == 0
	p.RxAddressPublic = hdr&0x80 == 0

	if p.PacketID != EventPacketAdvPDU {
		// Data PDU payloads are connection traffic; only the headers are
		// reported.
		return p, nil
	}

	if len(frame) < offLinkPayload {
		return nil, fmt.Errorf("%w: advertising PDU without payload", ErrMalformedFrame)
	}
	payloadLen := int(frame[offPayloadLength])
	body := frame[offLinkPayload:]

	switch p.PDUType {
	case PDUTypeScanReq:
		if payloadLen != 12 || len(body) < 12 {
			return nil, fmt.Errorf("%w: SCAN_REQ payload length %d", ErrMalformedFrame, payloadLen)
		}
		sr := &ScanRequest{
			ScannerMac:    reverseMac(body[0:6]),
			AdvertiserMac: reverseMac(body[6:12]),
		}
		p.ScanReq = sr
		p.Mac = sr.AdvertiserMac
		return p, nil

	case PDUTypeAdvInd, PDUTypeAdvNonconnInd, PDUTypeAdvScanInd, PDUTypeScanRsp:
		if payloadLen < 6 || len(body) < 6 {
			return nil, fmt.Errorf("%w: advertising payload length %d", ErrMalformedFrame, payloadLen)
		}
		p.Mac = reverseMac(body[0:6])
		adLen := payloadLen - 6
		if adLen > len(body)-6 {
			// The firmware occasionally reports a byte or two more than the
			// frame carries; decode what arrived and let the TLV walk report
			// any element cut short by it.
			adLen = len(body) - 6
		}
		adv, err := DecodeAdvData(body[6 : 6+adLen])
		p.Adv = adv
		return p, err

	case PDUTypeAdvDirectInd:
		if len(body) < 6 {
			return nil, fmt.Errorf("%w: ADV_DIRECT_IND without AdvA", ErrMalformedFrame)
		}
		p.Mac = reverseMac(body[0:6])
		return p, nil
	}

	// Extended advertising and CONNECT_IND bodies are out of scope; headers
	// only.
	return p, nil
}
