package sniffer

import (
	"encoding/binary"

	"github.com/banshee-data/ble.report/internal/ble"
	"github.com/banshee-data/ble.report/internal/slip"
)

// CommandEncoder builds SLIP-framed request frames for the sniffer firmware,
// stamping each with an incrementing packet counter. Not safe for concurrent
// use; callers serialise writes to the port anyway.
type CommandEncoder struct {
	counter uint16
}

// encode wraps a request ID and payload in the 6-byte UART header and SLIP
// framing.
func (e *CommandEncoder) encode(id byte, payload []byte) []byte {
	content := make([]byte, 0, ble.HeaderLength+len(payload))
	content = append(content, ble.HeaderLength, byte(len(payload)), ble.ProtoV1, 0, 0, id)
	binary.LittleEndian.PutUint16(content[3:5], e.counter)
	e.counter++
	content = append(content, payload...)
	return slip.Encode(content)
}

// ScanContinuous builds the REQ_SCAN_CONT request that starts advertising
// capture. The flags select whether the firmware also chases scan responses,
// auxiliary (extended advertising) packets, and the coded PHY.
func (e *CommandEncoder) ScanContinuous(findScanRsp, findAux, scanCoded bool) []byte {
	var flags byte
	if findScanRsp {
		flags |= scanFlagFindScanRsp
	}
	if findAux {
		flags |= scanFlagFindAux
	}
	if scanCoded {
		flags |= scanFlagScanCoded
	}
	return e.encode(ReqScanCont, []byte{flags})
}

// TemporaryKey builds the SET_TEMPORARY_KEY request. The firmware expects a
// 16-byte key; passing the zero key matches "Just Works" pairing.
func (e *CommandEncoder) TemporaryKey(key [16]byte) []byte {
	return e.encode(SetTemporaryKey, key[:])
}

// Ping builds a PING_REQ frame.
func (e *CommandEncoder) Ping() []byte {
	return e.encode(PingReq, nil)
}

// Version builds a REQ_VERSION frame; the firmware answers with RESP_VERSION.
func (e *CommandEncoder) Version() []byte {
	return e.encode(ReqVersion, nil)
}

// AdvChannelHopSeq builds the SET_ADV_CHANNEL_HOP_SEQ request. channels must
// name advertising channels (37, 38, 39) in the order the firmware should
// visit them.
func (e *CommandEncoder) AdvChannelHopSeq(channels []byte) []byte {
	payload := append([]byte{byte(len(channels))}, channels...)
	return e.encode(SetAdvChannelHopSeq, payload)
}

// GoIdle builds the GO_IDLE request that stops capture.
func (e *CommandEncoder) GoIdle() []byte {
	return e.encode(GoIdle, nil)
}
