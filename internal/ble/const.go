package ble

// Sniffer UART packet framing. See the nRF Sniffer API guide; offsets within a
// de-escaped frame follow sniffer_uart_protocol.txt for protocol version 1.
const (
	HeaderLength = 6

	ProtoV1 = 1
	ProtoV2 = 2
	ProtoV3 = 3
)

// Packet IDs reported in the frame header.
const (
	EventFollow        = 0x01
	EventPacketAdvPDU  = 0x02
	EventConnect       = 0x05
	EventPacketDataPDU = 0x06
	EventDisconnect    = 0x09
	PingResponse       = 0x0E
	VersionResponse    = 0x1C
	TimestampResponse  = 0x1E
)

// Advertising channel PDU types. Reference: Bluetooth Core v5.4, Vol 6 Part B 2.3.
const (
	PDUTypeAdvInd        = 0x0
	PDUTypeAdvDirectInd  = 0x1
	PDUTypeAdvNonconnInd = 0x2
	PDUTypeScanReq       = 0x3
	PDUTypeScanRsp       = 0x4
	PDUTypeConnectReq    = 0x5
	PDUTypeAdvScanInd    = 0x6
	PDUTypeAdvExtInd     = 0x7
)

// PHY identifiers from the sniffer packet header flags.
const (
	PHY1M    = 0
	PHY2M    = 1
	PHYCoded = 2
)

// Advertising data (AD) types decoded by this package. Reference: Supplement to
// the Bluetooth Core Specification, Part A 1. Any other type is preserved
// opaquely in Advertisement.RawFields.
const (
	TypeFlags            = 0x01
	TypeShortName        = 0x08
	TypeCompleteName     = 0x09
	TypeTxPower          = 0x0A
	TypeManufacturerData = 0xFF
)
