package sniffer

// UART protocol packet IDs understood by the sniffer firmware. Requests are
// sent by this side; responses and events arrive as frames. See
// sniffer_uart_protocol.txt.
const (
	ReqFollow               = 0x00
	EventFollow             = 0x01
	EventPacketAdvPDU       = 0x02
	EventConnect            = 0x05
	EventPacketDataPDU      = 0x06
	ReqScanCont             = 0x07
	EventDisconnect         = 0x09
	SetTemporaryKey         = 0x0C
	PingReq                 = 0x0D
	PingResp                = 0x0E
	SwitchBaudRateReq       = 0x13
	SwitchBaudRateResp      = 0x14
	SetAdvChannelHopSeq     = 0x17
	SetPrivateKey           = 0x18
	SetLegacyLongTermKey    = 0x19
	SetSCLongTermKey        = 0x1A
	ReqVersion              = 0x1B
	RespVersion             = 0x1C
	ReqTimestamp            = 0x1D
	RespTimestamp           = 0x1E
	SetIdentityResolvingKey = 0x1F
	GoIdle                  = 0xFE
)

// Scan request option flags.
const (
	scanFlagFindScanRsp = 1 << 0
	scanFlagFindAux     = 1 << 1
	scanFlagScanCoded   = 1 << 2
)

// DefaultBaudRate is the rate the nRF sniffer firmware ships with.
const DefaultBaudRate = 460800
