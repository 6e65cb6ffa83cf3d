package sniffer

import (
	"testing"

	"github.com/banshee-data/ble.report/internal/ble"
	"github.com/banshee-data/ble.report/internal/slip"
)

// decodeRequest strips SLIP framing and returns the header and payload of a
// single encoded request.
func decodeRequest(t *testing.T, raw []byte) (id byte, counter uint16, payload []byte) {
	t.Helper()
	frames, errs := slip.NewReassembler().Feed(raw)
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("request did not decode to one clean frame: frames=%d errs=%v", len(frames), errs)
	}
	f := frames[0]
	if len(f) < ble.HeaderLength {
		t.Fatalf("request frame too short: % X", f)
	}
	if f[0] != ble.HeaderLength {
		t.Errorf("header length byte = %d, want %d", f[0], ble.HeaderLength)
	}
	if f[2] != ble.ProtoV1 {
		t.Errorf("protocol version = %d, want %d", f[2], ble.ProtoV1)
	}
	if int(f[1]) != len(f)-ble.HeaderLength {
		t.Errorf("payload length byte = %d, want %d", f[1], len(f)-ble.HeaderLength)
	}
	return f[5], uint16(f[3]) | uint16(f[4])<<8, f[ble.HeaderLength:]
}

func TestScanContinuous(t *testing.T) {
	tests := []struct {
		name                            string
		findScanRsp, findAux, scanCoded bool
		wantFlags                       byte
	}{
		{"no options", false, false, false, 0x00},
		{"scan responses", true, false, false, 0x01},
		{"aux packets", false, true, false, 0x02},
		{"coded phy", false, false, true, 0x04},
		{"everything", true, true, true, 0x07},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e CommandEncoder
			id, _, payload := decodeRequest(t, e.ScanContinuous(tt.findScanRsp, tt.findAux, tt.scanCoded))
			if id != ReqScanCont {
				t.Errorf("id = %#x, want %#x", id, ReqScanCont)
			}
			if len(payload) != 1 || payload[0] != tt.wantFlags {
				t.Errorf("payload = % X, want [%02X]", payload, tt.wantFlags)
			}
		})
	}
}

func TestCommandCounterIncrements(t *testing.T) {
	var e CommandEncoder
	_, c0, _ := decodeRequest(t, e.Ping())
	_, c1, _ := decodeRequest(t, e.Ping())
	_, c2, _ := decodeRequest(t, e.Version())
	if c0 != 0 || c1 != 1 || c2 != 2 {
		t.Errorf("counters = %d, %d, %d; want 0, 1, 2", c0, c1, c2)
	}
}

func TestTemporaryKey(t *testing.T) {
	var e CommandEncoder
	var key [16]byte
	key[0] = 0xAB // forces SLIP escaping on the wire
	raw := e.TemporaryKey(key)

	id, _, payload := decodeRequest(t, raw)
	if id != SetTemporaryKey {
		t.Errorf("id = %#x, want %#x", id, SetTemporaryKey)
	}
	if len(payload) != 16 || payload[0] != 0xAB {
		t.Errorf("payload = % X, want 16 bytes starting AB", payload)
	}
}

func TestAdvChannelHopSeq(t *testing.T) {
	var e CommandEncoder
	id, _, payload := decodeRequest(t, e.AdvChannelHopSeq([]byte{37, 38, 39}))
	if id != SetAdvChannelHopSeq {
		t.Errorf("id = %#x, want %#x", id, SetAdvChannelHopSeq)
	}
	want := []byte{3, 37, 38, 39}
	if len(payload) != len(want) {
		t.Fatalf("payload = % X, want % X", payload, want)
	}
	for i := range want {
		if payload[i] != want[i] {
			t.Errorf("payload[%d] = %d, want %d", i, payload[i], want[i])
		}
	}
}
