package serialmux

import (
	"context"
	"fmt"

	"github.com/banshee-data/ble.report/internal/ble"
	"github.com/banshee-data/ble.report/internal/db"
	"github.com/banshee-data/ble.report/internal/monitoring"
)

// HandlePacket records one decoded packet. Data-channel events carry no
// advertising payload and are skipped; everything from the advertising
// channels (including scan requests) is recorded.
func HandlePacket(d *db.DB, p *ble.Packet) error {
	if p.PacketID != ble.EventPacketAdvPDU {
		return nil
	}
	if err := d.RecordPacket(p); err != nil {
		return fmt.Errorf("failed to record packet from %s: %w", p.MacString(), err)
	}
	return nil
}

// RecordPackets subscribes to the mux and records every advertising packet
// until ctx is cancelled or the subscription channel closes. Recording
// failures are logged and the loop keeps going; one bad row should not stop
// the capture.
func RecordPackets(ctx context.Context, mux SerialMuxInterface, d *db.DB) {
	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return
			}
			if err := HandlePacket(d, p); err != nil {
				monitoring.Logf("serialmux: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
