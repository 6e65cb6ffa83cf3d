package serialmux

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/ble.report/internal/ble"
	"github.com/banshee-data/ble.report/internal/sniffer"
)

// DisabledSerialMux is a no-op SerialMux implementation used when the sniffer
// hardware is absent (for --disable-sniffer). It allows the server and admin
// routes to run without a real device. Subscriber channels are tracked so
// they can be deterministically closed on Unsubscribe() or Close(), letting
// readers unblock predictably during shutdown.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan *ble.Packet
	closing     bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan *ble.Packet),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan *ble.Packet) {
	id := uuid.NewString()
	ch := make(chan *ble.Packet)

	d.mu.Lock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		d.mu.Unlock()
		return id, ch
	}
	d.subscribers[id] = ch
	d.mu.Unlock()
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
}

func (d *DisabledSerialMux) SendCommand([]byte) error { return nil }

func (d *DisabledSerialMux) Initialize(bool, bool, bool) error { return nil }

func (d *DisabledSerialMux) SetAdvHopSequence([]byte) error { return nil }

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Stats() sniffer.Snapshot { return sniffer.Snapshot{} }

func (d *DisabledSerialMux) SetFrameTap(func([]byte)) {}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/sniffer-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("sniffer disabled"))
	})
}
