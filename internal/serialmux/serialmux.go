// Package serialmux provides an abstraction over the sniffer's serial port
// with the ability for multiple clients to subscribe to decoded packets from
// the port and send firmware requests to a single device.
package serialmux

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/ble.report/internal/ble"
	"github.com/banshee-data/ble.report/internal/monitoring"
	"github.com/banshee-data/ble.report/internal/sniffer"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// SerialMux is a generic serial port multiplexer that allows multiple clients
// to subscribe to decoded BLE packets from a single sniffer device.
type SerialMux[T SerialPorter] struct {
	port    T
	engine  *sniffer.Sniffer
	encoder sniffer.CommandEncoder

	subscribers  map[string]chan *ble.Packet
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving decoded packets from the
	// sniffer. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan *ble.Packet)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes an already SLIP-framed request to the serial port.
	SendCommand([]byte) error
	// Initialize puts the firmware into continuous advertising capture with
	// the given scan options.
	Initialize(findScanRsp, findAux, scanCoded bool) error
	// SetAdvHopSequence tells the firmware which advertising channels to
	// hop, in order.
	SetAdvHopSequence([]byte) error
	// Monitor reads from the serial port, reassembles and decodes frames,
	// and fans packets out to subscribers until ctx is cancelled or the
	// byte source fails.
	Monitor(context.Context) error
	// Stats reports stream health counters.
	Stats() sniffer.Snapshot
	// SetFrameTap registers a callback invoked with every raw reassembled
	// frame, for capture export. Must be called before Monitor.
	SetFrameTap(func([]byte))
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		engine:      sniffer.New(port),
		subscribers: make(map[string]chan *ble.Packet),
	}
}

func (s *SerialMux[T]) Subscribe() (string, chan *ble.Packet) {
	id := uuid.NewString()
	ch := make(chan *ble.Packet)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize starts continuous advertising capture with the given scan
// options and sets the "Just Works" temporary key so the firmware can follow
// legacy-paired connections.
func (s *SerialMux[T]) Initialize(findScanRsp, findAux, scanCoded bool) error {
	s.commandMu.Lock()
	scan := s.encoder.ScanContinuous(findScanRsp, findAux, scanCoded)
	tk := s.encoder.TemporaryKey([16]byte{})
	s.commandMu.Unlock()

	if err := s.SendCommand(scan); err != nil {
		return fmt.Errorf("failed to request continuous scan: %w", err)
	}
	if err := s.SendCommand(tk); err != nil {
		return fmt.Errorf("failed to set temporary key: %w", err)
	}
	return nil
}

// SetAdvHopSequence sends the advertising channel hop order to the firmware.
func (s *SerialMux[T]) SetAdvHopSequence(seq []byte) error {
	s.commandMu.Lock()
	frame := s.encoder.AdvChannelHopSeq(seq)
	s.commandMu.Unlock()

	if err := s.SendCommand(frame); err != nil {
		return fmt.Errorf("failed to set hop sequence: %w", err)
	}
	return nil
}

// SendCommand writes a framed request to the serial port.
func (s *SerialMux[T]) SendCommand(frame []byte) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	n, err := s.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return ErrWriteFailed
	}
	return nil
}

// Encoder exposes the request encoder so callers can build frames stamped
// with this device's packet counter.
func (s *SerialMux[T]) Encoder() *sniffer.CommandEncoder { return &s.encoder }

// Stats reports the stream counters of the underlying engine.
func (s *SerialMux[T]) Stats() sniffer.Snapshot { return s.engine.Stats().Snapshot() }

// SetFrameTap registers a raw-frame callback on the engine. Must be called
// before Monitor starts.
func (s *SerialMux[T]) SetFrameTap(tap func([]byte)) { s.engine.FrameTap = tap }

// Monitor runs the capture engine and fans decoded packets out to
// subscribers. A slow subscriber is skipped rather than allowed to stall the
// decode loop.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	return s.engine.Run(ctx, func(p *ble.Packet) {
		s.closingMu.Lock()
		if s.closing {
			s.closingMu.Unlock()
			return
		}
		s.closingMu.Unlock()

		s.subscriberMu.Lock()
		for _, ch := range s.subscribers {
			select {
			case ch <- p:
			default:
				// if the channel is full/blocking skip so as not to block the decode loop
			}
		}
		s.subscriberMu.Unlock()
	})
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	if err := s.port.Close(); err != nil {
		monitoring.Logf("serialmux: close: %v", err)
		return err
	}
	return nil
}
