// Package sniffer drives the continuous capture loop: it reads raw bytes from
// the sniffer's serial link, reassembles transport frames, decodes them into
// BLE packets, and hands the packets to a sink. All decoding is synchronous
// and single-threaded; one Sniffer serves one byte source.
package sniffer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/ble.report/internal/ble"
	"github.com/banshee-data/ble.report/internal/monitoring"
	"github.com/banshee-data/ble.report/internal/slip"
)

// readChunkSize matches the firmware-side UART buffer.
const readChunkSize = 1024

// Stats counts stream health events. Per-frame and per-field problems are
// recovered locally; these counters make them observable instead of silent.
type Stats struct {
	Bytes           monitoring.Counter
	Frames          monitoring.Counter
	Packets         monitoring.Counter
	OtherEvents     monitoring.Counter
	MalformedFrames monitoring.Counter
	TruncatedFields monitoring.Counter
}

// Snapshot is a point-in-time copy of the stream counters, shaped for the
// stats API endpoint.
type Snapshot struct {
	Bytes           uint64 `json:"bytes"`
	Frames          uint64 `json:"frames"`
	Packets         uint64 `json:"packets"`
	OtherEvents     uint64 `json:"other_events"`
	MalformedFrames uint64 `json:"malformed_frames"`
	TruncatedFields uint64 `json:"truncated_fields"`
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Bytes:           s.Bytes.Value(),
		Frames:          s.Frames.Value(),
		Packets:         s.Packets.Value(),
		OtherEvents:     s.OtherEvents.Value(),
		MalformedFrames: s.MalformedFrames.Value(),
		TruncatedFields: s.TruncatedFields.Value(),
	}
}

// Sniffer owns the reassembly buffer for one byte source. Create one per
// serial port; instances must not be shared across sources.
type Sniffer struct {
	src   io.Reader
	reasm *slip.Reassembler
	stats Stats

	// FrameTap, when set, receives every successfully reassembled raw frame
	// before decoding. The capture writer uses it for pcap export. The slice
	// is owned by the callee.
	FrameTap func(frame []byte)
}

// New returns a Sniffer reading from src.
func New(src io.Reader) *Sniffer {
	return &Sniffer{src: src, reasm: slip.NewReassembler()}
}

// Stats exposes the stream counters for reporting.
func (s *Sniffer) Stats() *Stats { return &s.stats }

// Run reads from the byte source until it is exhausted, fails, or ctx is
// cancelled, calling emit for every decoded packet event. Reassembly and
// decode errors are counted and logged but never terminate the loop; only a
// byte-source error is fatal and is returned to the caller. A clean
// end-of-stream returns nil.
func (s *Sniffer) Run(ctx context.Context, emit func(*ble.Packet)) error {
	type chunk struct {
		data []byte
		err  error
	}
	chunks := make(chan chunk)

	// The blocking Read lives on its own goroutine so the decode loop can
	// observe ctx between packets.
	go func() {
		defer close(chunks)
		for {
			buf := make([]byte, readChunkSize)
			n, err := s.src.Read(buf)
			select {
			case chunks <- chunk{data: buf[:n], err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				return nil
			}
			if len(c.data) > 0 {
				s.consume(c.data, emit)
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("sniffer byte source failed: %w", c.err)
			}
		}
	}
}

// consume feeds newly arrived bytes through reassembly and decode.
func (s *Sniffer) consume(data []byte, emit func(*ble.Packet)) {
	s.stats.Bytes.Add(uint64(len(data)))

	frames, errs := s.reasm.Feed(data)
	for _, err := range errs {
		s.stats.MalformedFrames.Inc()
		monitoring.Logf("sniffer: dropped frame: %v", err)
	}

	for _, frame := range frames {
		s.stats.Frames.Inc()
		if s.FrameTap != nil {
			s.FrameTap(frame)
		}

		p, err := ble.Parse(frame)
		var trunc *ble.TruncatedFieldError
		switch {
		case errors.As(err, &trunc):
			// The packet keeps every field decoded before the truncation;
			// count it and emit anyway.
			s.stats.TruncatedFields.Inc()
			monitoring.Logf("sniffer: %v", err)
		case err != nil:
			s.stats.MalformedFrames.Inc()
			monitoring.Logf("sniffer: unparseable frame: %v", err)
			continue
		}

		if p.PacketID != ble.EventPacketAdvPDU && p.PacketID != ble.EventPacketDataPDU {
			s.stats.OtherEvents.Inc()
			continue
		}
		s.stats.Packets.Inc()
		emit(p)
	}
}
