// Package capture exports raw reassembled sniffer frames to a pcap file so
// sessions can be replayed in Wireshark, which dissects the format natively.
package capture

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
)

// LinkTypeNordicBLE is the pcap link type registered for nRF sniffer frames
// (DLT 272).
const LinkTypeNordicBLE = layers.LinkType(272)

// snapLen comfortably exceeds the largest legal frame (6-byte header plus a
// 255-byte payload).
const snapLen = 512

// Writer appends de-escaped frames to a pcap file. Safe for concurrent use;
// the frame tap and a closing goroutine may race otherwise.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *pcapgo.Writer
	frames uint64
	closed bool
}

// NewWriter creates (truncating) a pcap file at path and writes the file
// header.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snapLen, LinkTypeNordicBLE); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}

	return &Writer{f: f, w: w}, nil
}

// WriteFrame records one de-escaped frame with the current wall clock as its
// capture timestamp. Writes after Close are dropped silently; the frame tap
// can still fire while the engine drains during shutdown.
func (w *Writer) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := w.w.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	w.frames++
	return nil
}

// Frames reports how many frames have been written.
func (w *Writer) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}
