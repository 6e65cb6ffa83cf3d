// Package slip implements the byte framing the nRF sniffer firmware uses on
// its UART link: frames are delimited by start/end markers and content bytes
// that collide with a marker are escaped as (Esc, value+1).
//
// The Reassembler is a pure state machine over delivered byte chunks; it has
// no opinion about how the read loop that feeds it is scheduled.
package slip

import (
	"errors"
	"fmt"
)

// Framing bytes, per sniffer_uart_protocol.txt.
const (
	Start = 0xAB
	End   = 0xBC
	Esc   = 0xCD

	escStart = Start + 1
	escEnd   = End + 1
	escEsc   = Esc + 1
)

// MaxFrameSize bounds the de-escaped size of a single frame. The largest
// legal sniffer frame is a 6-byte header plus a 255-byte payload; anything
// bigger means the stream lost an end marker.
const MaxFrameSize = 512

var (
	// ErrFrameTooLarge reports a frame that exceeded MaxFrameSize without an
	// end marker. The buffered bytes are discarded and scanning resumes at
	// the next start marker.
	ErrFrameTooLarge = errors.New("slip: frame exceeds maximum size")

	// ErrTruncatedFrame reports a start marker seen inside a frame body; the
	// partial frame before it is dropped and the new frame is kept.
	ErrTruncatedFrame = errors.New("slip: frame truncated by new start marker")

	// ErrTruncatedEscape reports a frame that ended in the middle of an
	// escape sequence.
	ErrTruncatedEscape = errors.New("slip: frame ends mid-escape")
)

// Reassembler extracts complete de-escaped frames from an unbounded byte
// stream delivered in chunks of arbitrary size. It buffers at most one
// partial frame; bytes outside a frame are discarded as they arrive, so a
// desynchronized or noisy stream cannot grow memory without bound.
//
// Not safe for concurrent use; run one Reassembler per byte source.
type Reassembler struct {
	buf     []byte
	inFrame bool
	esc     bool
	max     int
}

// NewReassembler returns a Reassembler bounded at MaxFrameSize.
func NewReassembler() *Reassembler {
	return &Reassembler{max: MaxFrameSize}
}

// Pending reports the number of buffered bytes awaiting a frame end.
func (r *Reassembler) Pending() int { return len(r.buf) }

// Feed consumes newly delivered bytes and returns every frame completed by
// them, in arrival order, together with any per-frame errors. Each input byte
// is examined exactly once regardless of how the stream is fragmented.
// Errors are recoverable: the affected frame is dropped and reassembly
// continues with the following bytes.
func (r *Reassembler) Feed(p []byte) (frames [][]byte, errs []error) {
	for _, b := range p {
		if !r.inFrame {
			if b == Start {
				r.inFrame = true
				r.buf = r.buf[:0]
				r.esc = false
			}
			continue
		}

		switch {
		case b == End:
			if r.esc {
				errs = append(errs, fmt.Errorf("%w (%d bytes dropped)", ErrTruncatedEscape, len(r.buf)))
				r.reset()
				continue
			}
			frames = append(frames, append([]byte(nil), r.buf...))
			r.reset()
			continue

		case b == Start:
			// An unescaped start marker can only mean the previous frame
			// never saw its end marker. Resynchronize on the new frame.
			errs = append(errs, fmt.Errorf("%w (%d bytes dropped)", ErrTruncatedFrame, len(r.buf)))
			r.buf = r.buf[:0]
			r.esc = false
			continue

		case b == Esc:
			r.esc = true

		case r.esc:
			switch b {
			case escStart:
				r.buf = append(r.buf, Start)
			case escEnd:
				r.buf = append(r.buf, End)
			case escEsc:
				r.buf = append(r.buf, Esc)
			default:
				// The firmware only escapes the three marker bytes; pass
				// anything else through untouched.
				r.buf = append(r.buf, b)
			}
			r.esc = false

		default:
			r.buf = append(r.buf, b)
		}

		if len(r.buf) > r.max {
			errs = append(errs, fmt.Errorf("%w (%d bytes dropped)", ErrFrameTooLarge, len(r.buf)))
			r.reset()
		}
	}
	return frames, errs
}

func (r *Reassembler) reset() {
	r.inFrame = false
	r.esc = false
	r.buf = r.buf[:0]
}

// Encode wraps content in start/end markers, escaping marker bytes.
func Encode(content []byte) []byte {
	out := make([]byte, 0, len(content)+2)
	out = append(out, Start)
	for _, b := range content {
		out = appendEscaped(out, b)
	}
	return append(out, End)
}

func appendEscaped(dst []byte, b byte) []byte {
	if b == Start || b == End || b == Esc {
		return append(dst, Esc, b+1)
	}
	return append(dst, b)
}

// ExtractFrames is the raw-bytes counterpart of a Reassembler: it splits a
// single buffer into its complete frames and reports the offset just past the
// last frame end marker. Callers can retain p[consumed:] and prepend it to
// the next read so an unterminated trailing frame is not lost.
func ExtractFrames(p []byte) (frames [][]byte, consumed int) {
	r := NewReassembler()
	for i := range p {
		got, _ := r.Feed(p[i : i+1])
		if len(got) > 0 {
			frames = append(frames, got...)
			consumed = i + 1
		}
	}
	return frames, consumed
}
