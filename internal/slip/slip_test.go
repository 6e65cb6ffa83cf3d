package slip

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"plain bytes", []byte{0x06, 0x02, 0x01, 0x00, 0x00, 0x02}},
		{"content containing start marker", []byte{0x01, Start, 0x02}},
		{"content containing end marker", []byte{End}},
		{"content containing escape marker", []byte{Esc, Esc}},
		{"all three markers", []byte{Start, End, Esc}},
		{"empty content", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReassembler()
			frames, errs := r.Feed(Encode(tt.content))
			if len(errs) != 0 {
				t.Fatalf("Feed() errors = %v", errs)
			}
			if len(frames) != 1 {
				t.Fatalf("Feed() returned %d frames, want 1", len(frames))
			}
			if !bytes.Equal(frames[0], tt.content) {
				t.Errorf("frame = % X, want % X", frames[0], tt.content)
			}
		})
	}
}

// TestFeedFragmentation splits a stream of frames at every possible byte
// boundary and checks the same frames come out regardless of chunking.
func TestFeedFragmentation(t *testing.T) {
	contents := [][]byte{
		{0x06, 0x0D, 0x01, 0x01, 0x00, 0x0D},
		{0x06, 0x02, Start, End, Esc, 0x02},
		{0xFF},
	}
	var stream []byte
	for _, c := range contents {
		stream = append(stream, Encode(c)...)
	}

	for split := 0; split <= len(stream); split++ {
		r := NewReassembler()
		var frames [][]byte
		for _, chunk := range [][]byte{stream[:split], stream[split:]} {
			got, errs := r.Feed(chunk)
			if len(errs) != 0 {
				t.Fatalf("split %d: Feed() errors = %v", split, errs)
			}
			frames = append(frames, got...)
		}
		if len(frames) != len(contents) {
			t.Fatalf("split %d: got %d frames, want %d", split, len(frames), len(contents))
		}
		for i := range contents {
			if !bytes.Equal(frames[i], contents[i]) {
				t.Errorf("split %d: frame %d = % X, want % X", split, i, frames[i], contents[i])
			}
		}
	}
}

func TestFeedByteAtATime(t *testing.T) {
	content := []byte{0x06, 0x0C, 0x01, 0x2A, 0x00, 0x02, Start, End, Esc}
	stream := Encode(content)

	r := NewReassembler()
	var frames [][]byte
	for i := range stream {
		got, errs := r.Feed(stream[i : i+1])
		if len(errs) != 0 {
			t.Fatalf("byte %d: Feed() errors = %v", i, errs)
		}
		frames = append(frames, got...)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], content) {
		t.Fatalf("got frames % X, want one frame % X", frames, content)
	}
}

// TestNoiseBoundedMemory feeds a long stream of bytes that never start a
// frame and checks the internal buffer stays empty.
func TestNoiseBoundedMemory(t *testing.T) {
	r := NewReassembler()
	rng := rand.New(rand.NewSource(1))

	noise := make([]byte, 64*1024)
	for i := range noise {
		b := byte(rng.Intn(256))
		for b == Start {
			b = byte(rng.Intn(256))
		}
		noise[i] = b
	}

	frames, errs := r.Feed(noise)
	if len(frames) != 0 {
		t.Errorf("got %d frames from noise", len(frames))
	}
	if len(errs) != 0 {
		t.Errorf("got errors from pure noise: %v", errs)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after noise, want 0", r.Pending())
	}
}

// TestRunawayFrameBounded opens a frame and never closes it; the buffer must
// be capped and reassembly must recover on the next real frame.
func TestRunawayFrameBounded(t *testing.T) {
	r := NewReassembler()

	garbage := make([]byte, 8*MaxFrameSize)
	for i := range garbage {
		garbage[i] = 0x11
	}
	_, errs := r.Feed(append([]byte{Start}, garbage...))
	if len(errs) == 0 {
		t.Fatal("runaway frame produced no error")
	}
	for _, err := range errs {
		if !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("error = %v, want ErrFrameTooLarge", err)
		}
	}
	if r.Pending() > MaxFrameSize {
		t.Errorf("Pending() = %d, want <= %d", r.Pending(), MaxFrameSize)
	}

	content := []byte{0x06, 0x01, 0x01, 0x00, 0x00, 0x0E}
	frames, errs := r.Feed(Encode(content))
	if len(errs) != 0 {
		t.Fatalf("Feed() after recovery: errors = %v", errs)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], content) {
		t.Fatalf("Feed() after recovery = % X, want % X", frames, content)
	}
}

func TestResyncOnEmbeddedStartMarker(t *testing.T) {
	r := NewReassembler()

	content := []byte{0x06, 0x01, 0x01, 0x00, 0x00, 0x0E}
	stream := []byte{Start, 0x01, 0x02, 0x03} // frame that never ends
	stream = append(stream, Encode(content)...)

	frames, errs := r.Feed(stream)
	if len(errs) != 1 || !errors.Is(errs[0], ErrTruncatedFrame) {
		t.Fatalf("errors = %v, want one ErrTruncatedFrame", errs)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], content) {
		t.Fatalf("frames = % X, want % X", frames, content)
	}
}

func TestTruncatedEscapeDropsFrame(t *testing.T) {
	r := NewReassembler()

	frames, errs := r.Feed([]byte{Start, 0x01, Esc, End})
	if len(frames) != 0 {
		t.Errorf("frames = % X, want none", frames)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrTruncatedEscape) {
		t.Errorf("errors = %v, want one ErrTruncatedEscape", errs)
	}

	// Stream keeps working afterwards.
	frames, errs = r.Feed(Encode([]byte{0x42}))
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("recovery failed: frames=% X errs=%v", frames, errs)
	}
}

func TestExtractFrames(t *testing.T) {
	a := []byte{0x01, 0x02}
	b := []byte{0x03}
	buf := append(Encode(a), Encode(b)...)
	tail := []byte{Start, 0x99} // trailing unterminated frame
	buf = append(buf, tail...)

	frames, consumed := ExtractFrames(buf)
	if want := len(buf) - len(tail); consumed != want {
		t.Errorf("consumed = %d, want %d", consumed, want)
	}
	if len(frames) != 2 || !bytes.Equal(frames[0], a) || !bytes.Equal(frames[1], b) {
		t.Errorf("frames = % X, want [% X % X]", frames, a, b)
	}

	// The retained tail completes once the rest of its frame arrives.
	rest := append(append([]byte(nil), buf[consumed:]...), End)
	frames, consumed = ExtractFrames(rest)
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0x99}) {
		t.Errorf("tail frames = % X, want [99]", frames)
	}
	if consumed != len(rest) {
		t.Errorf("tail consumed = %d, want %d", consumed, len(rest))
	}
}

func TestExtractFramesNoFrames(t *testing.T) {
	frames, consumed := ExtractFrames([]byte{0x00, 0x01, 0x02})
	if len(frames) != 0 || consumed != 0 {
		t.Errorf("frames = % X, consumed = %d; want none, 0", frames, consumed)
	}
}
