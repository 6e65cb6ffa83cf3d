package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDisabledMuxSubscribe(t *testing.T) {
	d := NewDisabledSerialMux()

	id, ch := d.Subscribe()
	if id == "" {
		t.Error("empty subscriber ID")
	}

	select {
	case <-ch:
		t.Error("disabled mux delivered a packet")
	default:
	}

	d.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel not closed on Unsubscribe")
	}
}

func TestDisabledMuxCloseClosesSubscribers(t *testing.T) {
	d := NewDisabledSerialMux()
	_, ch := d.Subscribe()

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("channel not closed on Close")
	}

	// Subscribing after Close yields an already closed channel.
	_, late := d.Subscribe()
	if _, ok := <-late; ok {
		t.Error("post-Close subscription channel not closed")
	}
}

func TestDisabledMuxNoOps(t *testing.T) {
	d := NewDisabledSerialMux()
	defer d.Close()

	if err := d.SendCommand([]byte{0x01}); err != nil {
		t.Errorf("SendCommand = %v", err)
	}
	if err := d.Initialize(true, false, false); err != nil {
		t.Errorf("Initialize = %v", err)
	}
	if snap := d.Stats(); snap.Packets != 0 {
		t.Errorf("Stats = %+v", snap)
	}
}

func TestDisabledMuxMonitorBlocksUntilCancel(t *testing.T) {
	d := NewDisabledSerialMux()
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Monitor(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancellation")
	}
}
