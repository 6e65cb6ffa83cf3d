package monitoring

import (
	"sync"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op logger that must not panic or call anything.
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger triggered the previous callback")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}

func TestCounter(t *testing.T) {
	var c Counter
	c.Inc()
	c.Add(41)
	if got := c.Value(); got != 42 {
		t.Errorf("Value() = %d, want 42", got)
	}
}

func TestCounterConcurrent(t *testing.T) {
	var c Counter
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	if got := c.Value(); got != 8000 {
		t.Errorf("Value() = %d, want 8000", got)
	}
}
