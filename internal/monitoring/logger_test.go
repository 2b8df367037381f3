package monitoring

import (
	"fmt"
	"testing"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)
	Logf("hello %d", 1)
	if len(*lines) != 1 || (*lines)[0] != "hello 1" {
		t.Fatalf("got %q", *lines)
	}

	SetLogger(nil)
	Logf("muted") // must not panic
	if len(*lines) != 1 {
		t.Errorf("nil logger should mute, got %q", *lines)
	}
}

func TestComponent(t *testing.T) {
	log := Component("radar")
	lines := capture(t) // swapped after Component was built

	log("bus valid %v", true)
	if len(*lines) != 1 || (*lines)[0] != "[radar] bus valid true" {
		t.Errorf("got %q", *lines)
	}
}
