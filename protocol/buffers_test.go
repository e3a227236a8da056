package protocol

import "testing"

func TestFifoBufferNextLine(t *testing.T) {
	f := NewFifoBuffer(64)
	f.Write([]byte("G28\r\nM114\n\nG1 X1"))

	want := []string{"G28", "M114"}
	for _, w := range want {
		line, ok := f.NextLine()
		if !ok || line != w {
			t.Fatalf("expected %q, got %q (%v)", w, line, ok)
		}
	}

	if line, ok := f.NextLine(); ok {
		t.Fatalf("partial line returned early: %q", line)
	}

	f.Write([]byte("0\n"))
	if line, ok := f.NextLine(); !ok || line != "G1 X10" {
		t.Errorf("expected completed line, got %q (%v)", line, ok)
	}
	if !f.IsEmpty() {
		t.Errorf("buffer should be empty, %d bytes left", f.Available())
	}
}

func TestFifoBufferWrap(t *testing.T) {
	f := NewFifoBuffer(8)
	f.Write([]byte("abc\n"))
	f.NextLine()

	// Crosses the end of the ring
	if n := f.Write([]byte("defgh\n")); n != 6 {
		t.Fatalf("expected 6 bytes written, got %d", n)
	}
	if line, ok := f.NextLine(); !ok || line != "defgh" {
		t.Errorf("expected wrapped line, got %q (%v)", line, ok)
	}
}

func TestFifoBufferOverlongLine(t *testing.T) {
	f := NewFifoBuffer(8)
	if n := f.Write([]byte("0123456789")); n != 7 {
		t.Fatalf("expected 7 bytes written, got %d", n)
	}
	line, ok := f.NextLine()
	if !ok || line != "0123456" {
		t.Errorf("full buffer should flush as a line, got %q (%v)", line, ok)
	}
	if f.Free() != 7 {
		t.Errorf("expected empty buffer after flush")
	}
}
