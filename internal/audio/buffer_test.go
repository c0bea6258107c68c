package audio

import (
	"bytes"
	"testing"
)

func TestRingBuffer_Write(t *testing.T) {
	rb := NewRingBuffer(10)

	if written := rb.Write([]byte{1, 2, 3, 4, 5}); written != 5 {
		t.Errorf("Expected to write 5 bytes, got %d", written)
	}
	if written := rb.Write([]byte{6, 7, 8}); written != 3 {
		t.Errorf("Expected to write 3 bytes, got %d", written)
	}
	if rb.Available() != 8 {
		t.Errorf("Expected available 8, got %d", rb.Available())
	}
}

func TestRingBuffer_WriteOverflowDrops(t *testing.T) {
	rb := NewRingBuffer(5)

	if written := rb.Write([]byte{1, 2, 3, 4, 5, 6}); written != 4 {
		t.Errorf("Expected to write 4 bytes, got %d", written)
	}
	if !rb.IsFull() {
		t.Error("Expected buffer to be full")
	}
	if written := rb.Write([]byte{7}); written != 0 {
		t.Errorf("Expected to write 0 bytes into a full buffer, got %d", written)
	}
	if rb.Dropped() != 3 {
		t.Errorf("Expected 3 dropped bytes, got %d", rb.Dropped())
	}
}

func TestRingBuffer_ReadMoreThanAvailable(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]byte{1, 2, 3})

	out := make([]byte, 8)
	if n := rb.Read(out); n != 3 {
		t.Fatalf("Expected to read 3 bytes, got %d", n)
	}
	if !bytes.Equal(out[:3], []byte{1, 2, 3}) {
		t.Errorf("Expected [1 2 3], got %v", out[:3])
	}
	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty after reading everything")
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := NewRingBuffer(6)

	rb.Write([]byte{1, 2, 3, 4})
	rb.Read(make([]byte, 3))
	rb.Write([]byte{5, 6, 7, 8})

	got := rb.Drain()
	want := []byte{4, 5, 6, 7, 8}
	if !bytes.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRingBuffer_DrainEmpty(t *testing.T) {
	rb := NewRingBuffer(8)
	if got := rb.Drain(); got != nil {
		t.Errorf("Expected nil from empty drain, got %v", got)
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte{1, 2, 3})
	rb.Clear()

	if rb.Available() != 0 {
		t.Errorf("Expected 0 available after clear, got %d", rb.Available())
	}
	if rb.Space() != 7 {
		t.Errorf("Expected space 7 after clear, got %d", rb.Space())
	}
}
