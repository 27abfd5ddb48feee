package mem_test

import (
	"errors"
	"testing"

	"github.com/kg68k/run68x-sub000/internal/mem"
)

func TestPeekPokeRoundTrip(t *testing.T) {
	sp := mem.New(1<<16, 0, 0x2000, nil)

	if err := sp.PokeL(0x4000, 0xdeadbeef, true); err != nil {
		t.Fatalf("PokeL: %v", err)
	}

	got, err := sp.PeekL(0x4000, true)
	if err != nil {
		t.Fatalf("PeekL: %v", err)
	}

	if got != 0xdeadbeef {
		t.Errorf("PeekL = %#x, want %#x", got, 0xdeadbeef)
	}

	hi, err := sp.PeekW(0x4000, true)
	if err != nil || hi != 0xdead {
		t.Errorf("PeekW hi = %#x, %v", hi, err)
	}
}

func TestBigEndian(t *testing.T) {
	sp := mem.New(1<<16, 0, 0, nil)

	if err := sp.PokeW(0x100, 0x1234, true); err != nil {
		t.Fatal(err)
	}

	b0, _ := sp.PeekB(0x100, true)
	b1, _ := sp.PeekB(0x101, true)

	if b0 != 0x12 || b1 != 0x34 {
		t.Errorf("big-endian layout: got %#x %#x", b0, b1)
	}
}

func TestSupervisorOnlyLowMemory(t *testing.T) {
	sp := mem.New(1<<16, 0, 0x2000, nil)

	if err := sp.PokeB(0x100, 1, true); err != nil {
		t.Fatalf("supervisor write should succeed: %v", err)
	}

	if _, err := sp.PeekB(0x100, false); !errors.Is(err, mem.ErrBusError) {
		t.Errorf("user read of supervisor area: got %v, want bus error", err)
	}
}

func TestBusErrorOnUnmappedRegion(t *testing.T) {
	sp := mem.New(1<<16, 0, 0, nil)

	_, err := sp.PeekW(0x00ff0000, true)

	var busErr *mem.BusError
	if !errors.As(err, &busErr) {
		t.Fatalf("unmapped read: got %v, want *BusError", err)
	}

	if busErr.Addr != 0x00ff0000 {
		t.Errorf("BusError.Addr = %#x, want %#x", busErr.Addr, 0x00ff0000)
	}
}

func TestLastWordAndByteOfFullMainMemoryAreAccessible(t *testing.T) {
	// With a full 16 MiB main memory, the last word and the last byte below the 24-bit limit must
	// read without a bus error.
	sp := mem.New(0x01000000, 0, 0, nil)

	_, err := sp.PeekW(0x00fffffe, true)
	if err != nil {
		t.Fatalf("unexpected error for in-range read: %v", err)
	}

	_, err = sp.PeekB(0x00ffffff, true)
	if err != nil {
		t.Fatalf("last byte of main memory should be accessible: %v", err)
	}
}

func TestAddressErrorOnOddWordAccess(t *testing.T) {
	sp := mem.New(1<<16, 0, 0, nil)

	_, err := sp.PeekW(0x101, true)

	var addrErr *mem.AddressError
	if !errors.As(err, &addrErr) {
		t.Fatalf("odd word read: got %v, want *AddressError", err)
	}
}

func TestHighMemory(t *testing.T) {
	sp := mem.New(1<<16, 1<<16, 0, nil)

	if err := sp.PokeL(mem.HighMemoryBase+4, 0x1, true); err != nil {
		t.Fatalf("PokeL into high memory: %v", err)
	}

	if _, err := sp.PeekL(mem.HighMemoryBase+0x20000, true); !errors.Is(err, mem.ErrBusError) {
		t.Errorf("past high memory: got %v, want bus error", err)
	}
}

func TestGetStringSuper(t *testing.T) {
	sp := mem.New(1<<16, 0, 0, nil)

	msg := "Hello\x00"
	if _, err := sp.WriteBytes(0x1000, []byte(msg), true); err != nil {
		t.Fatal(err)
	}

	got, err := sp.GetStringSuper(0x1000)
	if err != nil {
		t.Fatal(err)
	}

	if string(got) != "Hello" {
		t.Errorf("GetStringSuper = %q, want %q", got, "Hello")
	}
}

func TestReadWriteBytesRoundTrip(t *testing.T) {
	sp := mem.New(1<<16, 0, 0, nil)

	data := []byte("the quick brown fox")
	if _, err := sp.WriteBytes(0x2000, data, true); err != nil {
		t.Fatal(err)
	}

	got, err := sp.ReadBytes(0x2000, len(data), true)
	if err != nil {
		t.Fatal(err)
	}

	if string(got) != string(data) {
		t.Errorf("round trip = %q, want %q", got, data)
	}
}
