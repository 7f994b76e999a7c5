package uart_test

import (
	"testing"

	"github.com/whexy/armhv/internal/devices/uart"
)

const (
	regDR   = 0x000
	regFR   = 0x018
	regLCRH = 0x02C
	regCR   = 0x030

	frTXFE = 1 << 7
	frRXFE = 1 << 4

	crUARTEN = 1 << 0
	crTXE    = 1 << 8
	crRXE    = 1 << 9
)

func enable(d *uart.PL011) {
	_ = d.Write(regCR, 4, crUARTEN|crTXE|crRXE)
}

func TestReadEmptyRXReturnsZero(t *testing.T) {
	d, _ := uart.NewBuffer()

	v, err := d.Read(regDR, 4)
	if err != nil || v != 0 {
		t.Fatalf("Read(DR) on empty FIFO = %d, %v, want 0, nil", v, err)
	}
}

func TestTXGating(t *testing.T) {
	d, buf := uart.NewBuffer()

	// CR defaults to TXE|RXE but not UARTEN: writes are dropped.
	if err := d.Write(regDR, 4, 'H'); err != nil {
		t.Fatalf("Write(DR): %v", err)
	}

	if err := d.Write(regDR, 4, '\n'); err != nil {
		t.Fatalf("Write(DR): %v", err)
	}

	if buf.Len() != 0 {
		t.Fatalf("output = %q, want empty (UARTEN clear)", buf.String())
	}

	enable(d)

	if err := d.Write(regDR, 4, 'H'); err != nil {
		t.Fatalf("Write(DR): %v", err)
	}

	if err := d.Write(regDR, 4, '\n'); err != nil {
		t.Fatalf("Write(DR): %v", err)
	}

	if got := buf.String(); got != "H\n" {
		t.Fatalf("output = %q, want %q", got, "H\n")
	}
}

func TestLineFlushOnNewline(t *testing.T) {
	d, buf := uart.NewBuffer()
	enable(d)

	for _, b := range []byte("Hi\n") {
		if err := d.Write(regDR, 4, uint64(b)); err != nil {
			t.Fatalf("Write(DR): %v", err)
		}
	}

	if got := buf.String(); got != "Hi\n" {
		t.Fatalf("output = %q, want %q", got, "Hi\n")
	}
}

func TestFIFODepthTransition(t *testing.T) {
	d, _ := uart.NewBuffer()

	d.InputData('a')
	d.InputData('b')

	if err := d.Write(regLCRH, 4, 1<<4); err != nil {
		t.Fatalf("Write(LCR_H): %v", err)
	}

	fr, err := d.Read(regFR, 4)
	if err != nil {
		t.Fatalf("Read(FR): %v", err)
	}

	if uint32(fr)&frRXFE == 0 {
		t.Errorf("FR = %#x, want RXFE set after clear", fr)
	}

	if err := d.Write(regLCRH, 4, 0); err != nil {
		t.Fatalf("Write(LCR_H): %v", err)
	}

	fr, _ = d.Read(regFR, 4)
	if uint32(fr)&frRXFE == 0 {
		t.Errorf("FR = %#x, want RXFE set after second transition", fr)
	}
}

func TestUnmappedOffsetErrors(t *testing.T) {
	d, _ := uart.NewBuffer()

	if _, err := d.Read(0x900, 4); err == nil {
		t.Fatal("Read(unmapped) succeeded, want error")
	}
}

func TestPeripheralID(t *testing.T) {
	d, _ := uart.NewBuffer()

	v, err := d.Read(0xFE0, 4)
	if err != nil || v != 0x11 {
		t.Fatalf("Read(ID[0]) = %d, %v, want 0x11, nil", v, err)
	}
}

func TestInvalidSize(t *testing.T) {
	d, _ := uart.NewBuffer()

	if _, err := d.Read(regDR, 1); err == nil {
		t.Fatal("Read(size=1) succeeded, want InvalidSize")
	}
}
