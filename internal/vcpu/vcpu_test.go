package vcpu_test

import (
	"context"
	"testing"

	"github.com/whexy/armhv/internal/devices/uart"
	"github.com/whexy/armhv/internal/hv"
	"github.com/whexy/armhv/internal/mmio"
	"github.com/whexy/armhv/internal/vcpu"
)

const (
	ecHVCAArch64           = 0x16
	ecDataAbortSameEl      = 0x25
	ecTrappedSysregAArch64 = 0x18

	entryPoint = 0x1000
)

func esr(ec uint8, iss uint32) uint64 {
	return uint64(ec)<<26 | uint64(iss)
}

func dataAbortISS(size uint8, write bool, srt uint8) uint32 {
	var sas uint32

	switch size {
	case 1:
		sas = 0
	case 2:
		sas = 1
	case 4:
		sas = 2
	default:
		sas = 3
	}

	iss := sas << 22
	iss |= uint32(srt) << 16

	if write {
		iss |= 1 << 6
	}

	return iss
}

func sysregISS(op0, op1, crn, crm, op2, rt uint8, isRead bool) uint32 {
	iss := uint32(op0)<<20 | uint32(op2)<<17 | uint32(op1)<<14 | uint32(crn)<<10 |
		uint32(rt)<<5 | uint32(crm)<<1

	if isRead {
		iss |= 1
	}

	return iss
}

func newLoop(t *testing.T, tv *hv.TestVcpu, bus *mmio.MmioManager) *vcpu.Loop {
	t.Helper()

	loop, err := vcpu.New(vcpu.Config{Vcpu: tv, Bus: bus, EntryPoint: entryPoint})
	if err != nil {
		t.Fatalf("vcpu.New: %v", err)
	}

	return loop
}

func newTestVcpu(t *testing.T) *hv.TestVcpu {
	t.Helper()

	b := hv.NewTestBackend()
	if err := b.CreateVM(); err != nil {
		t.Fatalf("CreateVM: %v", err)
	}

	v, err := b.CreateVCPU()
	if err != nil {
		t.Fatalf("CreateVCPU: %v", err)
	}

	return v.(*hv.TestVcpu)
}

func TestConstantHVC(t *testing.T) {
	tv := newTestVcpu(t)
	loop := newLoop(t, tv, mmio.NewManager(nil))

	if err := tv.SetRegister(hv.X0, 45); err != nil {
		t.Fatalf("SetRegister: %v", err)
	}

	tv.QueueExit(hv.ExitReason{Kind: hv.ExitException, Syndrome: esr(ecHVCAArch64, 0)})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := tv.GetRegister(hv.X0)
	if got != 45 {
		t.Fatalf("X0 = %d, want 45", got)
	}
}

func TestReadFromUART(t *testing.T) {
	tv := newTestVcpu(t)
	bus := mmio.NewManager(nil)

	device, _ := uart.NewBuffer()
	if err := bus.RegisterDevice(0x09000000, device); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	loop := newLoop(t, tv, bus)

	iss := dataAbortISS(4, false, 2)
	tv.QueueExit(hv.ExitReason{
		Kind: hv.ExitException, Syndrome: esr(ecDataAbortSameEl, iss),
		VirtualAddress: 0x09000000, PhysicalAddress: 0x09000000,
	})
	tv.QueueExit(hv.ExitReason{Kind: hv.ExitException, Syndrome: esr(ecHVCAArch64, 0)})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := tv.GetRegister(hv.X2)
	if got != 0 {
		t.Fatalf("X2 = %d, want 0", got)
	}

	pc, _ := tv.GetRegister(hv.PC)
	if pc != entryPoint+4 {
		t.Fatalf("PC = %#x, want %#x (advanced by 4)", pc, entryPoint+4)
	}
}

func TestUnmappedMMIOContinues(t *testing.T) {
	tv := newTestVcpu(t)
	bus := mmio.NewManager(nil)

	device, _ := uart.NewBuffer()
	if err := bus.RegisterDevice(0x09000000, device); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	loop := newLoop(t, tv, bus)

	if err := tv.SetRegister(hv.X2, 0xBAD); err != nil {
		t.Fatalf("SetRegister: %v", err)
	}

	iss := dataAbortISS(4, false, 2)
	tv.QueueExit(hv.ExitReason{
		Kind: hv.ExitException, Syndrome: esr(ecDataAbortSameEl, iss),
		VirtualAddress: 0x09001000, PhysicalAddress: 0x09001000,
	})
	tv.QueueExit(hv.ExitReason{Kind: hv.ExitException, Syndrome: esr(ecHVCAArch64, 0)})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := tv.GetRegister(hv.X2)
	if got != 0xBAD {
		t.Fatalf("X2 = %#x, want untouched 0xBAD (unmapped access must not write a GPR)", got)
	}
}

func TestCNTPCTRead(t *testing.T) {
	tv := newTestVcpu(t)
	loop := newLoop(t, tv, mmio.NewManager(nil))

	iss := sysregISS(3, 3, 14, 0, 1, 0, true)
	tv.QueueExit(hv.ExitReason{Kind: hv.ExitException, Syndrome: esr(ecTrappedSysregAArch64, iss)})

	iss2 := sysregISS(3, 3, 14, 0, 1, 1, true)
	tv.QueueExit(hv.ExitReason{Kind: hv.ExitException, Syndrome: esr(ecTrappedSysregAArch64, iss2)})

	tv.QueueExit(hv.ExitReason{Kind: hv.ExitException, Syndrome: esr(ecHVCAArch64, 0)})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	first, _ := tv.GetRegister(hv.X0)
	second, _ := tv.GetRegister(hv.X1)

	if second < first {
		t.Fatalf("counter went backwards: %d then %d", first, second)
	}
}
