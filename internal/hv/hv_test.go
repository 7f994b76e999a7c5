package hv_test

import (
	"context"
	"testing"

	"github.com/whexy/armhv/internal/hv"
)

func TestPermissionString(t *testing.T) {
	cases := map[hv.Permission]string{
		hv.Read:             "r--",
		hv.ReadWrite:        "rw-",
		hv.ReadWriteExecute: "rwx",
		0:                   "---",
	}

	for perm, want := range cases {
		if got := perm.String(); got != want {
			t.Errorf("Permission(%d).String() = %q, want %q", perm, got, want)
		}
	}
}

func TestRegisterString(t *testing.T) {
	if got := hv.X0.String(); got != "X0" {
		t.Errorf("X0.String() = %q", got)
	}

	if got := hv.PC.String(); got != "PC" {
		t.Errorf("PC.String() = %q", got)
	}
}

func TestTestBackendLifecycle(t *testing.T) {
	b := hv.NewTestBackend()
	if err := b.CreateVM(); err != nil {
		t.Fatalf("CreateVM: %v", err)
	}

	h, err := b.Allocate(0x1000)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := b.Map(h, 0x40000000, hv.ReadWrite); err != nil {
		t.Fatalf("Map: %v", err)
	}

	slice, err := b.GetSliceMut(h)
	if err != nil {
		t.Fatalf("GetSliceMut: %v", err)
	}

	if len(slice) != 0x1000 {
		t.Fatalf("len(slice) = %d, want 0x1000", len(slice))
	}

	vcpu, err := b.CreateVCPU()
	if err != nil {
		t.Fatalf("CreateVCPU: %v", err)
	}

	if err := vcpu.SetRegister(hv.X0, 42); err != nil {
		t.Fatalf("SetRegister: %v", err)
	}

	got, err := vcpu.GetRegister(hv.X0)
	if err != nil || got != 42 {
		t.Fatalf("GetRegister(X0) = %d, %v; want 42, nil", got, err)
	}

	tv := vcpu.(*hv.TestVcpu)
	tv.QueueExit(hv.ExitReason{Kind: hv.ExitException, Syndrome: 0xdeadbeef})

	reason, err := vcpu.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if reason.Kind != hv.ExitException || reason.Syndrome != 0xdeadbeef {
		t.Fatalf("Run() = %+v, want Exception/0xdeadbeef", reason)
	}

	reason, err = vcpu.Run(context.Background())
	if err != nil {
		t.Fatalf("Run (exhausted): %v", err)
	}

	if reason.Kind != hv.ExitOther {
		t.Fatalf("Run() after queue drained = %+v, want ExitOther", reason)
	}
}

func TestAllocateZeroSize(t *testing.T) {
	b := hv.NewTestBackend()

	if _, err := b.Allocate(0); err == nil {
		t.Fatal("Allocate(0) succeeded, want error")
	}
}
