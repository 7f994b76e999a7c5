// Package debug defines the interface the run loop calls into on a fault, to print a
// disassembly-backed view of the guest's state. The view's internals -- instruction decoding
// around the faulting PC, register dump formatting -- are an external collaborator; only the
// interface the loop depends on lives here.
package debug

import "github.com/whexy/armhv/internal/hv"

// Printer prints diagnostic state when the run loop hits a fault worth surfacing to a human:
// an unhandled exception class, a fatal backend exit, or (optionally) a recovered MMIO error.
type Printer interface {
	// PrintFaultInfo prints the exception level, the instructions around pc, and the
	// general-purpose register file.
	PrintFaultInfo(vcpu hv.Vcpu, pc uint64) error
}

// NopPrinter implements Printer by doing nothing. It is the default when no real
// disassembler-backed printer is configured.
type NopPrinter struct{}

func (NopPrinter) PrintFaultInfo(vcpu hv.Vcpu, pc uint64) error { return nil }
