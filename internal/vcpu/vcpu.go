// Package vcpu runs the guest: it drives the backend's vCPU, classifies each exit, dispatches
// Data Aborts into the MMIO bus and trapped system-register accesses into the timer emulator,
// advances the program counter, and surfaces anything it cannot handle as fatal.
package vcpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/whexy/armhv/internal/debug"
	"github.com/whexy/armhv/internal/hv"
	"github.com/whexy/armhv/internal/log"
	"github.com/whexy/armhv/internal/mmio"
	"github.com/whexy/armhv/internal/syndrome"
	"github.com/whexy/armhv/internal/timer"
)

// Config configures a Loop before its first iteration.
type Config struct {
	Vcpu       hv.Vcpu
	Bus        *mmio.MmioManager
	Debugger   debug.Printer
	Logger     *log.Logger
	EntryPoint uint64
}

// Loop owns the vCPU and the MMIO bus for the lifetime of a single guest run.
type Loop struct {
	vcpu     hv.Vcpu
	bus      *mmio.MmioManager
	debugger debug.Printer
	log      *log.Logger
}

// New configures the vCPU's initial architectural state -- EL1 with a dedicated stack pointer,
// all exceptions masked, NZCV clear, PC at the firmware entry point -- and returns a Loop ready
// to Run.
func New(cfg Config) (*Loop, error) {
	if cfg.Debugger == nil {
		cfg.Debugger = debug.NopPrinter{}
	}

	if cfg.Logger == nil {
		cfg.Logger = log.DefaultLogger()
	}

	spsr := syndrome.SPSR(0).
		SetExceptionLevel(syndrome.EL1H).
		SetInterruptMasks(true, true, true, true).
		SetConditionFlags(false, false, false, false)

	if err := cfg.Vcpu.SetRegister(hv.CPSR, uint64(spsr)); err != nil {
		return nil, fmt.Errorf("vcpu: configure CPSR: %w", err)
	}

	if err := cfg.Vcpu.SetRegister(hv.PC, cfg.EntryPoint); err != nil {
		return nil, fmt.Errorf("vcpu: configure PC: %w", err)
	}

	if err := cfg.Vcpu.SetTrapDebugExceptions(true); err != nil {
		return nil, fmt.Errorf("vcpu: enable debug trapping: %w", err)
	}

	if err := cfg.Vcpu.SetVTimerMask(false); err != nil {
		return nil, fmt.Errorf("vcpu: clear vtimer mask: %w", err)
	}

	return &Loop{vcpu: cfg.Vcpu, bus: cfg.Bus, debugger: cfg.Debugger, log: cfg.Logger}, nil
}

// Run drives the guest until it issues HVC, ctx is cancelled, or a fatal exit occurs.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		exit, err := l.vcpu.Run(ctx)
		if err != nil {
			return fmt.Errorf("vcpu: run: %w", err)
		}

		if exit.Kind != hv.ExitException {
			l.log.Error("unhandled exit reason", log.String("detail", exit.Detail))
			_ = l.debugger.PrintFaultInfo(l.vcpu, l.currentPC())

			return fmt.Errorf("vcpu: unhandled exit: %s", exit.Detail)
		}

		esr := syndrome.ESR(exit.Syndrome)
		ec := esr.ExceptionClass()

		switch {
		case ec.Is("HVCAArch64"):
			_ = l.debugger.PrintFaultInfo(l.vcpu, l.currentPC())
			return nil

		case ec.Is("DataAbortLowerEl") || ec.Is("DataAbortSameEl"):
			l.handleDataAbort(esr, exit.PhysicalAddress)

			if err := l.advancePC(); err != nil {
				return err
			}

		case ec.Is("TrappedSysregAArch64"):
			if err := l.handleSysReg(esr); err != nil {
				_ = l.debugger.PrintFaultInfo(l.vcpu, l.currentPC())
				return err
			}

			if err := l.advancePC(); err != nil {
				return err
			}

		default:
			l.log.Error("unhandled exception class", log.String("class", ec.String()))
			_ = l.debugger.PrintFaultInfo(l.vcpu, l.currentPC())

			return fmt.Errorf("vcpu: unhandled exception class %s", ec)
		}
	}
}

func (l *Loop) handleDataAbort(esr syndrome.ESR, faultAddr uint64) {
	iss := syndrome.DataAbortISS(esr.ISS())
	size := iss.AccessSize()
	reg := iss.AccessRegister()

	if iss.IsWrite() {
		value, err := l.registerValue(reg)
		if err != nil {
			l.log.Error("data abort: read transfer register", log.String("error", err.Error()))
			return
		}

		if err := l.bus.HandleWrite(faultAddr, size, value); err != nil {
			l.log.Warn("mmio write failed, continuing",
				log.String("error", err.Error()), log.Uint64("addr", faultAddr))
			_ = l.debugger.PrintFaultInfo(l.vcpu, l.currentPC())
		}

		return
	}

	value, err := l.bus.HandleRead(faultAddr, size)
	if err != nil {
		l.log.Warn("mmio read failed, continuing",
			log.String("error", err.Error()), log.Uint64("addr", faultAddr))
		_ = l.debugger.PrintFaultInfo(l.vcpu, l.currentPC())

		return
	}

	if err := l.setRegisterValue(reg, value); err != nil {
		l.log.Error("data abort: write transfer register", log.String("error", err.Error()))
	}
}

func (l *Loop) handleSysReg(esr syndrome.ESR) error {
	iss := syndrome.SysRegAbortISS(esr.ISS())

	reg, ok := iss.SystemRegister()
	if !ok {
		l.log.Error("unknown system register access",
			log.Uint64("op0", uint64(iss.Op0())), log.Uint64("op1", uint64(iss.Op1())),
			log.Uint64("crn", uint64(iss.CRn())), log.Uint64("crm", uint64(iss.CRm())),
			log.Uint64("op2", uint64(iss.Op2())))

		return errors.New("vcpu: unknown system register")
	}

	if reg != syndrome.CntpctEl0 {
		return fmt.Errorf("vcpu: unimplemented system register %s", reg)
	}

	if iss.IsWrite() {
		return nil // counters are read-only; writes are dropped
	}

	return l.setRegisterValue(iss.AccessRegister(), timer.ReadCounter())
}

func (l *Loop) registerValue(reg syndrome.VRegister) (uint64, error) {
	if reg.IsZero() {
		return 0, nil
	}

	return l.vcpu.GetRegister(hv.Register(reg.Index()))
}

func (l *Loop) setRegisterValue(reg syndrome.VRegister, value uint64) error {
	if reg.IsZero() {
		return nil
	}

	return l.vcpu.SetRegister(hv.Register(reg.Index()), value)
}

func (l *Loop) currentPC() uint64 {
	pc, _ := l.vcpu.GetRegister(hv.PC)
	return pc
}

// advancePC advances PC unconditionally by 4, the width of every AArch64 instruction; the
// backend does not auto-advance over a trapped instruction.
func (l *Loop) advancePC() error {
	pc, err := l.vcpu.GetRegister(hv.PC)
	if err != nil {
		return fmt.Errorf("vcpu: read PC: %w", err)
	}

	if err := l.vcpu.SetRegister(hv.PC, pc+4); err != nil {
		return fmt.Errorf("vcpu: advance PC: %w", err)
	}

	return nil
}
