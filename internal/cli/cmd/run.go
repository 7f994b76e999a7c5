package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/whexy/armhv/internal/cli"
	"github.com/whexy/armhv/internal/devices/gpio"
	"github.com/whexy/armhv/internal/devices/uart"
	"github.com/whexy/armhv/internal/firmware"
	"github.com/whexy/armhv/internal/hv"
	"github.com/whexy/armhv/internal/log"
	"github.com/whexy/armhv/internal/mem"
	"github.com/whexy/armhv/internal/mmio"
	"github.com/whexy/armhv/internal/vcpu"
)

// Fixed guest-physical memory map for the reference configuration.
const (
	firmwareBase = 0x0000_0000
	firmwareSize = 128 << 20

	mainMemBase = 0x4000_0000
	mainMemSize = 1 << 30

	uartBase = 0x0900_0000
	gpioBase = 0x3FFF_E000
)

// BackendFactory constructs the host virtualization backend the run command drives. The backend
// itself is an external collaborator (§6); run wires the rest of the system around whatever
// BackendFactory returns.
type BackendFactory func() (hv.Backend, error)

type runner struct {
	logLevel   log.Level
	newBackend BackendFactory
	loader     firmware.Loader
}

var _ cli.Command = (*runner)(nil)

// Run returns the "run" command, wired against the given backend factory. Passing nil leaves the
// command usable for --help but fails fast when actually executed. The initial log level is taken
// from the ARMHV_LOG environment variable when it names a valid level; --loglevel overrides it.
func Run(newBackend BackendFactory) *runner {
	r := &runner{logLevel: log.Info, newBackend: newBackend, loader: firmware.FileLoader{}}

	if env, ok := os.LookupEnv("ARMHV_LOG"); ok {
		_ = r.logLevel.UnmarshalText([]byte(env))
	}

	return r
}

func (r *runner) Description() string {
	return "run a guest image against a virtualization backend"
}

func (r *runner) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.Func("loglevel", "set the log level: debug, info, warn, error", func(s string) error {
		return r.logLevel.UnmarshalText([]byte(s))
	})

	return fs
}

func (r *runner) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `run [--loglevel LEVEL]

Loads firmware and a device tree from fixed relative paths, maps the reference memory layout,
attaches the PL011 UART and PL061 GPIO devices, and runs the guest until it issues HVC.`)

	return err
}

func (r *runner) Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int {
	log.LogLevel.Set(r.logLevel)

	if r.newBackend == nil {
		logger.Error("no virtualization backend configured")
		return 1
	}

	backend, err := r.newBackend()
	if err != nil {
		logger.Error("create backend", log.String("error", err.Error()))
		return 1
	}

	if err := backend.CreateVM(); err != nil {
		logger.Error("create vm", log.String("error", err.Error()))
		return 1
	}

	sharedMem := mem.New(backend, logger)
	bus := mmio.NewManager(logger)

	if err := r.setupMemory(sharedMem, logger); err != nil {
		logger.Error("setup memory", log.String("error", err.Error()))
		return 1
	}

	uartDevice := uart.New(out)
	if err := bus.RegisterDevice(uartBase, uartDevice); err != nil {
		logger.Error("register uart", log.String("error", err.Error()))
		return 1
	}

	if err := bus.RegisterDevice(gpioBase, gpio.New()); err != nil {
		logger.Error("register gpio", log.String("error", err.Error()))
		return 1
	}

	vcpuHandle, err := backend.CreateVCPU()
	if err != nil {
		logger.Error("create vcpu", log.String("error", err.Error()))
		return 1
	}

	loop, err := vcpu.New(vcpu.Config{
		Vcpu: vcpuHandle, Bus: bus, Logger: logger, EntryPoint: firmwareBase,
	})
	if err != nil {
		logger.Error("configure vcpu", log.String("error", err.Error()))
		return 1
	}

	if err := loop.Run(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			logger.Info("run cancelled", log.String("error", err.Error()))
			return 0
		}

		logger.Error("run failed", log.String("error", err.Error()))

		return 1
	}

	_ = uartDevice.Close()

	return 0
}

func (r *runner) setupMemory(sharedMem *mem.SharedMemory, logger *log.Logger) error {
	if err := sharedMem.AddSegment(firmwareBase, firmwareSize, hv.ReadWriteExecute); err != nil {
		return err
	}

	if err := sharedMem.AddSegment(mainMemBase, mainMemSize, hv.ReadWriteExecute); err != nil {
		return err
	}

	fw, err := firmware.LoadFirmware(r.loader, "")
	if err != nil {
		logger.Warn("firmware image not found, guest memory left zeroed",
			log.String("error", err.Error()))
	} else if err := sharedMem.WriteBytes(firmwareBase, fw); err != nil {
		return err
	}

	dtb, err := firmware.LoadDeviceTree(r.loader, "")
	if err != nil {
		logger.Warn("device tree not found, guest memory left zeroed",
			log.String("error", err.Error()))

		return nil
	}

	return sharedMem.WriteBytes(mainMemBase, dtb)
}
