// Package tty adapts the PL011 UART to the host's terminal, for running the hypervisor
// interactively instead of headless. Keys typed at the host terminal are delivered to the
// device's RX FIFO; bytes the guest transmits appear on the host terminal via the same sink the
// device is otherwise configured with.
package tty

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// uartInput is the subset of *uart.PL011 the console drives. It is an interface, not a concrete
// type, so the console has no import-cycle dependency on the device package.
type uartInput interface {
	InputData(b byte)
}

// Console puts the host terminal in raw mode and shuttles bytes between it and a UART device.
type Console struct {
	in    *os.File
	out   *term.Terminal
	fd    int
	state *term.State
	keyCh chan byte
}

// ErrNoTTY is returned if standard input is not a terminal, in which case the console cannot
// provide interactive input.
var ErrNoTTY error = errors.New("console: not a TTY")

// WithConsole starts a Console reading from the standard streams and feeding device's RX FIFO.
// Calling the returned cancel function restores the terminal and stops the goroutines.
func WithConsole(parent context.Context, device uartInput) (context.Context, *Console, context.CancelFunc) {
	ctx, cause := context.WithCancelCause(parent)

	console, err := NewConsole(os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		cause(err)
		return ctx, console, func() { cause(context.Canceled) }
	}

	go console.readTerminal(ctx, console.Restore)
	go console.feedDevice(ctx, device)

	return ctx, console, console.Restore
}

// NewConsole creates a Console using the provided streams. If the input stream is not a
// terminal, ErrNoTTY is returned. Callers must call the cancel function from WithConsole (or
// Restore directly) to return the terminal to its initial state.
func NewConsole(sin, sout, serr *os.File) (*Console, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTTY, err)
	}

	cons := Console{
		fd:    fd,
		in:    sin,
		out:   term.NewTerminal(sin, ""),
		state: saved,
		keyCh: make(chan byte, 1),
	}

	if err := cons.setTerminalParams(1, 0); err != nil {
		return nil, err
	}

	return &cons, nil
}

// Writer returns an io.Writer suitable as the UART's host-side output sink.
func (c *Console) Writer() *term.Terminal { return c.out }

// Restore returns the terminal to its initial state and unblocks any in-progress read.
func (c *Console) Restore() {
	_ = os.Stdin.SetReadDeadline(time.Now())
	_ = term.Restore(c.fd, c.state)
}

func (c *Console) setTerminalParams(vmin, vtime byte) error {
	_ = syscall.SetNonblock(c.fd, true)

	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	if err := unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO); err != nil {
		return err
	}

	_ = os.Stdin.SetReadDeadline(time.Time{})

	return nil
}

func (c *Console) readTerminal(ctx context.Context, cancel context.CancelFunc) {
	buf := bufio.NewReader(c.in)

	_ = syscall.SetNonblock(c.fd, false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			b, err := buf.ReadByte()
			if err != nil {
				cancel()
				return
			}

			c.keyCh <- b
		}
	}
}

func (c *Console) feedDevice(ctx context.Context, device uartInput) {
	for {
		select {
		case key := <-c.keyCh:
			device.InputData(key)
		case <-ctx.Done():
			return
		}
	}
}
