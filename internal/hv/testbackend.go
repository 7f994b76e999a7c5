package hv

import (
	"context"
	"errors"
	"sync"
)

// TestBackend is a software stand-in for a real virtualization backend. It keeps guest memory in
// plain Go byte slices and lets a test drive a single Vcpu's exits by queuing ExitReason values up
// front, mimicking what a real backend would report after executing guest code. It exists only to
// exercise the run loop and the decoders against known inputs; it never executes any instruction.
type TestBackend struct {
	mut     sync.Mutex
	created bool
	regions []testRegion
	nextH   Handle
	vcpu    *TestVcpu
}

type testRegion struct {
	handle Handle
	bytes  []byte
	base   uint64
	mapped bool
	perm   Permission
}

// NewTestBackend returns an unstarted backend.
func NewTestBackend() *TestBackend {
	return &TestBackend{}
}

func (b *TestBackend) CreateVM() error {
	b.mut.Lock()
	defer b.mut.Unlock()

	b.created = true

	return nil
}

func (b *TestBackend) Allocate(size uint64) (Handle, error) {
	if size == 0 {
		return 0, &BackendError{Op: "allocate", Err: errors.New("zero size")}
	}

	return b.AllocateFrom(make([]byte, size))
}

func (b *TestBackend) AllocateFrom(bytes []byte) (Handle, error) {
	b.mut.Lock()
	defer b.mut.Unlock()

	b.nextH++
	h := b.nextH

	buf := make([]byte, len(bytes))
	copy(buf, bytes)

	b.regions = append(b.regions, testRegion{handle: h, bytes: buf})

	return h, nil
}

func (b *TestBackend) Map(h Handle, guestPhysBase uint64, perm Permission) error {
	b.mut.Lock()
	defer b.mut.Unlock()

	for i := range b.regions {
		if b.regions[i].handle == h {
			b.regions[i].base = guestPhysBase
			b.regions[i].perm = perm
			b.regions[i].mapped = true

			return nil
		}
	}

	return &BackendError{Op: "map", Err: errUnknownHandle}
}

func (b *TestBackend) GetSlice(h Handle) ([]byte, error) {
	b.mut.Lock()
	defer b.mut.Unlock()

	for i := range b.regions {
		if b.regions[i].handle == h {
			return b.regions[i].bytes, nil
		}
	}

	return nil, &BackendError{Op: "get_slice", Err: errUnknownHandle}
}

func (b *TestBackend) GetSliceMut(h Handle) ([]byte, error) {
	return b.GetSlice(h)
}

func (b *TestBackend) CreateVCPU() (Vcpu, error) {
	b.mut.Lock()
	defer b.mut.Unlock()

	if !b.created {
		return nil, &BackendError{Op: "create_vcpu", Err: errors.New("vm not created")}
	}

	v := &TestVcpu{regs: make(map[Register]uint64)}
	b.vcpu = v

	return v, nil
}

var errUnknownHandle = errors.New("unknown handle")

// TestVcpu is the Vcpu half of TestBackend. A test queues up the ExitReason values Run should
// return, one per call, via QueueExit; Run pops them in order.
type TestVcpu struct {
	mut    sync.Mutex
	regs   map[Register]uint64
	trapDg bool
	vtmask bool
	exits  []ExitReason
	runs   int
}

// QueueExit appends an exit for a future Run call to return.
func (v *TestVcpu) QueueExit(reason ExitReason) {
	v.mut.Lock()
	defer v.mut.Unlock()

	v.exits = append(v.exits, reason)
}

func (v *TestVcpu) GetRegister(reg Register) (uint64, error) {
	v.mut.Lock()
	defer v.mut.Unlock()

	return v.regs[reg], nil
}

func (v *TestVcpu) SetRegister(reg Register, value uint64) error {
	v.mut.Lock()
	defer v.mut.Unlock()

	v.regs[reg] = value

	return nil
}

func (v *TestVcpu) SetTrapDebugExceptions(trap bool) error {
	v.mut.Lock()
	defer v.mut.Unlock()

	v.trapDg = trap

	return nil
}

func (v *TestVcpu) SetVTimerMask(masked bool) error {
	v.mut.Lock()
	defer v.mut.Unlock()

	v.vtmask = masked

	return nil
}

// Run returns the next queued exit. Once the queue is drained it returns ExitOther, signalling
// the loop to stop, so a misconfigured test fails fast instead of looping forever.
func (v *TestVcpu) Run(ctx context.Context) (ExitReason, error) {
	select {
	case <-ctx.Done():
		return ExitReason{}, ctx.Err()
	default:
	}

	v.mut.Lock()
	defer v.mut.Unlock()

	if v.runs >= len(v.exits) {
		return ExitReason{Kind: ExitOther, Detail: "test backend exhausted"}, nil
	}

	reason := v.exits[v.runs]
	v.runs++

	return reason, nil
}
