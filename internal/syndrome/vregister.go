package syndrome

import "fmt"

// VRegister names the transfer register of a trapped access: one of the 31 general-purpose
// registers, or the zero register. Representing the zero register as its own tag -- rather than
// letting index 31 alias a GPR -- means the run loop cannot accidentally write to a
// non-existent X31.
type VRegister struct {
	index uint8
	zero  bool
}

// Zero is the transfer register produced when SRT or Rt equals 31: reads yield 0, writes are
// dropped.
var Zero = VRegister{zero: true}

// GPR returns the transfer register naming general-purpose register x.
func GPR(index uint8) VRegister { return VRegister{index: index} }

// IsZero reports whether this is the zero register.
func (v VRegister) IsZero() bool { return v.zero }

// Index returns the general-purpose register index. It is only meaningful when IsZero is false.
func (v VRegister) Index() uint8 { return v.index }

func (v VRegister) String() string {
	if v.zero {
		return "XZR"
	}

	return fmt.Sprintf("X%d", v.index)
}

// fromRt maps a raw SRT/Rt field to a VRegister, per the AArch64 convention that index 31 names
// the zero (or stack pointer, in GPR-transfer contexts the zero) register.
func fromRt(rt uint8) VRegister {
	if rt == 31 {
		return Zero
	}

	return GPR(rt)
}
