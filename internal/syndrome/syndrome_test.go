package syndrome_test

import (
	"testing"

	"github.com/whexy/armhv/internal/syndrome"
)

func TestExceptionClassRoundTrip(t *testing.T) {
	esr := syndrome.ESR(uint64(syndrome.HVCAArch64.Raw()) << 26)

	if ec := esr.ExceptionClass(); !ec.Is("HVCAArch64") {
		t.Fatalf("ExceptionClass() = %v, want HVCAArch64", ec)
	}
}

func TestExceptionClassUnrecognized(t *testing.T) {
	esr := syndrome.ESR(uint64(0x3F) << 26)

	ec := esr.ExceptionClass()
	if !ec.Unrecognized() {
		t.Fatalf("ExceptionClass() = %v, want Unrecognized", ec)
	}

	if ec.Raw() != 0x3F {
		t.Errorf("Raw() = %#x, want 0x3f", ec.Raw())
	}
}

func TestDataAbortISSDecode(t *testing.T) {
	// size=4 (SAS=2), write, SRT=2
	iss := syndrome.DataAbortISS((2 << 22) | (2 << 16) | (1 << 6))

	if size := iss.AccessSize(); size != 4 {
		t.Errorf("AccessSize() = %d, want 4", size)
	}

	if !iss.IsWrite() {
		t.Error("IsWrite() = false, want true")
	}

	if reg := iss.AccessRegister(); reg.IsZero() || reg.Index() != 2 {
		t.Errorf("AccessRegister() = %v, want X2", reg)
	}
}

func TestDataAbortZeroRegister(t *testing.T) {
	iss := syndrome.DataAbortISS(31 << 16)

	reg := iss.AccessRegister()
	if !reg.IsZero() {
		t.Errorf("AccessRegister() with SRT=31 = %v, want Zero", reg)
	}
}

func TestSysRegCounterTuples(t *testing.T) {
	cases := []syndrome.SysRegAbortISS{
		syndrome.SysRegAbortISS((3 << 20) | (1 << 17) | (3 << 14) | (14 << 10) | (0 << 1)),
		syndrome.SysRegAbortISS((3 << 20) | (1 << 17) | (7 << 14) | (7 << 10) | (12 << 1)),
	}

	for i, iss := range cases {
		reg, ok := iss.SystemRegister()
		if !ok || reg != syndrome.CntpctEl0 {
			t.Errorf("case %d: SystemRegister() = %v, %v, want CntpctEl0, true", i, reg, ok)
		}
	}
}

func TestSysRegUnmappedTuple(t *testing.T) {
	iss := syndrome.SysRegAbortISS(0)

	_, ok := iss.SystemRegister()
	if ok {
		t.Error("SystemRegister() on zero ISS = ok, want not found")
	}
}

func TestSysRegZeroRegister(t *testing.T) {
	iss := syndrome.SysRegAbortISS(31 << 5)

	reg := iss.AccessRegister()
	if !reg.IsZero() {
		t.Errorf("AccessRegister() with Rt=31 = %v, want Zero", reg)
	}
}

func TestSPSRExceptionLevel(t *testing.T) {
	var s syndrome.SPSR

	s = s.SetExceptionLevel(syndrome.EL1H)

	if s.ExceptionLevel() != 1 {
		t.Errorf("ExceptionLevel() = %d, want 1", s.ExceptionLevel())
	}

	if s.StackPointerIsEL0() {
		t.Error("StackPointerIsEL0() = true, want false for EL1H")
	}
}

func TestSPSRConditionFlags(t *testing.T) {
	var s syndrome.SPSR

	s = s.SetConditionFlags(true, false, true, false)

	if s>>31&1 != 1 || s>>30&1 != 0 || s>>29&1 != 1 || s>>28&1 != 0 {
		t.Errorf("condition flags = %#x, want N=1 Z=0 C=1 V=0", uint64(s))
	}
}
