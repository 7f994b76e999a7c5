// Package timer emulates the AArch64 physical counter, CNTPCT_EL0, the only system register this
// hypervisor fulfills itself rather than passing through to the host.
package timer

// NominalFrequencyHz is the tick rate guests should assume CNTPCT_EL0 runs at. It matches what
// QEMU's virt machine reports in its device tree, 24 MHz. Guests compute delays from this
// frequency, so it is named rather than left implicit in a conversion factor.
const NominalFrequencyHz = 24_000_000

// ReadCounter returns a monotonically non-decreasing tick value. On an arm64 host it is the real
// hardware counter; elsewhere it is a host monotonic clock reading scaled to NominalFrequencyHz.
func ReadCounter() uint64 {
	return readCounter()
}
