//go:build !arm64

package timer

import "time"

var epoch = time.Now()

// readCounter scales a host monotonic clock reading to NominalFrequencyHz, since there is no
// hardware CNTPCT_EL0 to read directly on a non-arm64 host.
func readCounter() uint64 {
	return uint64(time.Since(epoch).Seconds() * float64(NominalFrequencyHz))
}
