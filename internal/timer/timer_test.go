package timer_test

import (
	"testing"

	"github.com/whexy/armhv/internal/timer"
)

func TestCounterIsNonDecreasing(t *testing.T) {
	a := timer.ReadCounter()
	b := timer.ReadCounter()

	if b < a {
		t.Fatalf("ReadCounter() went backwards: %d then %d", a, b)
	}
}
